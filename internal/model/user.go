// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents an account established through the identity provider.
//
// The primary key is the provider's OIDC subject ("sub") claim — a stable,
// opaque string the provider guarantees never changes for a given account.
// We deliberately do not mint our own internal ID: a row exists if and only
// if that subject has completed at least one verified login, so the subject
// IS the identity.
//
// Name, Email and ProfilePic mirror whatever the provider reported on the
// most recent login. Email is expected to be unique per person in practice
// but is not enforced unique here; ProfilePic is an externally hosted URL we
// neither validate nor cache.
type User struct {
	ID         string    `json:"id"         db:"id"`          // provider subject id
	Name       string    `json:"name"       db:"name"`        // given name from the userinfo response
	Email      string    `json:"email"      db:"email"`
	ProfilePic string    `json:"profilePic" db:"profile_pic"` // hosted image URL
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"  db:"updated_at"`
}
