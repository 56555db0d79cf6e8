package repository

import (
	"context"

	"github.com/avkulikov/weatherhub/internal/model"
)

// UserRepository is the durable mapping from provider subject id to User.
//
// Get returns (nil, nil) when no row exists — absence is a normal outcome
// during login, not an error. Create fails with apperror.ErrConflict when the
// subject id is already present; callers racing on first login treat that as
// "created concurrently" and re-read. UpdateProfile overwrites the mutable
// profile fields (name, email, profile_pic) for an existing row.
type UserRepository interface {
	Get(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	UpdateProfile(ctx context.Context, user *model.User) error
}
