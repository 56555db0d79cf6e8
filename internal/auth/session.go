// Package auth implements the OAuth2 authorization-code flow against a
// single identity provider and the session layer that remembers its outcome.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Browser hits /login → redirected to the provider's authorization page
//  2. Provider calls back /login/callback with a single-use code
//  3. Server exchanges the code for userinfo and reconciles the user row
//  4. Server signs a session token and stores it in an HttpOnly cookie
//  5. On later requests, middleware reads the cookie, validates the token,
//     resolves the user row, and exposes an Identity on the request context
//
// The session token is a signed JWT: the server keeps no session table. All
// it needs to recognize a returning browser is the signing secret — the
// subject id inside the token is re-resolved against the user store on every
// request, so a deleted user row invalidates the session instead of being
// resurrected from stale claims.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avkulikov/weatherhub/internal/model"
	"github.com/avkulikov/weatherhub/internal/repository"
)

// sessionCookie is the name of the cookie carrying the signed session token.
const sessionCookie = "session"

// sessionTTL caps how long a signed token stays valid. The cookie itself has
// no Max-Age, so it dies with the browser session; the token expiry is the
// hard upper bound for long-lived browsers.
const sessionTTL = 12 * time.Hour

const issuer = "weatherhub"

// SessionManager bridges the cookie mechanism and the user store.
//
// Login and Logout write the cookie on the response; CurrentUser reads it
// from the request and resolves the referenced user. No cross-request state
// lives here beyond the store itself.
type SessionManager struct {
	secret []byte
	users  repository.UserRepository
}

// NewSessionManager creates a SessionManager signing with the given secret.
// The secret should be at least 32 bytes of random data in production
// (SECRET_KEY=$(openssl rand -hex 32)).
func NewSessionManager(secret string, users repository.UserRepository) (*SessionManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &SessionManager{secret: []byte(secret), users: users}, nil
}

// claims is the session token payload. The standard "sub" claim carries the
// user id, which for this app is the provider's subject id.
type claims struct {
	jwt.RegisteredClaims
}

// Login marks the browser as authenticated for user.
//
// Must only be called after the OAuth handshake has fully verified identity —
// this is the single place a session comes into existence.
//
// The cookie is HttpOnly (no script access) and SameSite=Lax (sent on
// top-level navigations, not cross-site POSTs). Secure should be set behind
// HTTPS; left off for local development, matching the rest of the stack.
func (s *SessionManager) Login(w http.ResponseWriter, user *model.User) error {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("auth: signing session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout clears the session cookie. Idempotent: clearing an absent cookie is
// a no-op, not an error — the browser just gets another deletion header.
func (s *SessionManager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // delete immediately
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// CurrentUser resolves the request's session cookie to an Identity.
//
// Anything short of a valid token referencing an existing user yields
// Anonymous: no cookie, a tampered or expired token, or a user row that has
// been deleted since the token was issued. Only a store failure is an error.
func (s *SessionManager) CurrentUser(r *http.Request) (Identity, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		// http.ErrNoCookie — the browser is simply anonymous
		return Anonymous, nil
	}

	userID, err := s.validate(cookie.Value)
	if err != nil {
		return Anonymous, nil
	}

	user, err := s.users.Get(r.Context(), userID)
	if err != nil {
		return Anonymous, fmt.Errorf("auth: resolving session user %s: %w", userID, err)
	}
	if user == nil {
		// The session is a weak reference: the row is gone, so the session
		// is invalid — never resurrect a user from token claims.
		return Anonymous, nil
	}

	return Authenticated(user), nil
}

// validate parses and verifies a session token, returning the user id from
// the "sub" claim.
//
// jwt.WithValidMethods pins the algorithm to HS256 so a token claiming a
// different (or no) signing method is rejected outright.
func (s *SessionManager) validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("auth: invalid session token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", errors.New("auth: invalid session claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: session token has no subject")
	}

	return c.Subject, nil
}

// Identity is the two-variant "who is making this request" type:
// Authenticated(user) or Anonymous. The user accessor only yields a value on
// the authenticated variant, replacing ad hoc is-logged-in duck typing.
type Identity struct {
	user *model.User
}

// Anonymous is the unauthenticated identity. The zero Identity is Anonymous,
// so a missing context value degrades safely.
var Anonymous = Identity{}

// Authenticated wraps a resolved user in an Identity.
func Authenticated(user *model.User) Identity {
	return Identity{user: user}
}

// IsAuthenticated reports whether the identity carries a user.
func (i Identity) IsAuthenticated() bool {
	return i.user != nil
}

// User returns the authenticated user. ok is false on the Anonymous variant.
func (i Identity) User() (*model.User, bool) {
	return i.user, i.user != nil
}

type contextKey string

const identityKey contextKey = "identity"

// ContextWithIdentity returns a context carrying the given Identity. Used by
// the session middleware; handler tests use it to stand in for a resolved
// session.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the Identity stored by the session
// middleware. Returns Anonymous when no middleware ran.
func IdentityFromContext(ctx context.Context) Identity {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok {
		return Anonymous
	}
	return id
}
