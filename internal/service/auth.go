// Package service — authentication business logic.
//
// AuthFlow is the state machine behind the three auth endpoints:
//
//	AuthHandler (HTTP) → AuthFlow (protocol sequencing) → Discovery/Client (provider)
//	                                                    → UserRepository (DB)
//
// The handler owns everything cookie-shaped; AuthFlow owns ordering and
// failure semantics: config fetch → token exchange → userinfo fetch → store
// reconcile, strictly in that order, nothing retried, and no partial state —
// a user row is only created and a session only issued after every upstream
// step has succeeded and the email is verified.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avkulikov/weatherhub/internal/apperror"
	"github.com/avkulikov/weatherhub/internal/auth"
	"github.com/avkulikov/weatherhub/internal/metrics"
	"github.com/avkulikov/weatherhub/internal/model"
	"github.com/avkulikov/weatherhub/internal/repository"
)

// AuthFlow orchestrates the login → provider redirect → callback handshake.
type AuthFlow struct {
	discovery *auth.Discovery
	oauth     *auth.Client
	users     repository.UserRepository
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewAuthFlow creates an AuthFlow. All dependencies are injected; there is no
// package-level provider client or credential state.
func NewAuthFlow(
	discovery *auth.Discovery,
	oauth *auth.Client,
	users repository.UserRepository,
	collector *metrics.Collector,
	logger *slog.Logger,
) *AuthFlow {
	return &AuthFlow{
		discovery: discovery,
		oauth:     oauth,
		users:     users,
		collector: collector,
		logger:    logger,
	}
}

// LoginURL performs the first transition: fetch a fresh provider config and
// build the authorization URI the browser should be redirected to.
//
// No server-side state is created for the pending login beyond the state
// value the handler stores in a cookie; the provider holds the handshake
// until it calls back with a code.
func (s *AuthFlow) LoginURL(ctx context.Context, state string) (string, error) {
	provider, err := s.discovery.Fetch(ctx)
	s.collector.RecordProviderRequest("discovery", err)
	if err != nil {
		s.collector.RecordLoginOutcome(metrics.LoginProviderError)
		return "", err
	}

	return s.oauth.AuthCodeURL(provider, state), nil
}

// Callback performs the second transition: exchange the authorization code,
// fetch the profile, reconcile the user row, and return the User the session
// should be issued for.
//
// The returned User always reflects the freshest provider data — and since
// the stored row is refreshed on every login too, store and session agree.
func (s *AuthFlow) Callback(ctx context.Context, code string) (*model.User, error) {
	if code == "" {
		// Malformed callback — reject before any network call.
		s.collector.RecordLoginOutcome(metrics.LoginBadRequest)
		return nil, apperror.ValidationFailed("code", "missing authorization code")
	}

	// Fresh config for this step; the login redirect's fetch is not reused.
	provider, err := s.discovery.Fetch(ctx)
	s.collector.RecordProviderRequest("discovery", err)
	if err != nil {
		s.collector.RecordLoginOutcome(metrics.LoginProviderError)
		return nil, err
	}

	token, err := s.oauth.Exchange(ctx, provider, code)
	s.collector.RecordProviderRequest("token_exchange", err)
	if err != nil {
		// The code is single-use and now burned; the user's retry path is
		// navigating to /login again.
		s.collector.RecordLoginOutcome(metrics.LoginProviderError)
		return nil, err
	}

	info, err := s.oauth.FetchUserinfo(ctx, provider, token)
	s.collector.RecordProviderRequest("userinfo", err)
	if err != nil {
		s.collector.RecordLoginOutcome(metrics.LoginProviderError)
		return nil, err
	}

	if !info.EmailVerified || info.Email == "" {
		// Business-rule rejection, not a system fault. No row, no session.
		s.collector.RecordLoginOutcome(metrics.LoginEmailUnverified)
		return nil, apperror.Forbidden("User email not available or not verified")
	}

	user := &model.User{
		ID:         info.Sub,
		Name:       info.GivenName,
		Email:      info.Email,
		ProfilePic: info.Picture,
	}

	if err := s.reconcile(ctx, user); err != nil {
		s.collector.RecordLoginOutcome(metrics.LoginStoreError)
		return nil, err
	}

	s.logger.Info("user authenticated",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)
	s.collector.RecordLoginOutcome(metrics.LoginSuccess)

	return user, nil
}

// reconcile makes the store agree with the freshly fetched profile: first
// login inserts the row, later logins overwrite the mutable fields.
//
// Two concurrent first logins for the same subject can both observe "absent"
// here. Create is atomic-or-fail, so the loser gets a conflict — which just
// means the row now exists, so the loser falls through to the update path
// instead of failing the user's login.
func (s *AuthFlow) reconcile(ctx context.Context, user *model.User) error {
	existing, err := s.users.Get(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("service/auth: looking up user %s: %w", user.ID, err)
	}

	if existing == nil {
		err := s.users.Create(ctx, user)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, apperror.ErrConflict):
			s.logger.Debug("user created by concurrent login", slog.String("userID", user.ID))
		default:
			return fmt.Errorf("service/auth: creating user %s: %w", user.ID, err)
		}
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return fmt.Errorf("service/auth: refreshing profile for %s: %w", user.ID, err)
	}
	return nil
}
