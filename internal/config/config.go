// Package config loads the process configuration from environment variables.
//
// The whole configuration is read once at startup into an immutable struct
// and passed explicitly into the components that need it — there is no
// ambient singleton holding provider credentials.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server needs at startup.
//
// GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET are required: a missing credential
// must fail the process at startup, not surface at the first login attempt.
type Config struct {
	Port    int    `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"BASE_URL"` // external URL of this service; defaults to http://localhost:<port>
	DBPath  string `env:"DB_PATH" envDefault:"data/weatherhub.db"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	DiscoveryURL       string `env:"GOOGLE_DISCOVERY_URL" envDefault:"https://accounts.google.com/.well-known/openid-configuration"`

	// SessionSecret signs the session cookie. When unset, a random secret is
	// generated per process start — existing sessions are then invalidated by
	// a restart, which Load reports via GeneratedSecret so main can warn.
	SessionSecret string `env:"SECRET_KEY"`

	OpenWeatherAPIKey string `env:"API_KEY"`
	GeocoderUserAgent string `env:"GEOCODER_USER_AGENT" envDefault:"weatherhub"`

	// UpstreamTimeout bounds every call to the identity provider, the
	// geocoder, and the weather API. The original design had no timeout at
	// all; a hung provider would hang the login request with it.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"5s"`

	// GeneratedSecret is true when SessionSecret was not supplied and Load
	// minted one. Not an env field.
	GeneratedSecret bool `env:"-"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	if cfg.GoogleClientID == "" {
		return nil, errors.New("config: GOOGLE_CLIENT_ID is required")
	}
	if cfg.GoogleClientSecret == "" {
		return nil, errors.New("config: GOOGLE_CLIENT_SECRET is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("config: generating session secret: %w", err)
		}
		cfg.SessionSecret = secret
		cfg.GeneratedSecret = true
	}

	return cfg, nil
}

// randomSecret returns 32 bytes of randomness, hex-encoded. Matches what
// you'd get from `openssl rand -hex 32`.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
