package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avkulikov/weatherhub/internal/apperror"
)

// ProviderConfig is the slice of the OIDC discovery document this app uses.
// The provider publishes a much larger document — we only decode the three
// endpoints the authorization-code flow touches.
type ProviderConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// Discovery fetches the provider's well-known discovery document.
//
// FRESHNESS:
// Fetch performs a real network GET on every call — the result is never
// cached. Both the login redirect and the callback fetch their own copy, so
// a provider endpoint rotation between the two steps is picked up rather
// than causing a stale-endpoint exchange.
type Discovery struct {
	url    string
	client *http.Client
}

// NewDiscovery creates a Discovery for the given well-known URL. Every fetch
// is bounded by timeout; the provider being slow must not hang a login
// request indefinitely.
func NewDiscovery(url string, timeout time.Duration) *Discovery {
	return &Discovery{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves and validates the discovery document.
//
// Failure modes, both surfaced as 502-equivalents and never retried here:
//   - network/timeout/non-2xx → "provider discovery" upstream error
//   - a 2xx response missing any required endpoint → malformed-config error
func (d *Discovery) Fetch(ctx context.Context) (*ProviderConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building discovery request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperror.Upstream("provider discovery", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Upstream("provider discovery",
			fmt.Errorf("status %d from %s", resp.StatusCode, d.url))
	}

	var cfg ProviderConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, apperror.Upstream("provider discovery",
			fmt.Errorf("decoding discovery document: %w", err))
	}

	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" || cfg.UserinfoEndpoint == "" {
		return nil, apperror.Upstream("provider discovery",
			fmt.Errorf("discovery document from %s is missing required endpoints", d.url))
	}

	return &cfg, nil
}
