package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/avkulikov/weatherhub/internal/apperror"
)

// Userinfo is the portion of the provider's userinfo response we care about.
//
// EmailVerified gates account creation: the flow refuses to create or log in
// a user whose email the provider has not verified, because the email is the
// only human-recognizable identity we store.
type Userinfo struct {
	Sub           string `json:"sub"`            // stable subject identifier — our primary key
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	Picture       string `json:"picture"` // hosted profile picture URL
}

// Client wraps golang.org/x/oauth2 for the authorization-code flow against a
// single configured provider.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. Our server redirects the user to the provider's authorization endpoint,
//     with our ClientID and the requested scopes.
//  2. The user approves the request at the provider.
//  3. The provider redirects back to <base>/login/callback with a short-lived
//     single-use "code".
//  4. Our server exchanges the code for an access token, server-to-server,
//     authenticating with the client secret.
//  5. Our server uses the access token to fetch the userinfo document.
//
// Unlike the usual x/oauth2 setup, there is no package-level endpoint preset
// here: the endpoints come from a freshly fetched ProviderConfig on every
// call, so the Client itself is stateless apart from the credentials.
//
// The client secret never leaves this type — it is used only inside Exchange
// and must not appear in logs or responses.
type Client struct {
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
}

// Scopes requested from the provider. openid+email+profile is the minimal
// set that yields a subject id, a verified email, a given name and a picture.
var scopes = []string{"openid", "email", "profile"}

// NewClient creates a Client with the given credentials. redirectURL must
// exactly match the callback URL registered with the provider,
// e.g. "http://localhost:8080/login/callback". All token and userinfo calls
// are bounded by timeout.
func NewClient(clientID, clientSecret, redirectURL string, timeout time.Duration) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// AuthCodeURL builds the provider authorization URI for the given discovered
// endpoints and anti-CSRF state value. Pure construction — no network call.
func (c *Client) AuthCodeURL(provider *ProviderConfig, state string) string {
	return c.oauthConfig(provider).AuthCodeURL(state)
}

// Exchange trades the authorization code for an access token.
//
// The code is single-use: if this fails the provider has very likely burned
// the code, so the error is surfaced and never retried with the same code —
// the user's retry path is navigating to /login again.
func (c *Client) Exchange(ctx context.Context, provider *ProviderConfig, code string) (*oauth2.Token, error) {
	token, err := c.oauthConfig(provider).Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, apperror.Upstream("token exchange", err)
	}
	return token, nil
}

// FetchUserinfo performs the authenticated GET against the discovered
// userinfo endpoint.
//
// oauth2.Config.Client returns an *http.Client that adds the
// "Authorization: Bearer <token>" header to every request.
func (c *Client) FetchUserinfo(ctx context.Context, provider *ProviderConfig, token *oauth2.Token) (*Userinfo, error) {
	client := c.oauthConfig(provider).Client(c.withHTTPClient(ctx), token)

	resp, err := client.Get(provider.UserinfoEndpoint)
	if err != nil {
		return nil, apperror.Upstream("userinfo fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Upstream("userinfo fetch",
			fmt.Errorf("status %d from %s", resp.StatusCode, provider.UserinfoEndpoint))
	}

	var info Userinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, apperror.Upstream("userinfo fetch",
			fmt.Errorf("decoding userinfo response: %w", err))
	}

	if info.Sub == "" {
		return nil, apperror.Upstream("userinfo fetch",
			fmt.Errorf("userinfo response has no subject"))
	}

	return &info, nil
}

// oauthConfig assembles an oauth2.Config from the freshly discovered
// endpoints. Built per call on purpose — holding one across calls would
// reintroduce the cached-endpoint staleness the discovery layer avoids.
func (c *Client) oauthConfig(provider *ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  c.redirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.AuthorizationEndpoint,
			TokenURL: provider.TokenEndpoint,
		},
	}
}

// withHTTPClient makes x/oauth2 use our timeout-bounded client instead of
// http.DefaultClient. The library looks the client up in the context.
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
