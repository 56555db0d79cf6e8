package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avkulikov/weatherhub/internal/apperror"
	"github.com/avkulikov/weatherhub/internal/auth"
	"github.com/avkulikov/weatherhub/internal/handler"
	"github.com/avkulikov/weatherhub/internal/metrics"
	"github.com/avkulikov/weatherhub/internal/model"
	"github.com/avkulikov/weatherhub/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memoryUserRepo is a minimal in-memory user store for handler tests.
type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*model.User)}
}

func (m *memoryUserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.ID]; exists {
		return apperror.Conflict("user", user.ID)
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memoryUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.ID]; !exists {
		return apperror.NotFound("user", user.ID)
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

// fakeProvider plays identity provider over httptest: discovery document,
// token endpoint, userinfo endpoint, plus a total request counter so tests
// can assert that rejected callbacks never touch the network.
type fakeProvider struct {
	srv      *httptest.Server
	mu       sync.Mutex
	requests int
	userinfo string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		userinfo: `{"sub": "u1", "email": "ann@example.com", "email_verified": true, "given_name": "Ann", "picture": "https://img.example.com/ann.png"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		p.bump()
		base := p.srv.URL
		w.Write([]byte(`{
			"authorization_endpoint": "` + base + `/auth",
			"token_endpoint": "` + base + `/token",
			"userinfo_endpoint": "` + base + `/info"
		}`))
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.bump()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "tok-abc", "token_type": "Bearer", "expires_in": 3600}`))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		p.bump()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(p.userinfo))
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) bump() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
}

func (p *fakeProvider) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

func newAuthHandler(t *testing.T, provider *fakeProvider, repo *memoryUserRepo) (*handler.AuthHandler, *auth.SessionManager) {
	t.Helper()
	discovery := auth.NewDiscovery(provider.srv.URL+"/.well-known/openid-configuration", time.Second)
	client := auth.NewClient("client-id", "client-secret", "http://localhost:8080/login/callback", time.Second)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	flow := service.NewAuthFlow(discovery, client, repo, collector, testLogger())
	sessions, err := auth.NewSessionManager("test-secret-at-least-16-chars", repo)
	require.NoError(t, err)
	return handler.NewAuthHandler(flow, sessions, testLogger()), sessions
}

func findCookie(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_HandleLogin(t *testing.T) {
	provider := newFakeProvider(t)
	h, _ := newAuthHandler(t, provider, newMemoryUserRepo())

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rr := httptest.NewRecorder()

	h.HandleLogin(rr, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	state := findCookie(t, rr, "oauth_state")
	require.NotNil(t, state, "login must set the state cookie")
	assert.NotEmpty(t, state.Value)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, 600, state.MaxAge)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc.Path, "/auth"), "redirect goes to the discovered authorization endpoint")
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))
	assert.Equal(t, "openid email profile", loc.Query().Get("scope"))
	assert.Equal(t, state.Value, loc.Query().Get("state"), "state in the URL must match the cookie")
	assert.True(t, strings.HasSuffix(loc.Query().Get("redirect_uri"), "/login/callback"))
}

func TestAuthHandler_HandleCallback(t *testing.T) {
	t.Run("missing state cookie", func(t *testing.T) {
		provider := newFakeProvider(t)
		h, _ := newAuthHandler(t, provider, newMemoryUserRepo())

		req := httptest.NewRequest(http.MethodGet, "/login/callback?code=abc&state=s1", nil)
		rr := httptest.NewRecorder()

		h.HandleCallback(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid login state")
		assert.Equal(t, 0, provider.totalCalls())
	})

	t.Run("state mismatch", func(t *testing.T) {
		provider := newFakeProvider(t)
		h, _ := newAuthHandler(t, provider, newMemoryUserRepo())

		req := httptest.NewRequest(http.MethodGet, "/login/callback?code=abc&state=evil", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
		rr := httptest.NewRecorder()

		h.HandleCallback(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid login state")
		assert.Equal(t, 0, provider.totalCalls())
	})

	t.Run("authorization denied", func(t *testing.T) {
		provider := newFakeProvider(t)
		h, _ := newAuthHandler(t, provider, newMemoryUserRepo())

		req := httptest.NewRequest(http.MethodGet, "/login/callback?error=access_denied&state=s1", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
		rr := httptest.NewRecorder()

		h.HandleCallback(rr, req)

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/?auth=denied", rr.Header().Get("Location"))
		assert.Equal(t, 0, provider.totalCalls())

		cleared := findCookie(t, rr, "oauth_state")
		require.NotNil(t, cleared)
		assert.Equal(t, -1, cleared.MaxAge, "state cookie is single-use")
	})

	t.Run("missing code makes no provider calls", func(t *testing.T) {
		provider := newFakeProvider(t)
		h, _ := newAuthHandler(t, provider, newMemoryUserRepo())

		req := httptest.NewRequest(http.MethodGet, "/login/callback?state=s1", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
		rr := httptest.NewRecorder()

		h.HandleCallback(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Missing authorization code")
		assert.Equal(t, 0, provider.totalCalls())
	})

	t.Run("successful login sets session and redirects home", func(t *testing.T) {
		provider := newFakeProvider(t)
		repo := newMemoryUserRepo()
		h, _ := newAuthHandler(t, provider, repo)

		req := httptest.NewRequest(http.MethodGet, "/login/callback?code=abc&state=s1", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
		rr := httptest.NewRecorder()

		h.HandleCallback(rr, req)

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/", rr.Header().Get("Location"))

		session := findCookie(t, rr, "session")
		require.NotNil(t, session, "callback must set the session cookie")
		assert.NotEmpty(t, session.Value)
		assert.True(t, session.HttpOnly)

		user, err := repo.Get(context.Background(), "u1")
		require.NoError(t, err)
		require.NotNil(t, user, "first login must create the user row")
		assert.Equal(t, "Ann", user.Name)
		assert.Equal(t, "ann@example.com", user.Email)
	})

	t.Run("unverified email gets 403 and no session", func(t *testing.T) {
		provider := newFakeProvider(t)
		provider.userinfo = `{"sub": "u1", "email": "ann@example.com", "email_verified": false, "given_name": "Ann"}`
		repo := newMemoryUserRepo()
		h, _ := newAuthHandler(t, provider, repo)

		req := httptest.NewRequest(http.MethodGet, "/login/callback?code=abc&state=s1", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
		rr := httptest.NewRecorder()

		h.HandleCallback(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Contains(t, rr.Body.String(), "User email not available or not verified")
		assert.Nil(t, findCookie(t, rr, "session"))

		user, err := repo.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.Nil(t, user, "rejected login must not create a user")
	})
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	provider := newFakeProvider(t)
	h, _ := newAuthHandler(t, provider, newMemoryUserRepo())

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	rr := httptest.NewRecorder()

	h.HandleLogout(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	session := findCookie(t, rr, "session")
	require.NotNil(t, session)
	assert.Equal(t, -1, session.MaxAge, "logout must clear the session cookie")
	assert.Empty(t, session.Value)
}

// A full round trip: callback issues a cookie the session middleware then
// resolves back to the same user.
func TestAuthHandler_SessionRoundTrip(t *testing.T) {
	provider := newFakeProvider(t)
	repo := newMemoryUserRepo()
	h, sessions := newAuthHandler(t, provider, repo)

	req := httptest.NewRequest(http.MethodGet, "/login/callback?code=abc&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s1"})
	rr := httptest.NewRecorder()
	h.HandleCallback(rr, req)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	session := findCookie(t, rr, "session")
	require.NotNil(t, session)

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(session)
	identity, err := sessions.CurrentUser(next)
	require.NoError(t, err)
	user, ok := identity.User()
	require.True(t, ok, "session cookie must resolve to an authenticated identity")
	assert.Equal(t, "u1", user.ID)
}
