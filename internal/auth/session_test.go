package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/avkulikov/weatherhub/internal/model"
)

// fakeUserRepo is an in-memory repository.UserRepository. A fake, not a mock
// framework — you can see exactly what it does.
type fakeUserRepo struct {
	users  map[string]*model.User
	getErr error // set to simulate a store failure
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

const testSecret = "test-secret-at-least-16-chars!!"

func newTestSessionManager(t *testing.T, repo *fakeUserRepo) *SessionManager {
	t.Helper()
	s, err := NewSessionManager(testSecret, repo)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return s
}

// loginRequest performs Login and returns a request carrying the resulting
// session cookie, the way a browser would send it back.
func loginRequest(t *testing.T, s *SessionManager, user *model.User) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := s.Login(rec, user); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Login set %d cookies, want 1", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	return req
}

func TestNewSessionManager_ShortSecret(t *testing.T) {
	if _, err := NewSessionManager("short", newFakeUserRepo()); err == nil {
		t.Fatal("NewSessionManager should reject a short secret")
	}
}

func TestLoginThenCurrentUser(t *testing.T) {
	repo := newFakeUserRepo()
	user := &model.User{ID: "u1", Name: "Ann", Email: "a@b.com"}
	repo.Create(context.Background(), user)

	s := newTestSessionManager(t, repo)
	req := loginRequest(t, s, user)

	identity, err := s.CurrentUser(req)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if !identity.IsAuthenticated() {
		t.Fatal("identity should be authenticated after login")
	}

	got, ok := identity.User()
	if !ok || got.ID != "u1" {
		t.Errorf("User() = (%+v, %v), want u1", got, ok)
	}
}

func TestLoginCookieAttributes(t *testing.T) {
	s := newTestSessionManager(t, newFakeUserRepo())
	rec := httptest.NewRecorder()
	if err := s.Login(rec, &model.User{ID: "u1"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	cookie := rec.Result().Cookies()[0]
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Error("session cookie must be SameSite=Lax")
	}
	if cookie.MaxAge != 0 {
		t.Errorf("MaxAge = %d, want 0 (browser-session cookie)", cookie.MaxAge)
	}
}

func TestCurrentUser_NoCookie(t *testing.T) {
	s := newTestSessionManager(t, newFakeUserRepo())
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	identity, err := s.CurrentUser(req)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if identity.IsAuthenticated() {
		t.Error("no cookie should resolve to Anonymous")
	}
}

func TestCurrentUser_TamperedToken(t *testing.T) {
	s := newTestSessionManager(t, newFakeUserRepo())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "not.a.token"})

	identity, err := s.CurrentUser(req)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if identity.IsAuthenticated() {
		t.Error("a tampered token should resolve to Anonymous")
	}
}

func TestCurrentUser_DeletedUser(t *testing.T) {
	repo := newFakeUserRepo()
	user := &model.User{ID: "u1", Name: "Ann"}
	repo.Create(context.Background(), user)

	s := newTestSessionManager(t, repo)
	req := loginRequest(t, s, user)

	// Delete the row: the session is a weak reference and must go Anonymous,
	// not resurrect the user from the token claims.
	delete(repo.users, "u1")

	identity, err := s.CurrentUser(req)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if identity.IsAuthenticated() {
		t.Error("a session for a deleted user should resolve to Anonymous")
	}
}

func TestCurrentUser_StoreFailure(t *testing.T) {
	repo := newFakeUserRepo()
	user := &model.User{ID: "u1"}
	repo.Create(context.Background(), user)

	s := newTestSessionManager(t, repo)
	req := loginRequest(t, s, user)
	repo.getErr = errors.New("disk on fire")

	if _, err := s.CurrentUser(req); err == nil {
		t.Fatal("a store failure must surface as an error, not Anonymous")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newTestSessionManager(t, newFakeUserRepo())

	rec := httptest.NewRecorder()
	s.Logout(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("Logout set %d cookies, want 1", len(cookies))
	}
	if cookies[0].MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1 (delete)", cookies[0].MaxAge)
	}
	if cookies[0].Value != "" {
		t.Errorf("Value = %q, want empty", cookies[0].Value)
	}

	// Idempotent: a second logout is a no-op, not an error.
	s.Logout(httptest.NewRecorder())
}

func TestIdentityFromContext_Default(t *testing.T) {
	identity := IdentityFromContext(context.Background())
	if identity.IsAuthenticated() {
		t.Error("missing context value should yield Anonymous")
	}
	if _, ok := identity.User(); ok {
		t.Error("Anonymous.User() should report ok=false")
	}
}

func TestWithIdentityMiddleware(t *testing.T) {
	repo := newFakeUserRepo()
	user := &model.User{ID: "u1", Name: "Ann"}
	repo.Create(context.Background(), user)

	s := newTestSessionManager(t, repo)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	var seen Identity
	handler := WithIdentity(s, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), loginRequest(t, s, user))

	if !seen.IsAuthenticated() {
		t.Fatal("middleware should expose the authenticated identity")
	}
	if got, _ := seen.User(); got.ID != "u1" {
		t.Errorf("identity user = %q, want u1", got.ID)
	}
}

func TestRequireAuth_RedirectsAnonymous(t *testing.T) {
	called := false
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logout", nil))

	if called {
		t.Error("protected handler must not run for anonymous requests")
	}
	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); got != "/login" {
		t.Errorf("Location = %q, want /login", got)
	}
}

func TestRequireAuth_PassesAuthenticated(t *testing.T) {
	called := false
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	ctx := context.WithValue(req.Context(), identityKey, Authenticated(&model.User{ID: "u1"}))
	handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

	if !called {
		t.Error("protected handler should run for authenticated requests")
	}
}
