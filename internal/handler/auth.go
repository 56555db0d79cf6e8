package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/avkulikov/weatherhub/internal/auth"
	"github.com/avkulikov/weatherhub/internal/service"
)

// stateCookie carries the anti-CSRF state value between the login redirect
// and the callback. Ten minutes is long enough for the user to approve the
// request at the provider, short enough to limit replay exposure.
const stateCookie = "oauth_state"

// AuthHandler binds the three auth endpoints to the flow state machine.
//
//   - HandleLogin    → GET /login           redirect to the provider
//   - HandleCallback → GET /login/callback  complete the handshake, set session
//   - HandleLogout   → GET /logout          clear session (RequireAuth-guarded)
//
// The handler owns everything cookie-shaped (state cookie, session cookie via
// SessionManager); protocol sequencing lives in service.AuthFlow.
type AuthHandler struct {
	flow     *service.AuthFlow
	sessions *auth.SessionManager
	logger   *slog.Logger
}

func NewAuthHandler(flow *service.AuthFlow, sessions *auth.SessionManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		flow:     flow,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleLogin starts the handshake: generate a random state value, remember
// it in a short-lived cookie, and redirect the browser to the provider's
// authorization page.
//
// The state value is what lets the callback prove it belongs to a login this
// server started — without it, an attacker could complete an OAuth flow in
// the victim's browser for the attacker's account.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	authURL, err := h.flow.LoginURL(r.Context(), state)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// HandleCallback completes the handshake.
//
// Order matters: state check and code presence are verified before anything
// touches the network, so a malformed callback costs zero provider calls.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeHTML(w, http.StatusBadRequest, "<p>Invalid login state</p>")
		return
	}

	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeHTML(w, http.StatusBadRequest, "<p>Invalid login state</p>")
		return
	}

	// Single-use — clear it whatever happens next.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// The provider reports "user said no" as an error query parameter.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeHTML(w, http.StatusBadRequest, "<p>Missing authorization code</p>")
		return
	}

	user, err := h.flow.Callback(r.Context(), code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Identity fully verified — only now does a session come into existence.
	if err := h.sessions.Login(w, user); err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session and returns to the landing page. The route
// is wrapped in auth.RequireAuth, so anonymous requests never get here.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
