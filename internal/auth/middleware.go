package auth

import (
	"log/slog"
	"net/http"
)

// WithIdentity resolves the session cookie on every request and stores the
// resulting Identity in the request context. It never blocks a request —
// anonymous browsers pass straight through; handlers decide what anonymity
// means for them.
//
// A store failure while resolving the user is the one case that stops the
// request: the session cannot be judged valid or invalid, so the honest
// answer is a 500, not a silent Anonymous.
func WithIdentity(sessions *SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := sessions.CurrentUser(r)
			if err != nil {
				logger.Error("resolving session identity", slog.String("error", err.Error()))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAuth guards routes that only make sense for a logged-in user, such
// as /logout. Anonymous requests are redirected to /login rather than shown
// an error page — the useful next step for a human is always logging in.
//
// Must run after WithIdentity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).IsAuthenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
