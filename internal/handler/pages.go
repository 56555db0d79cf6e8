// Package handler contains the HTTP request handlers: the auth endpoints,
// the informational pages, and the weather pages.
//
// The pages are deliberately plain — small server-rendered HTML fragments,
// no client-side code. html/template is still used for anything that
// interpolates user- or provider-supplied values (names, emails, picture
// URLs), so those are escaped rather than spliced into markup.
package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mileusna/useragent"

	"github.com/avkulikov/weatherhub/internal/auth"
)

var indexAuthenticated = template.Must(template.New("index").Parse(`<p>Hello, {{.Name}}! You're logged in! Email: {{.Email}}</p>
<div><p>Profile Picture:</p>
<img src="{{.ProfilePic}}" alt="profile pic"></div>
<p><a class="button" href="/logout">Logout</a></p>
<p><a class="button" href="/about">Info about login</a></p>
<p><a class="button" href="/useragent">Info about OS and Browser</a></p>
<p><a class="button" href="/list/">Weather for 7 days</a></p>
<p><a class="button" href="/weather/">Weather on a particular day</a></p>`))

var aboutPage = template.Must(template.New("about").Parse(`<p>Name: {{.Name}}</p>
<p>Email: {{.Email}}</p>
<div><p>Profile Picture:</p>
<img src="{{.ProfilePic}}" alt="profile pic"></div>`))

var userAgentPage = template.Must(template.New("useragent").Parse(`<p>OS name: {{.OS}}</p>
<p>Browser: {{.Browser}}</p>`))

// PageHandler serves the informational pages: landing, about, useragent.
type PageHandler struct {
	logger *slog.Logger
}

func NewPageHandler(logger *slog.Logger) *PageHandler {
	return &PageHandler{logger: logger}
}

// HandleIndex is the landing page: a greeting with navigation when logged
// in, a login link otherwise.
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	user, ok := identity.User()
	if !ok {
		writeHTML(w, http.StatusOK, `<a class="button" href="/login">Login</a>`)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexAuthenticated.Execute(w, user); err != nil {
		h.logger.Error("rendering index", slog.String("error", err.Error()))
	}
}

// HandleAbout shows the current user's profile fields.
func (h *PageHandler) HandleAbout(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.IdentityFromContext(r.Context()).User()
	if !ok {
		writeHTML(w, http.StatusOK, `<p>Login first, please.</p>`)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := aboutPage.Execute(w, user); err != nil {
		h.logger.Error("rendering about", slog.String("error", err.Error()))
	}
}

// HandleUserAgent reports what the User-Agent header says about the visiting
// browser and its operating system.
func (h *PageHandler) HandleUserAgent(w http.ResponseWriter, r *http.Request) {
	raw := r.UserAgent()
	ua := useragent.Parse(raw)

	browser := ua.Name
	if browser == "" {
		// Unparseable agent string — fall back to its product token, the
		// part before the first slash.
		browser, _, _ = strings.Cut(raw, "/")
	}

	osName := ua.OS
	if osName == "" {
		osName = "unknown"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		OS      string
		Browser string
	}{OS: osName, Browser: browser}
	if err := userAgentPage.Execute(w, data); err != nil {
		h.logger.Error("rendering useragent", slog.String("error", err.Error()))
	}
}
