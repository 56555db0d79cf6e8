package handler

// RESPONSE HELPERS:
// This app talks HTML, not JSON — the pages are small server-rendered
// fragments. The helpers here standardise two things:
//   - writeHTML: content type + status + body in the right order
//     (headers must be set before the first Write)
//   - writeError: one place that maps domain errors to HTTP statuses,
//     so handlers never hand-pick status codes
//
// ERROR MAPPING:
// The service layer returns apperror sentinels; this is the only layer that
// knows which HTTP status each one means. Upstream failures become 502 — the
// provider or the weather API failed us, not the client and not this server.

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/avkulikov/weatherhub/internal/apperror"
)

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// writeError maps a domain error to an HTTP status and a short HTML page.
//
// Only the AppError Message is shown to the browser; raw error chains can
// carry upstream response fragments and must stay in the logs.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "An internal error occurred"

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, apperror.ErrUpstream):
			status = http.StatusBadGateway
		default:
			message = "An internal error occurred"
		}
	}

	if status >= http.StatusInternalServerError {
		// AppError.Error() is the user-facing message; the real cause sits in
		// the wrapped chain.
		cause := err.Error()
		if appErr != nil && appErr.Err != nil {
			cause = appErr.Err.Error()
		}
		logger.Error("request failed", slog.Int("status", status), slog.String("error", cause))
	}

	writeHTML(w, status, "<p>"+message+"</p>")
}
