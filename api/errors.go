package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/campusgate/backend"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError translates backend client errors into responses. Backend 4xx
// answers pass through with their status; everything else is a gateway error
// and gets logged.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, backend.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, backend.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, backend.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is listening.
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "backend timed out")
		return
	}

	if code := backend.StatusCode(err); code >= 400 && code < 500 {
		writeError(w, code, http.StatusText(code))
		return
	}

	a.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("backend request failed")
	writeError(w, http.StatusBadGateway, "backend unavailable")
}
