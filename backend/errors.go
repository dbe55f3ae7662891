package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired is returned when the refresh token is no longer
	// accepted. The session has been cleared by the time it is returned.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated is returned for authenticated calls on an anonymous session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// StatusError carries an unexpected non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

// StatusCode returns the HTTP status of err if it is a *StatusError, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
