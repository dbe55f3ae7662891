package api

import (
	"github.com/jmcleod/campusgate/guard"
	"github.com/jmcleod/campusgate/session"
)

// ErrorResponse is the body of every non-2xx JSON answer. Fields carries
// per-field validation messages keyed by JSON name.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
	Tenant   string `json:"tenant,omitempty" validate:"omitempty,max=64"`
}

// SessionResponse is the browser-facing view of a session. Tokens never leave
// the server.
type SessionResponse struct {
	User            *session.User   `json:"user"`
	Tenant          *session.Tenant `json:"tenant"`
	IsAuthenticated bool            `json:"isAuthenticated"`
}

func newSessionResponse(s session.Session) SessionResponse {
	return SessionResponse{
		User:            s.User,
		Tenant:          s.Tenant,
		IsAuthenticated: s.IsAuthenticated,
	}
}

// AccessResponse is the body of GET /access.
type AccessResponse struct {
	Path     string       `json:"path"`
	Allowed  bool         `json:"allowed"`
	Redirect string       `json:"redirect,omitempty"`
	Location string       `json:"location,omitempty"`
	Reason   guard.Reason `json:"reason,omitempty"`
}
