package api

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess     AuditEvent = "login_success"
	AuditLoginFailure     AuditEvent = "login_failure"
	AuditLoginRateLimited AuditEvent = "login_rate_limited"
	AuditLogout           AuditEvent = "logout"
	AuditRefreshFailure   AuditEvent = "refresh_failure"
	AuditProfileUpdated   AuditEvent = "profile_updated"
	AuditAccessDenied     AuditEvent = "access_denied"
)

// auditLogger writes security audit events as zerolog entries tagged
// component=audit.
type auditLogger struct {
	logger  zerolog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger zerolog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// log writes one audit entry. Emails, passwords and tokens never go in fields;
// users are identified by their backend ID.
func (al *auditLogger) log(event AuditEvent, r *http.Request, fields map[string]any) {
	al.logger.Info().
		Str("event", string(event)).
		Str("remote_addr", r.RemoteAddr).
		Str("request_id", chimw.GetReqID(r.Context())).
		Fields(fields).
		Msg("audit")
	al.metrics.recordEvent(event)
}

// logEvent is a convenience for events with a known user.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, userID string, extra map[string]any) {
	fields := map[string]any{"user_id": userID}
	for k, v := range extra {
		fields[k] = v
	}
	al.log(event, r, fields)
}

// logFailure logs a refused or failed action.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string) {
	al.log(event, r, map[string]any{"reason": reason})
}
