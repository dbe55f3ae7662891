package api

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/jmcleod/campusgate/backend"
)

var foldCase = cases.Fold()

// limiterKey normalises an email so that case and Unicode variants of one
// address share a rate-limit record.
func limiterKey(email string) string {
	return foldCase.String(norm.NFKC.String(strings.TrimSpace(email)))
}

// Login exchanges credentials with the backend and stores the resulting
// session for this browser.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	email := limiterKey(req.Email)
	ip := clientIP(r)
	if blocked, retryAfter := a.accountLimiter.check(email); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "account locked out")
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.ipLimiter.check(ip); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "client locked out")
		writeRateLimited(w, retryAfter)
		return
	}

	store := storeFromContext(r.Context())
	s, err := a.backend.Login(r.Context(), store, backend.Credentials{
		Email:    req.Email,
		Password: req.Password,
		Tenant:   req.Tenant,
	})
	if errors.Is(err, backend.ErrInvalidCredentials) {
		a.accountLimiter.recordFailure(email)
		a.ipLimiter.recordFailure(ip)
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		a.mapError(w, r, err)
		return
	}

	a.accountLimiter.recordSuccess(email)
	a.ipLimiter.recordSuccess(ip)
	a.audit.logEvent(AuditLoginSuccess, r, s.User.ID, map[string]any{
		"role":      string(s.User.Role),
		"tenant_id": store.TenantID(),
	})
	writeCSRFCookie(w, r)
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// Logout revokes the refresh token upstream when possible and always clears
// the local session.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	store := storeFromContext(r.Context())
	if s := store.Snapshot(); s.User != nil {
		a.audit.logEvent(AuditLogout, r, s.User.ID, nil)
	}
	a.backend.Logout(r.Context(), store)
	writeCSRFCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh rotates the token pair. A rejected refresh token ends the session.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	store := storeFromContext(r.Context())
	if err := a.backend.Refresh(r.Context(), store); err != nil {
		if errors.Is(err, backend.ErrSessionExpired) {
			a.audit.logFailure(AuditRefreshFailure, r, "refresh token rejected")
		}
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(store.Snapshot()))
}
