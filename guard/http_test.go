package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/campusgate/session"
)

func fixedSource(s session.Session) SessionSource {
	return func(*http.Request) session.Session { return s }
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("page"))
})

func TestDecisionLocation(t *testing.T) {
	assert.Equal(t, "/unauthorized", Decision{Redirect: "/unauthorized"}.Location())
	assert.Equal(t, "/login?from=%2Fcourses%3Fpage%3D2",
		Decision{Redirect: "/login", From: "/courses?page=2"}.Location())
}

func TestPage_RendersWhenAllowed(t *testing.T) {
	h := Page(NewProtected(), fixedSource(authed(session.RoleStudent, session.StatusActive, false)))(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page", rec.Body.String())
}

func TestPage_RedirectsAnonymousToLoginWithFrom(t *testing.T) {
	h := Page(NewProtected(), fixedSource(session.Session{}))(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses/7?tab=grades", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?from=%2Fcourses%2F7%3Ftab%3Dgrades", rec.Header().Get("Location"))
}

func TestPage_RedirectsSignedInAwayFromLogin(t *testing.T) {
	h := Page(Anonymous{Restricted: true}, fixedSource(authed(session.RoleAdmin, session.StatusActive, false)))(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestAPI_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		session  session.Session
		guard    Guard
		status   int
		errorStr string
	}{
		{"anonymous", session.Session{}, NewProtected(), http.StatusUnauthorized, "unauthenticated"},
		{"wrong role", authed(session.RoleStudent, session.StatusActive, false),
			NewProtected(WithRequiredRole(session.RoleAdmin)), http.StatusForbidden, "unauthorized"},
		{"pending", authed(session.RoleAdmin, session.StatusPending, true),
			NewProtected(), http.StatusForbidden, "pending_approval"},
		{"allowed", authed(session.RoleAdmin, session.StatusActive, false),
			NewProtected(), http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := API(tt.guard, fixedSource(tt.session))(okHandler)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lms/courses", nil))

			require.Equal(t, tt.status, rec.Code)
			if tt.errorStr == "" {
				return
			}
			var body APIError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.errorStr, body.Error)
		})
	}
}
