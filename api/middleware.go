package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/campusgate/internal/uuid"
	"github.com/jmcleod/campusgate/session"
)

type contextKey int

const storeKey contextKey = iota

// browserCookieName holds the random browser ID that namespaces the
// persisted session slots.
const browserCookieName = "campusgate_browser"

const browserCookieLifetime = 180 * 24 * time.Hour

// BrowserMiddleware resolves the browser ID cookie, minting one on first
// contact, and stores the browser's session store on the request context.
func (a *API) BrowserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, fresh := browserID(r)
		if fresh {
			writeBrowserCookie(w, r, id)
		}
		if _, err := r.Cookie(csrfCookieName); err != nil || fresh {
			writeCSRFCookie(w, r)
		}
		ctx := context.WithValue(r.Context(), storeKey, a.sessions.Get(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionSource returns the session of the browser behind r. Requests that
// did not pass through BrowserMiddleware are anonymous.
func (a *API) SessionSource(r *http.Request) session.Session {
	if store := storeFromContext(r.Context()); store != nil {
		return store.Snapshot()
	}
	return session.Session{}
}

// requireAuth rejects anonymous callers with 401.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := a.SessionSource(r)
		if !s.IsAuthenticated || s.User == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func browserID(r *http.Request) (id string, fresh bool) {
	if c, err := r.Cookie(browserCookieName); err == nil && uuid.Valid(c.Value) {
		return c.Value, false
	}
	return uuid.New(), true
}

func writeBrowserCookie(w http.ResponseWriter, r *http.Request, id string) {
	secure := requestIsSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     browserCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(browserCookieLifetime / time.Second),
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}

func storeFromContext(ctx context.Context) *session.Store {
	store, _ := ctx.Value(storeKey).(*session.Store)
	return store
}
