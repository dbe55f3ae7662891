package guard

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jmcleod/campusgate/session"
)

// SessionSource returns the session snapshot for the browser behind r.
type SessionSource func(r *http.Request) session.Session

// Location returns the redirect URL for d, with the original location in the
// from query parameter when one is carried.
func (d Decision) Location() string {
	if d.From == "" {
		return d.Redirect
	}
	return d.Redirect + "?" + url.Values{"from": {d.From}}.Encode()
}

// Page wraps page routes: allowed requests reach next, everything else gets a
// 302 to the decision target.
func Page(g Guard, source SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Evaluate(source(r), r.URL.RequestURI())
			if d.Render() {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, d.Location(), http.StatusFound)
		})
	}
}

// APIError is the JSON body written by API when a request is refused.
type APIError struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
	From     string `json:"from,omitempty"`
}

// API wraps XHR routes with the same evaluation as Page, answering 401 when
// the caller must sign in and 403 otherwise.
func API(g Guard, source SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Evaluate(source(r), r.URL.RequestURI())
			if d.Render() {
				next.ServeHTTP(w, r)
				return
			}
			WriteRefusal(w, d)
		})
	}
}

// WriteRefusal writes the JSON refusal for a redirecting decision.
func WriteRefusal(w http.ResponseWriter, d Decision) {
	status := http.StatusForbidden
	if d.Redirect == LoginPath {
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Error:    string(d.Reason),
		Redirect: d.Redirect,
		From:     d.From,
	})
}
