package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/campusgate/guard"
	"github.com/jmcleod/campusgate/session"
)

// lmsResources are the backend collections proxied under /lms. Each is
// guarded by the route table entry of the same name.
var lmsResources = map[string]bool{
	"courses":       true,
	"enrollments":   true,
	"grades":        true,
	"attendance":    true,
	"consultations": true,
	"payments":      true,
}

// GetSession returns the browser's current session without tokens.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(a.SessionSource(r)))
}

// UpdateUser applies a profile edit. Role, status, approval and tenant are
// not the user's to change and are dropped from the patch.
func (a *API) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch session.UserPatch
	if !decodeAndValidate(w, r, &patch) {
		return
	}
	patch = patch.ProfileOnly()
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "no profile fields to update")
		return
	}

	store := storeFromContext(r.Context())
	s, err := a.backend.UpdateProfile(r.Context(), store, patch)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	if s.User != nil {
		a.audit.logEvent(AuditProfileUpdated, r, s.User.ID, nil)
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// Access reports what the route guards decide for an SPA path, so the
// client can render or redirect without duplicating the rules.
func (a *API) Access(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		writeError(w, http.StatusBadRequest, "path must be an absolute application path")
		return
	}

	d := a.routes.Evaluate(a.SessionSource(r), path)
	resp := AccessResponse{
		Path:     path,
		Allowed:  d.Render(),
		Redirect: d.Redirect,
		Reason:   d.Reason,
	}
	if !d.Render() {
		resp.Location = d.Location()
	}
	writeJSON(w, http.StatusOK, resp)
}

// LMSResource proxies a read of an LMS collection to the backend, applying
// the same role rules as the matching SPA page.
func (a *API) LMSResource(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	if !lmsResources[resource] {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}

	store := storeFromContext(r.Context())
	page := "/" + resource
	path := page
	if q := r.URL.RawQuery; q != "" {
		path += "?" + q
	}
	if g, ok := a.routes.Match(page); ok {
		// The login page returns to the SPA page, not to this endpoint.
		d := g.Evaluate(store.Snapshot(), path)
		if !d.Render() {
			if d.Reason == guard.ReasonUnauthorized {
				a.audit.logFailure(AuditAccessDenied, r, resource)
			}
			guard.WriteRefusal(w, d)
			return
		}
	}

	data, err := a.backend.Get(r.Context(), store, path)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
