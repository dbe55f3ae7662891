package guard

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jmcleod/campusgate/session"
)

// Route binds a path prefix to a guard. A prefix matches the exact path and
// anything below it at a segment boundary: "/admin" matches "/admin" and
// "/admin/users" but not "/administrator".
type Route struct {
	Prefix string
	Guard  Guard
}

// Table resolves a path to the guard of its longest matching prefix.
type Table struct {
	routes []Route
}

// NewTable builds a table from routes. Order does not matter.
func NewTable(routes ...Route) *Table {
	t := &Table{routes: append([]Route(nil), routes...)}
	sort.SliceStable(t.routes, func(i, j int) bool {
		return len(t.routes[i].Prefix) > len(t.routes[j].Prefix)
	})
	return t
}

// Match returns the guard for path and whether any route matched.
func (t *Table) Match(path string) (Guard, bool) {
	for _, rt := range t.routes {
		if path == rt.Prefix || strings.HasPrefix(path, strings.TrimSuffix(rt.Prefix, "/")+"/") {
			return rt.Guard, true
		}
	}
	return nil, false
}

// Evaluate runs the guard matching location's path. Unmatched paths render.
func (t *Table) Evaluate(s session.Session, location string) Decision {
	path := location
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	g, ok := t.Match(path)
	if !ok {
		return Decision{}
	}
	return g.Evaluate(s, location)
}

// Page is the table-wide form of the package-level Page middleware.
func (t *Table) Page(source SessionSource) func(http.Handler) http.Handler {
	return Page(t, source)
}

var allRoles = []session.Role{session.RoleAdmin, session.RoleProfessor, session.RoleStudent}

// DefaultRoutes is the route table of the LMS web client.
func DefaultRoutes() *Table {
	restricted := Anonymous{Restricted: true}
	open := Anonymous{}
	return NewTable(
		Route{Prefix: "/login", Guard: restricted},
		Route{Prefix: "/register", Guard: restricted},
		Route{Prefix: "/forgot-password", Guard: open},
		Route{Prefix: "/reset-password", Guard: open},
		Route{Prefix: UnauthorizedPath, Guard: open},
		Route{Prefix: PendingApprovalPath, Guard: open},

		Route{Prefix: "/dashboard", Guard: NewProtected()},
		Route{Prefix: "/profile", Guard: NewProtected()},

		Route{Prefix: "/admin", Guard: NewProtected(WithRequiredRole(session.RoleAdmin))},
		Route{Prefix: "/professor", Guard: NewProtected(WithAllowedRoles(session.RoleProfessor))},
		Route{Prefix: "/student", Guard: NewProtected(WithAllowedRoles(session.RoleStudent))},

		Route{Prefix: "/courses", Guard: NewProtected(WithAllowedRoles(allRoles...))},
		Route{Prefix: "/enrollments", Guard: NewProtected(WithAllowedRoles(allRoles...))},
		Route{Prefix: "/grades", Guard: NewProtected(WithAllowedRoles(allRoles...))},
		Route{Prefix: "/consultations", Guard: NewProtected(WithAllowedRoles(allRoles...))},
		Route{Prefix: "/attendance", Guard: NewProtected(WithAllowedRoles(session.RoleAdmin, session.RoleProfessor))},
		Route{Prefix: "/payments", Guard: NewProtected(WithAllowedRoles(session.RoleAdmin, session.RoleStudent))},
	)
}
