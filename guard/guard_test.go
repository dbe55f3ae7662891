package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmcleod/campusgate/session"
)

func authed(role session.Role, status session.AccountStatus, pending bool) session.Session {
	return session.Session{
		IsAuthenticated: true,
		User: &session.User{
			ID:              "u1",
			Role:            role,
			Status:          status,
			PendingApproval: pending,
		},
		AccessToken: "a",
	}
}

var statuses = []session.AccountStatus{
	session.StatusActive, session.StatusPending, session.StatusSuspended, session.StatusInactive,
}

// constraintSets enumerates the role constraints a caller can configure.
func constraintSets() map[string][]Option {
	sets := map[string][]Option{"none": nil}
	for _, r := range session.Roles {
		sets["required="+string(r)] = []Option{WithRequiredRole(r)}
		sets["allowed="+string(r)] = []Option{WithAllowedRoles(r)}
	}
	sets["allowed=admin,professor"] = []Option{WithAllowedRoles(session.RoleAdmin, session.RoleProfessor)}
	sets["required=admin,allowed=all"] = []Option{
		WithRequiredRole(session.RoleAdmin),
		WithAllowedRoles(session.Roles...),
	}
	return sets
}

func TestProtected_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		session session.Session
		opts    []Option
		want    Decision
	}{
		{
			name:    "student blocked from admin-only route",
			session: authed(session.RoleStudent, session.StatusActive, false),
			opts:    []Option{WithAllowedRoles(session.RoleAdmin)},
			want:    Decision{Redirect: "/unauthorized", Reason: ReasonUnauthorized},
		},
		{
			name:    "student allowed on student route",
			session: authed(session.RoleStudent, session.StatusActive, false),
			opts:    []Option{WithAllowedRoles(session.RoleStudent)},
			want:    Decision{},
		},
		{
			name:    "pending admin passes role check then hits approval",
			session: authed(session.RoleAdmin, session.StatusPending, true),
			opts:    []Option{WithRequiredRole(session.RoleAdmin)},
			want:    Decision{Redirect: "/pending-approval", Reason: ReasonPendingApproval},
		},
		{
			name:    "anonymous sent to login with location",
			session: session.Session{},
			opts:    []Option{WithRequiredRole(session.RoleAdmin)},
			want:    Decision{Redirect: "/login", From: "/admin/users", Reason: ReasonUnauthenticated},
		},
		{
			name:    "authenticated without user sent to login without location",
			session: session.Session{IsAuthenticated: true},
			want:    Decision{Redirect: "/login", Reason: ReasonNoUser},
		},
		{
			name:    "wrong required role",
			session: authed(session.RoleProfessor, session.StatusActive, false),
			opts:    []Option{WithRequiredRole(session.RoleAdmin)},
			want:    Decision{Redirect: "/unauthorized", Reason: ReasonUnauthorized},
		},
		{
			name:    "required role matches but allowed set excludes it",
			session: authed(session.RoleAdmin, session.StatusActive, false),
			opts:    []Option{WithRequiredRole(session.RoleAdmin), WithAllowedRoles(session.RoleStudent)},
			want:    Decision{Redirect: "/unauthorized", Reason: ReasonUnauthorized},
		},
		{
			name:    "empty allowed set admits nobody",
			session: authed(session.RoleAdmin, session.StatusActive, false),
			opts:    []Option{WithAllowedRoles()},
			want:    Decision{Redirect: "/unauthorized", Reason: ReasonUnauthorized},
		},
		{
			name:    "suspended account without role constraints",
			session: authed(session.RoleStudent, session.StatusSuspended, false),
			want:    Decision{Redirect: "/pending-approval", Reason: ReasonPendingApproval},
		},
		{
			name:    "active but still flagged pending approval",
			session: authed(session.RoleProfessor, session.StatusActive, true),
			want:    Decision{Redirect: "/pending-approval", Reason: ReasonPendingApproval},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewProtected(tt.opts...).Evaluate(tt.session, "/admin/users")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProtected_AnonymousAlwaysGoesToLogin(t *testing.T) {
	for name, opts := range constraintSets() {
		for _, s := range []session.Session{
			{},
			{User: &session.User{Role: session.RoleAdmin, Status: session.StatusActive}},
			{AccessToken: "stale", RefreshToken: "stale"},
		} {
			d := NewProtected(opts...).Evaluate(s, "/courses/42")
			assert.Equal(t, LoginPath, d.Redirect, name)
			assert.Equal(t, "/courses/42", d.From, name)
		}
	}
}

func TestProtected_WrongRoleNeverReachesPendingApproval(t *testing.T) {
	for _, required := range session.Roles {
		for _, role := range session.Roles {
			if role == required {
				continue
			}
			for _, st := range statuses {
				for _, pending := range []bool{false, true} {
					s := authed(role, st, pending)

					d := NewProtected(WithRequiredRole(required)).Evaluate(s, "/x")
					assert.Equal(t, UnauthorizedPath, d.Redirect)

					d = NewProtected(WithAllowedRoles(required)).Evaluate(s, "/x")
					assert.Equal(t, UnauthorizedPath, d.Redirect)
				}
			}
		}
	}
}

func TestProtected_LifecycleAfterRoleChecks(t *testing.T) {
	for _, role := range session.Roles {
		for _, st := range statuses {
			for _, pending := range []bool{false, true} {
				s := authed(role, st, pending)
				for _, opts := range [][]Option{
					nil,
					{WithRequiredRole(role)},
					{WithAllowedRoles(role)},
					{WithAllowedRoles(session.Roles...)},
				} {
					d := NewProtected(opts...).Evaluate(s, "/x")
					if pending || st != session.StatusActive {
						assert.Equal(t, PendingApprovalPath, d.Redirect, "%s/%s/%v", role, st, pending)
					} else {
						assert.True(t, d.Render(), "%s/%s/%v", role, st, pending)
					}
				}
			}
		}
	}
}

func TestProtected_DoesNotMutateSession(t *testing.T) {
	s := authed(session.RoleStudent, session.StatusPending, true)
	before := s.Clone()
	NewProtected(WithRequiredRole(session.RoleAdmin)).Evaluate(s, "/admin")
	assert.Equal(t, before, s)
}

func TestAnonymous(t *testing.T) {
	signedIn := authed(session.RoleStudent, session.StatusActive, false)

	assert.Equal(t, Decision{Redirect: "/dashboard", Reason: ReasonAlreadySignedIn},
		Anonymous{Restricted: true}.Evaluate(signedIn, "/login"))
	assert.True(t, Anonymous{Restricted: true}.Evaluate(session.Session{}, "/login").Render())

	// Unrestricted is a pass-through whatever the session looks like.
	for _, s := range []session.Session{{}, signedIn, {IsAuthenticated: true}} {
		assert.True(t, Anonymous{}.Evaluate(s, "/reset-password").Render())
	}
}
