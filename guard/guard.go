// Package guard decides, for a given session and requested location, whether
// a page renders or the browser is sent elsewhere.
//
// Evaluation is a pure function of a session snapshot. Guards never mutate
// the session.
package guard

import (
	"slices"

	"github.com/jmcleod/campusgate/session"
)

// Fixed redirect targets shared with the web client's router.
const (
	LoginPath           = "/login"
	UnauthorizedPath    = "/unauthorized"
	PendingApprovalPath = "/pending-approval"
	LandingPath         = "/dashboard"
)

// Reason names why a Decision redirects.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonNoUser          Reason = "no_user"
	ReasonUnauthorized    Reason = "unauthorized"
	ReasonPendingApproval Reason = "pending_approval"
	ReasonAlreadySignedIn Reason = "already_signed_in"
)

// Decision is the outcome of a guard evaluation. The zero value renders.
type Decision struct {
	Redirect string `json:"redirect,omitempty"`
	// From is the originally requested location, carried only to the login page.
	From   string `json:"from,omitempty"`
	Reason Reason `json:"reason,omitempty"`
}

// Render reports whether the guarded content should be shown.
func (d Decision) Render() bool {
	return d.Redirect == ""
}

func redirect(to string, reason Reason) Decision {
	return Decision{Redirect: to, Reason: reason}
}

// Guard evaluates a session against a requested location.
type Guard interface {
	Evaluate(s session.Session, location string) Decision
}

// Protected guards routes that need a signed-in, approved user, optionally
// restricted by role.
type Protected struct {
	requiredRole session.Role
	allowedRoles []session.Role
	hasAllowed   bool
}

var _ Guard = (*Protected)(nil)

// Option configures a Protected guard.
type Option func(*Protected)

// WithRequiredRole only admits users whose role equals r.
func WithRequiredRole(r session.Role) Option {
	return func(p *Protected) {
		p.requiredRole = r
	}
}

// WithAllowedRoles only admits users whose role is one of roles. Calling it
// with no roles specifies an empty set, which admits nobody.
func WithAllowedRoles(roles ...session.Role) Option {
	return func(p *Protected) {
		p.allowedRoles = append(p.allowedRoles, roles...)
		p.hasAllowed = true
	}
}

// NewProtected returns a guard for authenticated routes.
func NewProtected(opts ...Option) *Protected {
	p := &Protected{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate applies the rules in order; the first match wins. Identity is
// checked before role, and role before account lifecycle, so an unapproved
// user of the wrong role lands on unauthorized rather than pending approval.
func (p *Protected) Evaluate(s session.Session, location string) Decision {
	if !s.IsAuthenticated {
		d := redirect(LoginPath, ReasonUnauthenticated)
		d.From = location
		return d
	}
	if s.User == nil {
		return redirect(LoginPath, ReasonNoUser)
	}
	if p.requiredRole != "" && s.User.Role != p.requiredRole {
		return redirect(UnauthorizedPath, ReasonUnauthorized)
	}
	if p.hasAllowed && !slices.Contains(p.allowedRoles, s.User.Role) {
		return redirect(UnauthorizedPath, ReasonUnauthorized)
	}
	if !s.User.Active() {
		return redirect(PendingApprovalPath, ReasonPendingApproval)
	}
	return Decision{}
}

// Anonymous guards routes meant for signed-out visitors. When Restricted is
// false it lets everyone through.
type Anonymous struct {
	Restricted bool
}

var _ Guard = Anonymous{}

func (a Anonymous) Evaluate(s session.Session, _ string) Decision {
	if a.Restricted && s.IsAuthenticated {
		return redirect(LandingPath, ReasonAlreadySignedIn)
	}
	return Decision{}
}
