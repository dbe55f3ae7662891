// Package session holds the authenticated identity of one browser: the user,
// their tenant, the bearer tokens and the authentication flag.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRole is returned when a role string is not one of the known roles.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidStatus is returned when an account status string is not recognised.
	ErrInvalidStatus = errors.New("invalid account status")
)

// Role is the closed set of LMS roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleProfessor Role = "professor"
	RoleStudent   Role = "student"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleProfessor, RoleStudent}

// ParseRole converts s to a Role, rejecting anything outside the enumeration.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidRole)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProfessor, RoleStudent:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusPending   AccountStatus = "pending"
	StatusSuspended AccountStatus = "suspended"
	StatusInactive  AccountStatus = "inactive"
)

// ParseStatus converts s to an AccountStatus.
func ParseStatus(s string) (AccountStatus, error) {
	st := AccountStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidStatus)
	}
	return st, nil
}

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusSuspended, StatusInactive:
		return true
	}
	return false
}

func (s AccountStatus) String() string { return string(s) }

func (s AccountStatus) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *AccountStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// User is the identity record returned by the backend on login.
type User struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	FirstName       string        `json:"firstName"`
	LastName        string        `json:"lastName"`
	Phone           string        `json:"phone,omitempty"`
	AvatarURL       string        `json:"avatarUrl,omitempty"`
	Role            Role          `json:"role,omitempty"`
	Status          AccountStatus `json:"status,omitempty"`
	PendingApproval bool          `json:"pendingApproval"`
	TenantID        string        `json:"tenantId,omitempty"`
}

// Active reports whether the account may use the application: approved and active.
func (u *User) Active() bool {
	return !u.PendingApproval && u.Status == StatusActive
}

// Tenant is the organisation a user belongs to.
type Tenant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// UserPatch carries a partial profile update. Nil fields are left unchanged.
type UserPatch struct {
	Email           *string        `json:"email,omitempty" validate:"omitempty,email"`
	FirstName       *string        `json:"firstName,omitempty" validate:"omitempty,max=100"`
	LastName        *string        `json:"lastName,omitempty" validate:"omitempty,max=100"`
	Phone           *string        `json:"phone,omitempty" validate:"omitempty,max=32"`
	AvatarURL       *string        `json:"avatarUrl,omitempty" validate:"omitempty,url"`
	Role            *Role          `json:"role,omitempty"`
	Status          *AccountStatus `json:"status,omitempty"`
	PendingApproval *bool          `json:"pendingApproval,omitempty"`
	TenantID        *string        `json:"tenantId,omitempty"`
}

// PatchFrom builds a patch that overwrites every mutable field with u's values.
// A zero Role or Status in u leaves the current value in place.
func PatchFrom(u User) UserPatch {
	p := UserPatch{
		Email:           &u.Email,
		FirstName:       &u.FirstName,
		LastName:        &u.LastName,
		Phone:           &u.Phone,
		AvatarURL:       &u.AvatarURL,
		PendingApproval: &u.PendingApproval,
		TenantID:        &u.TenantID,
	}
	if u.Role.Valid() {
		p.Role = &u.Role
	}
	if u.Status.Valid() {
		p.Status = &u.Status
	}
	return p
}

// ProfileOnly drops the fields a user may not change about themselves:
// role, status, approval and tenant.
func (p UserPatch) ProfileOnly() UserPatch {
	p.Role = nil
	p.Status = nil
	p.PendingApproval = nil
	p.TenantID = nil
	return p
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p == UserPatch{}
}

func (p UserPatch) apply(u *User) {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.PendingApproval != nil {
		u.PendingApproval = *p.PendingApproval
	}
	if p.TenantID != nil {
		u.TenantID = *p.TenantID
	}
}

// Session is a point-in-time copy of a browser's authentication state.
type Session struct {
	User            *User   `json:"user"`
	Tenant          *Tenant `json:"tenant"`
	AccessToken     string  `json:"-"`
	RefreshToken    string  `json:"-"`
	IsAuthenticated bool    `json:"isAuthenticated"`
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Tenant != nil {
		t := *s.Tenant
		out.Tenant = &t
	}
	return out
}
