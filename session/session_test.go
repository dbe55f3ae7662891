package session

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	for _, bad := range []string{"", "Admin", "teacher", "root"} {
		_, err := ParseRole(bad)
		assert.True(t, errors.Is(err, ErrInvalidRole), "role %q", bad)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"active", "pending", "suspended", "inactive"} {
		got, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, AccountStatus(s), got)
	}
	_, err := ParseStatus("approved")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestUserJSON_RejectsUnknownRole(t *testing.T) {
	var u User
	err := json.Unmarshal([]byte(`{"id":"u1","role":"superuser","status":"active"}`), &u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRole))

	err = json.Unmarshal([]byte(`{"id":"u1","role":"student","status":"banned"}`), &u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestUserJSON_RoundTrip(t *testing.T) {
	in := User{
		ID:              "u1",
		Email:           "ada@uni.test",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Role:            RoleProfessor,
		Status:          StatusPending,
		PendingApproval: true,
		TenantID:        "t1",
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role":"professor"`)
	assert.Contains(t, string(data), `"pendingApproval":true`)

	var out User
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestUserActive(t *testing.T) {
	u := &User{Status: StatusActive}
	assert.True(t, u.Active())

	u.PendingApproval = true
	assert.False(t, u.Active())

	u = &User{Status: StatusSuspended}
	assert.False(t, u.Active())
}

func TestPatchFrom_KeepsRoleWhenEchoOmitsIt(t *testing.T) {
	u := User{ID: "u1", FirstName: "New", Role: RoleStudent, Status: StatusActive}
	PatchFrom(User{FirstName: "Echo"}).apply(&u)
	assert.Equal(t, "Echo", u.FirstName)
	assert.Equal(t, RoleStudent, u.Role)
	assert.Equal(t, StatusActive, u.Status)
	assert.Equal(t, "u1", u.ID)
}

func TestUserPatch_ProfileOnly(t *testing.T) {
	admin := RoleAdmin
	active := StatusActive
	approved := false
	name := "Grace"
	p := UserPatch{FirstName: &name, Role: &admin, Status: &active, PendingApproval: &approved}.ProfileOnly()

	assert.Nil(t, p.Role)
	assert.Nil(t, p.Status)
	assert.Nil(t, p.PendingApproval)
	require.NotNil(t, p.FirstName)
	assert.Equal(t, "Grace", *p.FirstName)
	assert.False(t, p.Empty())
	assert.True(t, UserPatch{}.Empty())
}

func TestSessionClone_IsDeep(t *testing.T) {
	s := Session{User: &User{FirstName: "A"}, Tenant: &Tenant{Name: "T"}, IsAuthenticated: true}
	c := s.Clone()
	c.User.FirstName = "B"
	c.Tenant.Name = "U"
	assert.Equal(t, "A", s.User.FirstName)
	assert.Equal(t, "T", s.Tenant.Name)
}
