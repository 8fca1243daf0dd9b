package auth

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"user", "editor", "admin", "super_admin", " admin "} {
		r, ok := ParseRole(s)
		assert.True(t, ok, s)
		assert.True(t, r.Valid())
	}
	for _, s := range []string{"", "root", "Admin", "superadmin"} {
		_, ok := ParseRole(s)
		assert.False(t, ok, s)
	}
}

func TestRole_IsAdmin(t *testing.T) {
	assert.True(t, RoleAdmin.IsAdmin())
	assert.True(t, RoleSuperAdmin.IsAdmin())
	assert.False(t, RoleEditor.IsAdmin())
	assert.False(t, Role("").IsAdmin())
}

func TestOTPVerification_Expired(t *testing.T) {
	exp := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	v := &OTPVerification{ExpiresAt: exp}

	assert.False(t, v.Expired(exp))
	assert.True(t, v.Expired(exp.Add(time.Nanosecond)))
}

func TestIdentity_DisplayName(t *testing.T) {
	i := &Identity{Email: "a@x.com"}
	assert.Equal(t, "a@x.com", i.DisplayName())

	i.FullName = sql.NullString{String: "Ada", Valid: true}
	assert.Equal(t, "Ada", i.DisplayName())
}
