// internal/domain/auth/entity.go
package auth

import (
	"database/sql"
	"strings"
	"time"
)

// Role is the closed set of roles a session may carry.
type Role string

const (
	RoleUser       Role = "user"
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var knownRoles = map[Role]struct{}{
	RoleUser:       {},
	RoleEditor:     {},
	RoleAdmin:      {},
	RoleSuperAdmin: {},
}

// ParseRole accepts only the enumerated values. Anything else, including the
// empty string, is rejected.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(s))
	_, ok := knownRoles[r]
	return r, ok
}

func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// IsAdmin covers admin and super_admin.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Identity represents a dashboard account as stored by the identity store.
type Identity struct {
	ID                int64          `json:"id" db:"id"`
	Email             string         `json:"email" db:"email"`
	FullName          sql.NullString `json:"full_name" db:"full_name"`
	Role              Role           `json:"role" db:"role"`
	Status            string         `json:"status" db:"status"` // active, inactive, suspended
	PasswordHash      string         `json:"-" db:"password_hash"`
	PasswordChangedAt sql.NullTime   `json:"-" db:"password_changed_at"`
	LastLogin         sql.NullTime   `json:"last_login" db:"last_login"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// DisplayName returns the full name, falling back to the email.
func (i *Identity) DisplayName() string {
	if i.FullName.Valid && i.FullName.String != "" {
		return i.FullName.String
	}
	return i.Email
}

// OTPVerification is one outstanding verification attempt. Only the
// commitment of the code is stored.
type OTPVerification struct {
	ID         string    `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Commitment string    `json:"-" db:"commitment"`
	Purpose    string    `json:"purpose" db:"purpose"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
}

const PurposePasswordReset = "password_reset"

// Expired reports whether now is strictly after the record's expiry.
func (v *OTPVerification) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
