// internal/pkg/jwt/claims.go
package jwt

import (
	"fmt"
	"strconv"
	"time"

	"dashboard-service/internal/domain/auth"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeSession       = "session"
	PurposePasswordReset = "password_reset"
)

// Claims represents the JWT claims
type Claims struct {
	Name         string                 `json:"name,omitempty"`
	Role         auth.Role              `json:"role,omitempty"`
	LastActivity int64                  `json:"last_activity,omitempty"` // unix seconds
	Purpose      string                 `json:"purpose"`
	ExtraData    map[string]interface{} `json:"extra_data,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID parses the numeric identity id from the subject claim.
func (c *Claims) SubjectID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return id, nil
}

// LastActivityAt returns the last-activity claim as a time.
func (c *Claims) LastActivityAt() time.Time {
	return time.Unix(c.LastActivity, 0)
}

// HasRole checks if the claims carry one of the given roles
func (c *Claims) HasRole(roles ...auth.Role) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// clone copies the claims including the extra data map.
func (c *Claims) clone() *Claims {
	cp := *c
	if c.ExtraData != nil {
		cp.ExtraData = make(map[string]interface{}, len(c.ExtraData))
		for k, v := range c.ExtraData {
			cp.ExtraData[k] = v
		}
	}
	if c.Audience != nil {
		cp.Audience = append(jwt.ClaimStrings(nil), c.Audience...)
	}
	return &cp
}
