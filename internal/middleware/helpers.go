// internal/middleware/helpers.go
package middleware

import (
	"dashboard-service/internal/domain/auth"
	"dashboard-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

const (
	ctxClaims     = "claims"
	ctxIdentityID = "identity_id"
	ctxRole       = "role"
)

func setSession(c *gin.Context, claims *jwt.Claims) {
	c.Set(ctxClaims, claims)
	if id, err := claims.SubjectID(); err == nil {
		c.Set(ctxIdentityID, id)
	}
	c.Set(ctxRole, claims.Role)
}

// GetClaims returns the session attached by the guard.
func GetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok && claims != nil
}

// Helper function to get identity ID from context
func GetIdentityID(c *gin.Context) (int64, bool) {
	identityID, exists := c.Get(ctxIdentityID)
	if !exists {
		return 0, false
	}

	id, ok := identityID.(int64)
	return id, ok
}

// GetRole gets the session role from context
func GetRole(c *gin.Context) auth.Role {
	role, exists := c.Get(ctxRole)
	if !exists {
		return ""
	}
	r, _ := role.(auth.Role)
	return r
}
