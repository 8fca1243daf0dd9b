// internal/middleware/auth_middleware.go
package middleware

import (
	"net/http"
	"time"

	"dashboard-service/internal/domain/auth"
	"dashboard-service/internal/pkg/jwt"
	"dashboard-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const DefaultRefreshGranularity = time.Minute

// ActivityRefresher re-signs a session token with last-activity set to now.
type ActivityRefresher interface {
	RefreshActivity(token string) (string, *jwt.Claims, error)
}

type AuthMiddleware struct {
	tokens      ActivityRefresher
	cookie      CookieConfig
	granularity time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewAuthMiddleware(tokens ActivityRefresher, cookie CookieConfig, granularity time.Duration, logger *zap.Logger) *AuthMiddleware {
	if granularity <= 0 {
		granularity = DefaultRefreshGranularity
	}
	return &AuthMiddleware{
		tokens:      tokens,
		cookie:      cookie,
		granularity: granularity,
		logger:      logger,
		now:         time.Now,
	}
}

// RequireAuth aborts with 401 unless the guard attached a session.
// MUST be used after Guard.Middleware()
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetClaims(c); !ok {
			response.Error(c, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		c.Next()
	}
}

// RequireRole middleware that requires user to have at least one of the specified roles
// MUST be used after Guard.Middleware()
func (m *AuthMiddleware) RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "authentication required", nil)
			return
		}

		if !claims.HasRole(roles...) {
			m.logger.Warn("role check failed",
				zap.String("jti", claims.ID),
				zap.String("role", claims.Role.String()),
				zap.String("path", c.Request.URL.Path),
			)
			response.Forbidden(c, "insufficient permissions")
			return
		}

		c.Next()
	}
}

// AdminOnly returns middlewares for admin-only routes (RequireAuth + RequireRole)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.RequireAuth(),
		m.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin),
	}
}

// SuperAdminOnly returns middlewares for super admin-only routes (RequireAuth + RequireRole)
func (m *AuthMiddleware) SuperAdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.RequireAuth(),
		m.RequireRole(auth.RoleSuperAdmin),
	}
}

// RefreshActivity moves the session's last-activity to now and re-issues the
// cookie. Only mount it on page and API groups, never on static assets.
// Refreshes closer together than the granularity are skipped.
func (m *AuthMiddleware) RefreshActivity() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.Next()
			return
		}
		if m.now().Sub(claims.LastActivityAt()) < m.granularity {
			c.Next()
			return
		}

		token, refreshed, err := m.tokens.RefreshActivity(m.cookie.Token(c))
		if err != nil {
			m.logger.Warn("failed to refresh session activity",
				zap.String("jti", claims.ID),
				zap.Error(err),
			)
			c.Next()
			return
		}

		m.cookie.Set(c, token)
		setSession(c, refreshed)
		c.Next()
	}
}
