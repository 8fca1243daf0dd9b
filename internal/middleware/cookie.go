// internal/middleware/cookie.go
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieConfig describes the session cookie. No Domain is ever set, so the
// cookie stays host-only.
type CookieConfig struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

func (cfg CookieConfig) name() string {
	if cfg.Name == "" {
		return "dashboard_session"
	}
	return cfg.Name
}

func (cfg CookieConfig) path() string {
	if cfg.Path == "" {
		return "/"
	}
	return cfg.Path
}

// Set writes the session token as an HttpOnly, SameSite=Lax cookie.
func (cfg CookieConfig) Set(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cfg.name(),
		Value:    token,
		Path:     cfg.path(),
		MaxAge:   int(cfg.MaxAge.Seconds()),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (cfg CookieConfig) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cfg.name(),
		Value:    "",
		Path:     cfg.path(),
		MaxAge:   -1,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// extractToken reads the session cookie, falling back to a Bearer header for
// non-browser clients.
func extractToken(c *gin.Context, cookieName string) string {
	if cookieName == "" {
		cookieName = CookieConfig{}.name()
	}
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}

// Token returns the session token presented with the request.
func (cfg CookieConfig) Token(c *gin.Context) string {
	return extractToken(c, cfg.name())
}
