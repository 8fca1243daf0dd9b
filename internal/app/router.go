// internal/app/router.go
package app

import (
	"net/http"

	authHandler "dashboard-service/internal/handlers/auth"
	wsHandler "dashboard-service/internal/handlers/websocket"
	"dashboard-service/internal/middleware"
	"dashboard-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        http.Handler
	Health         gin.HandlerFunc
	LoginPath      string
	DashboardPath  string
}

// SetupRouter mounts every route. The route guard runs globally before any of
// these; activity refresh is mounted only on authenticated page and API
// groups.
func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	refresh := h.AuthMiddleware.RefreshActivity()
	requireAuth := h.AuthMiddleware.RequireAuth()

	// ==================== Pages ====================
	r.GET(h.LoginPath, authHandler.LoginPage)

	dashboard := r.Group(h.DashboardPath)
	dashboard.Use(requireAuth, refresh)
	{
		dashboard.GET("", authHandler.DashboardPage)
		dashboard.GET("/*path", authHandler.DashboardPage)
	}

	// ==================== Metrics ====================
	r.GET("/metrics", gin.WrapH(h.Metrics))

	// ==================== WebSocket ====================
	r.GET("/ws", requireAuth, h.WSHandler.HandleConnection)

	// ==================== Password Reset (form posts) ====================
	reset := r.Group("/reset")
	{
		reset.POST("/request", h.AuthHandler.RequestReset)
		reset.POST("/verify", h.AuthHandler.VerifyReset)
		reset.POST("/complete", h.AuthHandler.CompleteReset)
	}

	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", h.Health)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/reset/request", h.AuthHandler.RequestReset)
		authPublic.POST("/reset/verify", h.AuthHandler.VerifyReset)
		authPublic.POST("/reset/complete", h.AuthHandler.CompleteReset)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(requireAuth, refresh)
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.GET("/me", h.AuthHandler.Me)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	admin.Use(refresh)
	{
		admin.GET("/sessions/stats", h.WSHandler.GetStats)
	}

	superAdmin := api.Group("/admin")
	superAdmin.Use(h.AuthMiddleware.SuperAdminOnly()...)
	superAdmin.Use(refresh)
	{
		superAdmin.POST("/alerts", h.WSHandler.BroadcastAlert)
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
