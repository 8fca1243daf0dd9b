// internal/handlers/websocket/websocket.go
package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	wstypes "dashboard-service/internal/domain/websocket"
	"dashboard-service/internal/middleware"
	"dashboard-service/internal/pkg/response"
	"dashboard-service/internal/pkg/session"
	authsvc "dashboard-service/internal/service/auth"
	ws "dashboard-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionStats reports the session keyspace for the admin stats endpoint.
type SessionStats interface {
	Stats(ctx context.Context) (*session.Stats, error)
}

type WebSocketHandler struct {
	hub      *ws.Hub
	sessions SessionStats
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts upgrades from the request's own host and from
// allowedOrigins.
func NewWebSocketHandler(hub *ws.Hub, sessions SessionStats, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return &WebSocketHandler{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, allowed)
			},
		},
		logger: logger,
	}
}

func checkOrigin(r *http.Request, allowed map[string]bool) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if allowed[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// HandleConnection upgrades a request that already passed the route guard.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	user := authsvc.UserInfoFromClaims(claims)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, &ws.ClientAuth{
		IdentityID: user.IdentityID,
		SessionID:  claims.ID,
		Role:       user.Role,
		Email:      user.Email,
	})

	select {
	case h.hub.Register <- client:
	case <-c.Request.Context().Done():
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// BroadcastAlert pushes a system alert to every client subscribed to the
// system channel.
func (h *WebSocketHandler) BroadcastAlert(c *gin.Context) {
	var req wstypes.SystemAlertData
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid alert", err)
		return
	}

	h.hub.BroadcastSystemAlert(&req)

	identityID, _ := middleware.GetIdentityID(c)
	h.logger.Info("system alert broadcast",
		zap.Int64("identity_id", identityID),
		zap.String("severity", req.Severity),
		zap.String("title", req.Title),
	)
	response.Success(c, http.StatusAccepted, "alert queued", gin.H{
		"recipients": h.hub.TotalClients(),
	})
}

// GetStats returns connection and session counts.
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	stats, err := h.sessions.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read session stats", zap.Error(err))
		response.FromError(c, "failed to read session stats", err)
		return
	}

	response.Success(c, http.StatusOK, "session stats", gin.H{
		"websocket_connections": h.hub.TotalClients(),
		"active_sessions":       stats.ActiveSessions,
		"revoked_tokens":        stats.RevokedTokens,
		"timestamp":             time.Now().UTC(),
	})
}
