// internal/websocket/handler/session.go
package handler

import (
	"context"
	"fmt"
	"time"

	wstypes "dashboard-service/internal/domain/websocket"
	"dashboard-service/internal/pkg/session"
	ws "dashboard-service/internal/websocket"

	"go.uber.org/zap"
)

// SessionLookup is the read side of the session store.
type SessionLookup interface {
	ActiveSessions(ctx context.Context, identityID int64) ([]*session.SessionData, error)
	IsRevoked(ctx context.Context, identityID int64, jti string, issuedAt time.Time) (bool, error)
}

// SessionHandler answers session:status so an open dashboard can notice a
// sign-out made elsewhere.
type SessionHandler struct {
	sessions SessionLookup
	logger   *zap.Logger
}

func NewSessionHandler(sessions SessionLookup, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

func (h *SessionHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeSessionStatus}
}

func (h *SessionHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeSessionStatus:
		return h.handleStatus(ctx, client)
	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

func (h *SessionHandler) handleStatus(ctx context.Context, client *ws.Client) error {
	identityID := client.GetIdentityID()
	sessionID := client.GetSessionID()

	sessions, err := h.sessions.ActiveSessions(ctx, identityID)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Int64("identity_id", identityID), zap.Error(err))
		return err
	}

	active := false
	for _, s := range sessions {
		if s.JTI != sessionID {
			continue
		}
		revoked, err := h.sessions.IsRevoked(ctx, identityID, s.JTI, s.LoginAt)
		if err != nil {
			return err
		}
		active = !revoked
		break
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeSessionStatus, wstypes.SessionStatusData{
		SessionID:      sessionID,
		Active:         active,
		ActiveSessions: len(sessions),
	}))
	if !active {
		client.SendMessage(wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
			SessionID: sessionID,
			Reason:    "revoked",
			Message:   ws.ErrSessionRevoked.Error(),
		}))
		client.Close()
	}
	return nil
}
