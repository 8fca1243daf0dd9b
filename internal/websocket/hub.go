// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"
	"time"

	wstypes "dashboard-service/internal/domain/websocket"

	"go.uber.org/zap"
)

type Hub struct {
	// Registered clients by identity ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	broadcast chan *BroadcastMessage

	handlerRegistry *HandlerRegistry

	logger *zap.Logger
}

// BroadcastMessage targets every client when IdentityIDs is nil. A non-empty
// SessionID narrows delivery to the connections of that session.
type BroadcastMessage struct {
	IdentityIDs []int64
	SessionID   string
	Channel     wstypes.ChannelType
	Message     *wstypes.WSMessage
	// Disconnect closes matching clients after the message is queued.
	Disconnect bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:         make(map[int64]map[*Client]bool),
		Register:        make(chan *Client),
		unregister:      make(chan *Client, 16),
		broadcast:       make(chan *BroadcastMessage, 256),
		handlerRegistry: NewHandlerRegistry(),
		logger:          logger,
	}
}

// RegisterHandler registers a message handler
func (h *Hub) RegisterHandler(handler MessageHandler) {
	h.handlerRegistry.Register(handler)
}

// HandleClientMessage runs the registered handler for msg, if any. The bool
// reports whether a handler took the message.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, exists := h.handlerRegistry.GetHandler(msg.Type)
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Unregister removes a client. Safe to call after the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	default:
		h.unregisterClient(client)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true
	total := h.totalClients()
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		zap.Int64("identity_id", client.identityID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"identity_id": client.identityID,
		"session_id":  client.sessionID,
		"role":        client.role,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.identityID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.identityID)
	}

	h.logger.Info("websocket client disconnected",
		zap.Int64("identity_id", client.identityID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	var targets []*Client
	if msg.IdentityIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				targets = append(targets, client)
			}
		}
	} else {
		for _, identityID := range msg.IdentityIDs {
			for client := range h.clients[identityID] {
				targets = append(targets, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if msg.SessionID != "" && client.sessionID != msg.SessionID {
			continue
		}
		if !client.IsSubscribed(msg.Channel) {
			continue
		}
		client.SendMessage(msg.Message)
		if msg.Disconnect {
			client.Close()
		}
	}
}

// Send queues msg for delivery without blocking the caller.
func (h *Hub) Send(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message",
			zap.String("type", string(msg.Message.Type)),
		)
	}
}

func (h *Hub) GetConnectedClients(identityID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[identityID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) BroadcastSystemAlert(alert *wstypes.SystemAlertData) {
	h.Send(&BroadcastMessage{
		Channel: wstypes.ChannelSystem,
		Message: wstypes.NewMessage(wstypes.EventTypeSystemAlert, alert),
	})
}

// Audit publishes an account event to admins subscribed to the audit channel.
func (h *Hub) Audit(action string, identityID int64, email string) {
	h.Send(&BroadcastMessage{
		Channel: wstypes.ChannelAudit,
		Message: wstypes.NewMessage(wstypes.EventTypeAudit, wstypes.AuditEventData{
			Action:     action,
			IdentityID: identityID,
			Email:      email,
			At:         time.Now().UTC(),
		}),
	})
}

// ForceLogout tells the dashboards of an identity that their session ended
// and drops those connections. An empty jti targets every session.
func (h *Hub) ForceLogout(identityID int64, jti, reason string) {
	h.Send(&BroadcastMessage{
		IdentityIDs: []int64{identityID},
		SessionID:   jti,
		Message: wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
			SessionID: jti,
			Reason:    reason,
			Message:   "You have been signed out",
		}),
		Disconnect: true,
	})
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(identityID int64) bool {
	return h.GetConnectedClients(identityID) > 0
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}
