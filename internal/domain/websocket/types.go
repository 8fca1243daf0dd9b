// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Session events
	EventTypeSessionStatus EventType = "session:status"
	EventTypeForceLogout   EventType = "session:force_logout"

	// System events
	EventTypeSystemAlert EventType = "system:alert"
	EventTypeAudit       EventType = "audit:event"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// ChannelType names a stream a client can subscribe to. Session events are
// always delivered and need no subscription.
type ChannelType string

const (
	ChannelSystem ChannelType = "system"
	ChannelAudit  ChannelType = "audit"
)

type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// ErrorData for error events
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SessionEventData tells a dashboard its session ended. An empty SessionID
// means every session of the identity.
type SessionEventData struct {
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// SessionStatusData answers a session:status request.
type SessionStatusData struct {
	SessionID      string `json:"session_id"`
	Active         bool   `json:"active"`
	ActiveSessions int    `json:"active_sessions"`
}

// SystemAlertData for system-wide alerts
type SystemAlertData struct {
	Severity string `json:"severity" binding:"required,oneof=info warning critical"`
	Title    string `json:"title" binding:"required,max=200"`
	Message  string `json:"message" binding:"max=2000"`
}

// AuditEventData is published to admins on the audit channel.
type AuditEventData struct {
	Action     string    `json:"action"`
	IdentityID int64     `json:"identity_id"`
	Email      string    `json:"email,omitempty"`
	At         time.Time `json:"at"`
}

func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
