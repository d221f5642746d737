package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncStatusChanged   MessageType = "sync.status_changed"
	TypeSyncCompleted       MessageType = "sync.completed"
	TypeSyncError           MessageType = "sync.error"
	TypeConnectivityChanged MessageType = "connectivity.changed"
	TypeNotification        MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong MessageType = "pong"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncErrorPayload is the payload for sync.error events.
type SyncErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ConnectivityPayload is the payload for connectivity.changed events.
type ConnectivityPayload struct {
	Online bool `json:"online"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level   string `json:"level"` // info, warning, error, success
	Title   string `json:"title"`
	Message string `json:"message"`
}
