package websocket

import (
	"log"

	"github.com/calmirror/backend/internal/sync"
)

// EventBroadcaster pushes engine events to connected observers. It satisfies
// the sync engine's Notifier interface.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// SyncStatusChanged pushes the engine's status snapshot.
func (b *EventBroadcaster) SyncStatusChanged(snap sync.Snapshot) {
	b.broadcast(NewMessage(TypeSyncStatusChanged, snap))
}

// SyncCompleted pushes the result of a finished sync pass.
func (b *EventBroadcaster) SyncCompleted(result sync.Result) {
	b.broadcast(NewMessage(TypeSyncCompleted, result))
}

// SyncFailed pushes a sync pass failure.
func (b *EventBroadcaster) SyncFailed(kind string, err error) {
	b.broadcast(NewMessage(TypeSyncError, SyncErrorPayload{
		Kind:    kind,
		Message: err.Error(),
	}))
}

// ConnectivityChanged pushes a committed online/offline transition.
func (b *EventBroadcaster) ConnectivityChanged(online bool) {
	b.broadcast(NewMessage(TypeConnectivityChanged, ConnectivityPayload{Online: online}))
}

// Notify pushes a free-form notification to all observers.
func (b *EventBroadcaster) Notify(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	b.hub.Broadcast(data)
}
