package models

import (
	"time"
)

// QueueItem is a deferred remote mutation, recorded when an online-first
// attempt was impossible or failed. Items are drained strictly in creation
// order and are never silently dropped: a failed drain increments Attempts
// and records the error for diagnostics.
type QueueItem struct {
	ID            string    `json:"id"`
	EventID       *string   `json:"event_id,omitempty"`
	RemoteEventID *string   `json:"remote_event_id,omitempty"`
	CalendarID    string    `json:"calendar_id"`
	Action        string    `json:"action"`
	Payload       string    `json:"payload"`
	Attempts      int       `json:"attempts"`
	LastError     *string   `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Queue action constants.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionRSVP   = "rsvp"
)
