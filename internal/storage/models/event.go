package models

import (
	"time"
)

// Event is the durable local copy of a calendar event. The local ID is
// minted once by the store and never reused; RemoteID stays nil until the
// event is confirmed to exist on the remote provider.
type Event struct {
	ID               string    `json:"id"`
	RemoteID         *string   `json:"remote_id,omitempty"`
	CalendarID       string    `json:"calendar_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Location         string    `json:"location,omitempty"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	AllDay           bool      `json:"all_day"`
	Status           string    `json:"status"`
	OrganizerEmail   string    `json:"organizer_email,omitempty"`
	OrganizerSelf    bool      `json:"organizer_self"`
	SelfResponse     string    `json:"self_response,omitempty"`
	RecurrenceRule   string    `json:"recurrence_rule,omitempty"`
	RecurringEventID *string   `json:"recurring_event_id,omitempty"`
	ConferenceURL    string    `json:"conference_url,omitempty"`
	Attachments      string    `json:"attachments,omitempty"` // JSON blob from the provider
	Reminders        string    `json:"reminders,omitempty"`   // JSON blob from the provider
	ETag             string    `json:"etag,omitempty"`
	LocalOnly        bool      `json:"local_only"`
	PendingAction    *string   `json:"pending_action,omitempty"`
	PendingPayload   *string   `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Attendees []Attendee `json:"attendees,omitempty"`
}

// Event status constants.
const (
	EventStatusConfirmed = "confirmed"
	EventStatusTentative = "tentative"
	EventStatusCancelled = "cancelled"
)

// Pending action constants. An event carries at most one pending action at a
// time; recording a new one overwrites the previous.
const (
	PendingCreate = "create"
	PendingUpdate = "update"
	PendingDelete = "delete"
)

// IsPending reports whether the event has an outstanding remote mutation.
func (e *Event) IsPending() bool {
	return e.PendingAction != nil && *e.PendingAction != ""
}

// Attendee belongs to exactly one event and is cascade-deleted with it.
// The remote provider is authoritative for attendee state, so re-synced
// attendee sets fully replace the prior set.
type Attendee struct {
	EventID        string `json:"-"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status"`
	Self           bool   `json:"self"`
	Organizer      bool   `json:"organizer"`
	Optional       bool   `json:"optional"`
}

// Attendee response status constants.
const (
	ResponseNeedsAction = "needsAction"
	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
	ResponseTentative   = "tentative"
)

// EventInput carries the user-supplied fields for creating or updating an
// event. It is also what gets serialized into pending payloads and queue
// items, so a drain pass can replay the mutation verbatim.
type EventInput struct {
	CalendarID  string    `json:"calendar_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Attendees   []string  `json:"attendees,omitempty"`
}
