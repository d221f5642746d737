package remote

import (
	"context"
	"time"

	"github.com/calmirror/backend/internal/storage/models"
)

// ListOptions selects between a windowed listing (TimeMin/TimeMax) and an
// incremental listing (SyncToken). Exactly one mode should be set; a
// non-empty SyncToken wins.
type ListOptions struct {
	TimeMin   time.Time
	TimeMax   time.Time
	SyncToken string
}

// ListResult is one complete (fully paginated) listing of a calendar.
type ListResult struct {
	Events        []models.Event
	NextSyncToken string
}

// BusyInterval is a single busy span from a free/busy query.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Client is the consumed contract of the remote calendar provider. All
// methods return errors classified by this package's Kind taxonomy.
type Client interface {
	// ListCalendars returns the user's calendars, filtered to non-hidden
	// entries with reader-or-better access.
	ListCalendars(ctx context.Context) ([]models.Calendar, error)

	// ListEvents lists events of one calendar, windowed or by sync token,
	// following pagination to completion. Cancelled events are included so
	// the caller can delete local copies.
	ListEvents(ctx context.Context, calendarID string, opts ListOptions) (*ListResult, error)

	// CreateEvent creates an event remotely and returns its remote id and
	// change tag.
	CreateEvent(ctx context.Context, calendarID string, input models.EventInput) (remoteID, etag string, err error)

	// UpdateEvent overwrites the user-editable fields of a remote event and
	// returns the new change tag.
	UpdateEvent(ctx context.Context, calendarID, remoteID string, input models.EventInput) (etag string, err error)

	// DeleteEvent deletes a remote event.
	DeleteEvent(ctx context.Context, calendarID, remoteID string) error

	// RSVP records the authenticated user's response on a remote event.
	RSVP(ctx context.Context, calendarID, remoteID, response string) error

	// GetEvent fetches a single remote event.
	GetEvent(ctx context.Context, calendarID, remoteID string) (*models.Event, error)

	// FreeBusy returns busy intervals per calendar for the given window.
	FreeBusy(ctx context.Context, calendarIDs []string, timeMin, timeMax time.Time) (map[string][]BusyInterval, error)
}
