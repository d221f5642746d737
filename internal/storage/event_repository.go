package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/calmirror/backend/internal/storage/models"
)

// EventRepository provides data access for events and their attendees.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const eventColumns = `
	id, remote_id, calendar_id, title, description, location,
	start_time, end_time, all_day, status, organizer_email, organizer_self,
	self_response, recurrence_rule, recurring_event_id, conference_url,
	attachments, reminders, etag, local_only, pending_action, pending_payload,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	ev := &models.Event{}
	err := row.Scan(
		&ev.ID, &ev.RemoteID, &ev.CalendarID, &ev.Title, &ev.Description, &ev.Location,
		&ev.Start, &ev.End, &ev.AllDay, &ev.Status, &ev.OrganizerEmail, &ev.OrganizerSelf,
		&ev.SelfResponse, &ev.RecurrenceRule, &ev.RecurringEventID, &ev.ConferenceURL,
		&ev.Attachments, &ev.Reminders, &ev.ETag, &ev.LocalOnly, &ev.PendingAction, &ev.PendingPayload,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Upsert inserts or updates an event keyed by its remote id, so repeated or
// out-of-order delivery of the same remote payload converges to one row. It
// overwrites all remote-sourced fields but never clobbers pending_action or
// pending_payload; clearing those is the caller's explicit decision (e.g. on
// a successful queue drain via MarkSynced). Returns the local id.
func (r *EventRepository) Upsert(ctx context.Context, ev *models.Event) (string, error) {
	if ev.RemoteID == nil || *ev.RemoteID == "" {
		return "", fmt.Errorf("upserting event: remote id is required")
	}

	now := r.Now()

	var localID string
	err := r.DB().QueryRowContext(ctx,
		"SELECT id FROM events WHERE remote_id = ?", *ev.RemoteID,
	).Scan(&localID)

	if err == sql.ErrNoRows {
		localID = GenerateID()
		_, err = r.DB().ExecContext(ctx, `
			INSERT INTO events (
				id, remote_id, calendar_id, title, description, location,
				start_time, end_time, all_day, status, organizer_email, organizer_self,
				self_response, recurrence_rule, recurring_event_id, conference_url,
				attachments, reminders, etag, local_only, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		`,
			localID, *ev.RemoteID, ev.CalendarID, ev.Title, ev.Description, ev.Location,
			ev.Start, ev.End, ev.AllDay, ev.Status, ev.OrganizerEmail, ev.OrganizerSelf,
			ev.SelfResponse, ev.RecurrenceRule, ev.RecurringEventID, ev.ConferenceURL,
			ev.Attachments, ev.Reminders, ev.ETag, now, now,
		)
		if err != nil {
			return "", fmt.Errorf("inserting event: %w", err)
		}
		return localID, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving event by remote id: %w", err)
	}

	_, err = r.DB().ExecContext(ctx, `
		UPDATE events SET
			calendar_id = ?, title = ?, description = ?, location = ?,
			start_time = ?, end_time = ?, all_day = ?, status = ?,
			organizer_email = ?, organizer_self = ?, self_response = ?,
			recurrence_rule = ?, recurring_event_id = ?, conference_url = ?,
			attachments = ?, reminders = ?, etag = ?, local_only = 0, updated_at = ?
		WHERE id = ?
	`,
		ev.CalendarID, ev.Title, ev.Description, ev.Location,
		ev.Start, ev.End, ev.AllDay, ev.Status,
		ev.OrganizerEmail, ev.OrganizerSelf, ev.SelfResponse,
		ev.RecurrenceRule, ev.RecurringEventID, ev.ConferenceURL,
		ev.Attachments, ev.Reminders, ev.ETag, now,
		localID,
	)
	if err != nil {
		return "", fmt.Errorf("updating event: %w", err)
	}

	return localID, nil
}

// UpsertAttendees replaces the full attendee set for an event. The remote
// provider is authoritative for attendee state, so this is delete-then-insert
// in one transaction.
func (r *EventRepository) UpsertAttendees(ctx context.Context, localEventID string, attendees []models.Attendee) error {
	return r.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM attendees WHERE event_id = ?", localEventID); err != nil {
			return fmt.Errorf("deleting attendees: %w", err)
		}

		for _, a := range attendees {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO attendees (event_id, email, display_name, response_status, is_self, is_organizer, optional)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, localEventID, a.Email, a.DisplayName, a.ResponseStatus, a.Self, a.Organizer, a.Optional)
			if err != nil {
				return fmt.Errorf("inserting attendee %s: %w", a.Email, err)
			}
		}

		return nil
	})
}

// CreateLocal persists a user-created event that has never been confirmed
// remotely: local_only with a pending create action whose payload is the
// creation input itself, ready for a later queue drain.
func (r *EventRepository) CreateLocal(ctx context.Context, input models.EventInput) (*models.Event, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("serializing event input: %w", err)
	}

	now := r.Now()
	ev := &models.Event{
		ID:          GenerateID(),
		CalendarID:  input.CalendarID,
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		Start:       input.Start,
		End:         input.End,
		AllDay:      input.AllDay,
		Status:      models.EventStatusConfirmed,
		LocalOnly:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	action := models.PendingCreate
	payloadStr := string(payload)
	ev.PendingAction = &action
	ev.PendingPayload = &payloadStr

	_, err = r.DB().ExecContext(ctx, `
		INSERT INTO events (
			id, calendar_id, title, description, location,
			start_time, end_time, all_day, status,
			local_only, pending_action, pending_payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	`,
		ev.ID, ev.CalendarID, ev.Title, ev.Description, ev.Location,
		ev.Start, ev.End, ev.AllDay, ev.Status,
		*ev.PendingAction, *ev.PendingPayload, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting local event: %w", err)
	}

	return ev, nil
}

// MarkPending records a pending remote mutation on the event row. An event
// carries at most one pending action: a new one overwrites the previous
// action and payload rather than accumulating.
func (r *EventRepository) MarkPending(ctx context.Context, id, action string, payload *string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET pending_action = ?, pending_payload = ?, updated_at = ?
		WHERE id = ?
	`, action, payload, r.Now(), id)
	if err != nil {
		return fmt.Errorf("marking event pending: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// MarkSynced records the remote identity of an event after a successful
// remote application: remote id and change tag are stored, local_only and
// the pending action state are cleared.
func (r *EventRepository) MarkSynced(ctx context.Context, id, remoteID, etag string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET
			remote_id = ?, etag = ?, local_only = 0,
			pending_action = NULL, pending_payload = NULL, updated_at = ?
		WHERE id = ?
	`, remoteID, etag, r.Now(), id)
	if err != nil {
		return fmt.Errorf("marking event synced: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// SetRemoteIdentity records the remote id and change tag without touching
// pending state, for when a drained mutation was superseded by a newer
// pending action on the same event.
func (r *EventRepository) SetRemoteIdentity(ctx context.Context, id, remoteID, etag string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET remote_id = ?, etag = ?, local_only = 0, updated_at = ?
		WHERE id = ?
	`, remoteID, etag, r.Now(), id)
	if err != nil {
		return fmt.Errorf("recording remote identity: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// UpdateLocal overwrites the user-editable fields of an event. This is the
// optimistic local half of a user edit; the remote half is attempted or
// queued by the caller.
func (r *EventRepository) UpdateLocal(ctx context.Context, id string, input models.EventInput) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET
			title = ?, description = ?, location = ?,
			start_time = ?, end_time = ?, all_day = ?, updated_at = ?
		WHERE id = ?
	`, input.Title, input.Description, input.Location, input.Start, input.End, input.AllDay, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating event fields: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// SetSelfResponse records the user's RSVP locally.
func (r *EventRepository) SetSelfResponse(ctx context.Context, id, response string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE events SET self_response = ?, updated_at = ? WHERE id = ?
	`, response, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating self response: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// Delete hard-deletes an event by local id. Attendees cascade.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("event not found: %s", id)
	}

	return nil
}

// DeleteCancelled removes the local copy of a remotely-cancelled event.
// Cancellation notices are delivered at least once, so a missing row is a
// logged no-op rather than an error.
func (r *EventRepository) DeleteCancelled(ctx context.Context, remoteID string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM events WHERE remote_id = ?", remoteID)
	if err != nil {
		return fmt.Errorf("deleting cancelled event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		log.Printf("Cancelled event %s not found locally, ignoring", remoteID)
	}

	return nil
}

// ReconcileRange deletes locally-cached, remote-confirmed events in the
// window whose remote id is absent from liveRemoteIDs — the events a full
// listing implicitly reports as gone by omission. Local-only rows and rows
// with a pending action are never touched. Returns the number removed.
func (r *EventRepository) ReconcileRange(ctx context.Context, calendarID string, liveRemoteIDs map[string]bool, rangeStart, rangeEnd time.Time) (int, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, remote_id FROM events
		WHERE calendar_id = ?
		  AND remote_id IS NOT NULL
		  AND local_only = 0
		  AND pending_action IS NULL
		  AND start_time < ? AND end_time > ?
	`, calendarID, rangeEnd, rangeStart)
	if err != nil {
		return 0, fmt.Errorf("querying events for reconciliation: %w", err)
	}
	defer rows.Close()

	var orphans []string
	for rows.Next() {
		var id, remoteID string
		if err := rows.Scan(&id, &remoteID); err != nil {
			return 0, fmt.Errorf("scanning event: %w", err)
		}
		if !liveRemoteIDs[remoteID] {
			orphans = append(orphans, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range orphans {
		if _, err := r.DB().ExecContext(ctx, "DELETE FROM events WHERE id = ?", id); err != nil {
			return removed, fmt.Errorf("deleting orphaned event %s: %w", id, err)
		}
		removed++
	}

	return removed, nil
}

// Agenda returns events whose interval intersects the requested window, on
// visible calendars, excluding cancelled events and declined self-responses.
// All-day events sort first, then by start time.
func (r *EventRepository) Agenda(ctx context.Context, rangeStart, rangeEnd time.Time) ([]models.Event, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE calendar_id IN (SELECT id FROM calendars WHERE visible = 1)
		  AND status != ?
		  AND self_response != ?
		  AND start_time < ? AND end_time > ?
		ORDER BY all_day DESC, start_time ASC
	`, models.EventStatusCancelled, models.ResponseDeclined, rangeEnd, rangeStart)
	if err != nil {
		return nil, fmt.Errorf("querying agenda: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *ev)
	}

	return events, rows.Err()
}

// ListPending returns events carrying a pending action, oldest first. Queue
// drains sweep these in addition to the mutation queue, since creations and
// deletions are recorded directly on the event row.
func (r *EventRepository) ListPending(ctx context.Context) ([]models.Event, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE pending_action IS NOT NULL
		ORDER BY updated_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying pending events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *ev)
	}

	return events, rows.Err()
}

// GetByID retrieves an event and its attendees by local id.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	if ev.Attendees, err = r.attendeesFor(ctx, ev.ID); err != nil {
		return nil, err
	}

	return ev, nil
}

// GetByRemoteID retrieves an event and its attendees by remote id.
func (r *EventRepository) GetByRemoteID(ctx context.Context, remoteID string) (*models.Event, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE remote_id = ?`, remoteID)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	if ev.Attendees, err = r.attendeesFor(ctx, ev.ID); err != nil {
		return nil, err
	}

	return ev, nil
}

func (r *EventRepository) attendeesFor(ctx context.Context, eventID string) ([]models.Attendee, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT event_id, email, display_name, response_status, is_self, is_organizer, optional
		FROM attendees WHERE event_id = ?
		ORDER BY is_organizer DESC, email
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying attendees: %w", err)
	}
	defer rows.Close()

	var attendees []models.Attendee
	for rows.Next() {
		var a models.Attendee
		if err := rows.Scan(&a.EventID, &a.Email, &a.DisplayName, &a.ResponseStatus, &a.Self, &a.Organizer, &a.Optional); err != nil {
			return nil, fmt.Errorf("scanning attendee: %w", err)
		}
		attendees = append(attendees, a)
	}

	return attendees, rows.Err()
}
