package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmirror/backend/internal/storage/models"
)

func TestEventRepository_Upsert_Idempotent(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-1")
	repo := NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	ev := remoteEvent("rem-1", "cal-1", "Standup", start, start.Add(30*time.Minute))

	id1, err := repo.Upsert(ctx, ev)
	require.NoError(t, err)

	// Same remote payload delivered again converges to the same row.
	ev2 := remoteEvent("rem-1", "cal-1", "Standup (moved)", start.Add(time.Hour), start.Add(2*time.Hour))
	id2, err := repo.Upsert(ctx, ev2)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := repo.GetByID(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Standup (moved)", got.Title)
	assert.True(t, got.Start.Equal(start.Add(time.Hour)))

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEventRepository_Upsert_RequiresRemoteID(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-1")
	repo := NewEventRepository(db)

	_, err := repo.Upsert(context.Background(), &models.Event{CalendarID: "cal-1", Title: "no id"})
	assert.Error(t, err)
}

func TestEventRepository_Upsert_PreservesPendingState(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-1")
	repo := NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	id, err := repo.Upsert(ctx, remoteEvent("rem-1", "cal-1", "Review", start, start.Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, repo.MarkPending(ctx, id, models.PendingUpdate, strPtr(`{"title":"Edited"}`)))

	// A re-sync of the same remote event must not clobber the queued edit.
	_, err = repo.Upsert(ctx, remoteEvent("rem-1", "cal-1", "Review", start, start.Add(time.Hour)))
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, got.IsPending())
	assert.Equal(t, models.PendingUpdate, *got.PendingAction)
	require.NotNil(t, got.PendingPayload)
	assert.Equal(t, `{"title":"Edited"}`, *got.PendingPayload)
}

func TestEventRepository_CreateLocal_MarkSynced(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-1")
	repo := NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 9, 12, 9, 0, 0, 0, time.UTC)
	ev, err := repo.CreateLocal(ctx, models.EventInput{
		CalendarID: "cal-1",
		Title:      "Dentist",
		Start:      start,
		End:        start.Add(time.Hour),
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LocalOnly)
	assert.Nil(t, got.RemoteID)
	require.True(t, got.IsPending())
	assert.Equal(t, models.PendingCreate, *got.PendingAction)

	// Remote confirmation clears the whole unconfirmed state.
	require.NoError(t, repo.MarkSynced(ctx, ev.ID, "rem-new", "etag-1"))

	got, err = repo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, got.LocalOnly)
	assert.False(t, got.IsPending())
	require.NotNil(t, got.RemoteID)
	assert.Equal(t, "rem-new", *got.RemoteID)
	assert.Equal(t, "etag-1", got.ETag)
}

func TestEventRepository_MarkPending_Overwrites(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-1")
	repo := NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 9, 12, 9, 0, 0, 0, time.UTC)
	id, err := repo.Upsert(ctx, remoteEvent("rem-1", "cal-1", "Lunch", start, start.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, repo.MarkPending(ctx, id, models.PendingUpdate, strPtr(`{"title":"Brunch"}`)))
	require.NoError(t, repo.MarkPending(ctx, id, models.PendingDelete, nil))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, got.IsPending())
	assert.Equal(t, models.PendingDelete, *got.PendingAction)
	assert.Nil(t, got.PendingPayload)
}

func TestEventRepository_ReconcileRange(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-1")
	repo := NewEventRepository(db)
	ctx := context.Background()

	windowStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	at := func(day int) time.Time { return time.Date(2026, 9, day, 12, 0, 0, 0, time.UTC) }

	// Confirmed event the listing still reports.
	kept, err := repo.Upsert(ctx, remoteEvent("rem-live", "cal-1", "Live", at(5), at(5).Add(time.Hour)))
	require.NoError(t, err)

	// Confirmed event the listing no longer reports.
	gone, err := repo.Upsert(ctx, remoteEvent("rem-gone", "cal-1", "Gone", at(6), at(6).Add(time.Hour)))
	require.NoError(t, err)

	// Confirmed but carrying a pending edit; must survive even though absent.
	pending, err := repo.Upsert(ctx, remoteEvent("rem-pending", "cal-1", "Pending", at(7), at(7).Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, repo.MarkPending(ctx, pending, models.PendingUpdate, strPtr(`{}`)))

	// Never confirmed remotely; must survive.
	local, err := repo.CreateLocal(ctx, models.EventInput{
		CalendarID: "cal-1", Title: "Local", Start: at(8), End: at(8).Add(time.Hour),
	})
	require.NoError(t, err)

	// Outside the window; must survive even though absent from the listing.
	outside, err := repo.Upsert(ctx, remoteEvent("rem-outside", "cal-1", "Outside",
		windowEnd.AddDate(0, 1, 0), windowEnd.AddDate(0, 1, 0).Add(time.Hour)))
	require.NoError(t, err)

	removed, err := repo.ReconcileRange(ctx, "cal-1", map[string]bool{"rem-live": true}, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	for _, id := range []string{kept, pending, local.ID, outside} {
		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got, "event %s should survive reconciliation", id)
	}

	got, err := repo.GetByID(ctx, gone)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEventRepository_DeleteCancelled_MissingRowIsNoop(t *testing.T) {
	db := testDB(t)
	repo := NewEventRepository(db)

	// Cancellation notices can arrive more than once.
	assert.NoError(t, repo.DeleteCancelled(context.Background(), "rem-unknown"))
}

func TestEventRepository_Agenda(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-visible")
	seedCalendar(t, db, "cal-hidden")
	calRepo := NewCalendarRepository(db)
	repo := NewEventRepository(db)
	ctx := context.Background()

	require.NoError(t, calRepo.SetVisible(ctx, "cal-hidden", false))

	day := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	timed := remoteEvent("rem-timed", "cal-visible", "Timed", day.Add(9*time.Hour), day.Add(10*time.Hour))
	_, err := repo.Upsert(ctx, timed)
	require.NoError(t, err)

	allDay := remoteEvent("rem-allday", "cal-visible", "All day", day, day.AddDate(0, 0, 1))
	allDay.AllDay = true
	_, err = repo.Upsert(ctx, allDay)
	require.NoError(t, err)

	cancelled := remoteEvent("rem-cancelled", "cal-visible", "Cancelled", day.Add(11*time.Hour), day.Add(12*time.Hour))
	cancelled.Status = models.EventStatusCancelled
	_, err = repo.Upsert(ctx, cancelled)
	require.NoError(t, err)

	declined := remoteEvent("rem-declined", "cal-visible", "Declined", day.Add(13*time.Hour), day.Add(14*time.Hour))
	declined.SelfResponse = models.ResponseDeclined
	_, err = repo.Upsert(ctx, declined)
	require.NoError(t, err)

	hidden := remoteEvent("rem-hidden", "cal-hidden", "Hidden", day.Add(15*time.Hour), day.Add(16*time.Hour))
	_, err = repo.Upsert(ctx, hidden)
	require.NoError(t, err)

	events, err := repo.Agenda(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "All day", events[0].Title)
	assert.Equal(t, "Timed", events[1].Title)
}

func TestEventRepository_AttendeesCascadeOnDelete(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-1")
	repo := NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 9, 20, 10, 0, 0, 0, time.UTC)
	id, err := repo.Upsert(ctx, remoteEvent("rem-1", "cal-1", "Planning", start, start.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, repo.UpsertAttendees(ctx, id, []models.Attendee{
		{Email: "a@example.com", ResponseStatus: models.ResponseAccepted, Organizer: true},
		{Email: "b@example.com", ResponseStatus: models.ResponseNeedsAction},
	}))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Attendees, 2)
	assert.Equal(t, "a@example.com", got.Attendees[0].Email, "organizer sorts first")

	// Replacement, not accumulation.
	require.NoError(t, repo.UpsertAttendees(ctx, id, []models.Attendee{
		{Email: "c@example.com", ResponseStatus: models.ResponseTentative},
	}))
	got, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Attendees, 1)

	require.NoError(t, repo.Delete(ctx, id))

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM attendees").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEventRepository_ListPending_OldestFirst(t *testing.T) {
	db := testDB(t)
	seedCalendar(t, db, "cal-1")
	repo := NewEventRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 9, 21, 8, 0, 0, 0, time.UTC)
	first, err := repo.CreateLocal(ctx, models.EventInput{
		CalendarID: "cal-1", Title: "First", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	// Force distinct updated_at stamps.
	_, err = db.Exec("UPDATE events SET updated_at = ? WHERE id = ?", time.Now().UTC().Add(-time.Hour), first.ID)
	require.NoError(t, err)

	second, err := repo.CreateLocal(ctx, models.EventInput{
		CalendarID: "cal-1", Title: "Second", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}
