package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calmirror/backend/internal/storage/models"
)

func newEventService(env *testEnv) *EventService {
	return NewEventService(env.events, env.queue, env.client, env.monitor)
}

func TestEventService_CreateOnline(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)

	start := time.Now().UTC().Add(24 * time.Hour)
	ev, err := svc.CreateEvent(ctx, models.EventInput{
		CalendarID: "cal-1", Title: "Lunch", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.False(t, ev.LocalOnly)
	assert.False(t, ev.IsPending())
	require.NotNil(t, ev.RemoteID)
	require.Len(t, env.client.created, 1)
}

func TestEventService_CreateOffline_StaysPending(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)
	env.goOffline(t)

	start := time.Now().UTC().Add(24 * time.Hour)
	ev, err := svc.CreateEvent(ctx, models.EventInput{
		CalendarID: "cal-1", Title: "Lunch", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	// The local write succeeds; the remote half waits for a drain.
	assert.True(t, ev.LocalOnly)
	require.True(t, ev.IsPending())
	assert.Equal(t, models.PendingCreate, *ev.PendingAction)
	assert.Nil(t, ev.RemoteID)
	assert.Empty(t, env.client.created)
}

func TestEventService_CreateOnline_RemoteFailureDefers(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)
	env.client.createErr = transportErr()

	start := time.Now().UTC().Add(24 * time.Hour)
	ev, err := svc.CreateEvent(ctx, models.EventInput{
		CalendarID: "cal-1", Title: "Lunch", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err, "a failed remote attempt must not fail the local create")
	assert.True(t, ev.IsPending())
}

func TestEventService_UpdateOffline_Enqueues(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)

	start := time.Now().UTC().Add(24 * time.Hour)
	confirmed := confirmedEvent("rem-1", "cal-1", "Original", start)
	id, err := env.events.Upsert(ctx, &confirmed)
	require.NoError(t, err)

	env.goOffline(t)

	ev, err := svc.UpdateEvent(ctx, id, models.EventInput{
		CalendarID: "cal-1", Title: "Edited", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "Edited", ev.Title)
	require.True(t, ev.IsPending())
	assert.Equal(t, models.PendingUpdate, *ev.PendingAction)

	items, err := env.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionUpdate, items[0].Action)
	require.NotNil(t, items[0].RemoteEventID)
	assert.Equal(t, "rem-1", *items[0].RemoteEventID)
}

func TestEventService_UpdateUnconfirmed_KeepsPendingCreate(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)
	env.goOffline(t)

	start := time.Now().UTC().Add(24 * time.Hour)
	ev, err := svc.CreateEvent(ctx, models.EventInput{
		CalendarID: "cal-1", Title: "Draft", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateEvent(ctx, ev.ID, models.EventInput{
		CalendarID: "cal-1", Title: "Draft v2", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	// Editing a never-confirmed event stays a create; nothing to update
	// remotely, so nothing goes on the queue.
	require.True(t, updated.IsPending())
	assert.Equal(t, models.PendingCreate, *updated.PendingAction)

	count, err := env.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEventService_DeleteUnconfirmed_RemovesLocally(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)
	env.goOffline(t)

	start := time.Now().UTC().Add(24 * time.Hour)
	ev, err := svc.CreateEvent(ctx, models.EventInput{
		CalendarID: "cal-1", Title: "Never happened", Start: start, End: start.Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEvent(ctx, ev.ID))

	got, err := env.events.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, env.client.deleted)
}

func TestEventService_DeleteOffline_MarksPending(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)

	start := time.Now().UTC().Add(24 * time.Hour)
	confirmed := confirmedEvent("rem-1", "cal-1", "Meeting", start)
	id, err := env.events.Upsert(ctx, &confirmed)
	require.NoError(t, err)

	env.goOffline(t)
	require.NoError(t, svc.DeleteEvent(ctx, id))

	// The row survives so the deletion can be replayed after a restart.
	got, err := env.events.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.IsPending())
	assert.Equal(t, models.PendingDelete, *got.PendingAction)
}

func TestEventService_RSVP(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)

	start := time.Now().UTC().Add(24 * time.Hour)
	confirmed := confirmedEvent("rem-1", "cal-1", "Invite", start)
	id, err := env.events.Upsert(ctx, &confirmed)
	require.NoError(t, err)

	require.NoError(t, svc.RSVP(ctx, id, models.ResponseAccepted))

	got, err := env.events.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseAccepted, got.SelfResponse)
	assert.Equal(t, models.ResponseAccepted, env.client.rsvps["rem-1"])
}

func TestEventService_RSVPOffline_Enqueues(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)
	ctx := context.Background()
	env.seedCalendar(t, "cal-1", nil)

	start := time.Now().UTC().Add(24 * time.Hour)
	confirmed := confirmedEvent("rem-1", "cal-1", "Invite", start)
	id, err := env.events.Upsert(ctx, &confirmed)
	require.NoError(t, err)

	env.goOffline(t)
	require.NoError(t, svc.RSVP(ctx, id, models.ResponseDeclined))

	// Local response recorded immediately.
	got, err := env.events.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ResponseDeclined, got.SelfResponse)

	items, err := env.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionRSVP, items[0].Action)
	assert.Equal(t, models.ResponseDeclined, items[0].Payload)
}

func TestEventService_RSVP_InvalidResponse(t *testing.T) {
	env := newTestEnv(t)
	svc := newEventService(env)

	err := svc.RSVP(context.Background(), "any", "maybe")
	assert.Error(t, err)
}
