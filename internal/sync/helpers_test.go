package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calmirror/backend/internal/connectivity"
	"github.com/calmirror/backend/internal/remote"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/storage/models"
)

// fakeClient is an in-memory remote.Client with injectable failures and call
// accounting. Tests drive it single-goroutine.
type fakeClient struct {
	calendars   []models.Calendar
	listCalsErr error

	windowed map[string]*remote.ListResult // per calendar, windowed listings
	byToken  map[string]*remote.ListResult // per calendar, token listings
	listErr  map[string]error
	tokenErr map[string]error

	createErr error
	updateErr map[string]error // keyed by remote id
	deleteErr map[string]error
	rsvpErr   error

	windowedCalls map[string]int
	tokenCalls    map[string]int
	created       []models.EventInput
	updated       map[string]models.EventInput
	deleted       []string
	rsvps         map[string]string
	nextID        int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		windowed:      make(map[string]*remote.ListResult),
		byToken:       make(map[string]*remote.ListResult),
		listErr:       make(map[string]error),
		tokenErr:      make(map[string]error),
		updateErr:     make(map[string]error),
		deleteErr:     make(map[string]error),
		windowedCalls: make(map[string]int),
		tokenCalls:    make(map[string]int),
		updated:       make(map[string]models.EventInput),
		rsvps:         make(map[string]string),
	}
}

func (f *fakeClient) ListCalendars(ctx context.Context) ([]models.Calendar, error) {
	if f.listCalsErr != nil {
		return nil, f.listCalsErr
	}
	return f.calendars, nil
}

func (f *fakeClient) ListEvents(ctx context.Context, calendarID string, opts remote.ListOptions) (*remote.ListResult, error) {
	if opts.SyncToken != "" {
		f.tokenCalls[calendarID]++
		if err := f.tokenErr[calendarID]; err != nil {
			return nil, err
		}
		if res, ok := f.byToken[calendarID]; ok {
			return res, nil
		}
		return &remote.ListResult{}, nil
	}

	f.windowedCalls[calendarID]++
	if err := f.listErr[calendarID]; err != nil {
		return nil, err
	}
	if res, ok := f.windowed[calendarID]; ok {
		return res, nil
	}
	return &remote.ListResult{}, nil
}

func (f *fakeClient) CreateEvent(ctx context.Context, calendarID string, input models.EventInput) (string, string, error) {
	if f.createErr != nil {
		return "", "", f.createErr
	}
	f.created = append(f.created, input)
	f.nextID++
	return fmt.Sprintf("rem-%d", f.nextID), fmt.Sprintf("etag-%d", f.nextID), nil
}

func (f *fakeClient) UpdateEvent(ctx context.Context, calendarID, remoteID string, input models.EventInput) (string, error) {
	if err := f.updateErr[remoteID]; err != nil {
		return "", err
	}
	f.updated[remoteID] = input
	f.nextID++
	return fmt.Sprintf("etag-%d", f.nextID), nil
}

func (f *fakeClient) DeleteEvent(ctx context.Context, calendarID, remoteID string) error {
	if err := f.deleteErr[remoteID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, remoteID)
	return nil
}

func (f *fakeClient) RSVP(ctx context.Context, calendarID, remoteID, response string) error {
	if f.rsvpErr != nil {
		return f.rsvpErr
	}
	f.rsvps[remoteID] = response
	return nil
}

func (f *fakeClient) GetEvent(ctx context.Context, calendarID, remoteID string) (*models.Event, error) {
	return nil, &remote.Error{Kind: remote.KindNotFound, Op: "events.get", Err: errors.New("not in fake")}
}

func (f *fakeClient) FreeBusy(ctx context.Context, calendarIDs []string, timeMin, timeMax time.Time) (map[string][]remote.BusyInterval, error) {
	return map[string][]remote.BusyInterval{}, nil
}

func transportErr() error {
	return &remote.Error{Kind: remote.KindTransport, Op: "events.list", Err: errors.New("dial tcp: connection refused")}
}

func staleTokenErr() error {
	return &remote.Error{Kind: remote.KindStaleToken, Op: "events.list", Err: errors.New("sync token expired")}
}

func notFoundErr() error {
	return &remote.Error{Kind: remote.KindNotFound, Op: "events.delete", Err: errors.New("not found")}
}

func remoteErr() error {
	return &remote.Error{Kind: remote.KindRemote, Op: "events.update", Err: errors.New("backend error")}
}

type testEnv struct {
	db      *storage.DB
	cals    *storage.CalendarRepository
	events  *storage.EventRepository
	queue   *storage.QueueRepository
	client  *fakeClient
	monitor *connectivity.Monitor
	engine  *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db))

	env := &testEnv{
		db:      db,
		cals:    storage.NewCalendarRepository(db),
		events:  storage.NewEventRepository(db),
		queue:   storage.NewQueueRepository(db),
		client:  newFakeClient(),
		monitor: connectivity.NewMonitor(nil, connectivity.Config{Debounce: 5 * time.Millisecond}),
	}
	t.Cleanup(env.monitor.Stop)

	env.engine = NewEngine(env.cals, env.events, env.queue, env.client, env.monitor, nil, 0, 0)
	return env
}

// goOffline drives the monitor to a committed offline state.
func (env *testEnv) goOffline(t *testing.T) {
	t.Helper()
	env.monitor.ReportOffline()
	require.Eventually(t, func() bool { return !env.monitor.IsOnline() }, time.Second, time.Millisecond)
}

func (env *testEnv) goOnline(t *testing.T) {
	t.Helper()
	env.monitor.ReportOnline()
	require.Eventually(t, func() bool { return env.monitor.IsOnline() }, time.Second, time.Millisecond)
}

func (env *testEnv) seedCalendar(t *testing.T, id string, token *string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.cals.Upsert(ctx, &models.Calendar{
		ID: id, Summary: "Calendar " + id, AccessRole: models.AccessRoleOwner, Visible: true,
	}))
	if token != nil {
		require.NoError(t, env.cals.UpdateSyncToken(ctx, id, token))
	}
}

func strPtr(s string) *string { return &s }

func confirmedEvent(remoteID, calendarID, title string, start time.Time) models.Event {
	return models.Event{
		RemoteID:   strPtr(remoteID),
		CalendarID: calendarID,
		Title:      title,
		Start:      start,
		End:        start.Add(time.Hour),
		Status:     models.EventStatusConfirmed,
	}
}
