// Package sync implements the synchronization engine: full and incremental
// passes that reconcile the local store against the remote provider, and the
// drain of locally queued mutations when connectivity returns.
package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/calmirror/backend/internal/connectivity"
	"github.com/calmirror/backend/internal/remote"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/storage/models"
)

// Status is the engine's externally visible state.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusSyncing Status = "syncing"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Snapshot is the observable engine state, pushed on every change and
// pollable on demand.
type Snapshot struct {
	Status       Status     `json:"status"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	PendingQueue int        `json:"pending_queue"`
}

// Result summarizes one sync pass.
type Result struct {
	Kind           string        `json:"kind"` // "full" or "incremental"
	Calendars      int           `json:"calendars"`
	EventsUpserted int           `json:"events_upserted"`
	EventsDeleted  int           `json:"events_deleted"`
	Reconciled     int           `json:"reconciled"`
	Duration       time.Duration `json:"duration"`
}

// Notifier receives engine state changes for the observer layer. A nil
// notifier is allowed.
type Notifier interface {
	SyncStatusChanged(snap Snapshot)
	SyncCompleted(result Result)
	SyncFailed(kind string, err error)
}

// Engine orchestrates full sync, incremental sync and queue draining against
// the local store and the remote client. All engine state lives on this
// struct; one instance per store.
type Engine struct {
	calendarRepo *storage.CalendarRepository
	eventRepo    *storage.EventRepository
	queueRepo    *storage.QueueRepository
	client       remote.Client
	monitor      *connectivity.Monitor
	notifier     Notifier

	windowBack    time.Duration
	windowForward time.Duration

	mu         sync.Mutex
	status     Status
	lastSyncAt *time.Time

	// inFlight enforces exactly one sync operation at a time, so two
	// concurrent passes cannot interleave upserts and reconciliation
	// deletes on the same calendar.
	inFlight sync.Mutex
}

// NewEngine creates a sync engine. The initial status is synced.
func NewEngine(
	calendarRepo *storage.CalendarRepository,
	eventRepo *storage.EventRepository,
	queueRepo *storage.QueueRepository,
	client remote.Client,
	monitor *connectivity.Monitor,
	notifier Notifier,
	windowBack, windowForward time.Duration,
) *Engine {
	if windowBack <= 0 {
		windowBack = 30 * 24 * time.Hour
	}
	if windowForward <= 0 {
		windowForward = 90 * 24 * time.Hour
	}

	return &Engine{
		calendarRepo:  calendarRepo,
		eventRepo:     eventRepo,
		queueRepo:     queueRepo,
		client:        client,
		monitor:       monitor,
		notifier:      notifier,
		windowBack:    windowBack,
		windowForward: windowForward,
		status:        StatusSynced,
	}
}

// Status returns the current snapshot.
func (e *Engine) Status(ctx context.Context) Snapshot {
	e.mu.Lock()
	status := e.status
	lastSync := e.lastSyncAt
	e.mu.Unlock()

	count, err := e.queueRepo.Count(ctx)
	if err != nil {
		log.Printf("Failed to count queue items: %v", err)
	}

	return Snapshot{Status: status, LastSyncAt: lastSync, PendingQueue: count}
}

func (e *Engine) setStatus(ctx context.Context, status Status) {
	e.mu.Lock()
	changed := e.status != status
	e.status = status
	e.mu.Unlock()

	if changed && e.notifier != nil {
		e.notifier.SyncStatusChanged(e.Status(ctx))
	}
}

// FullSync lists all calendars, pulls a bounded window of events for each
// visible calendar, reconciles local copies against the live set, and stores
// fresh incremental tokens.
func (e *Engine) FullSync(ctx context.Context) error {
	return e.runPass(ctx, "full", e.fullSync)
}

// IncrementalSync pulls only what changed since each calendar's stored sync
// token, falling back to a windowed listing per calendar when the token is
// missing or expired.
func (e *Engine) IncrementalSync(ctx context.Context) error {
	return e.runPass(ctx, "incremental", e.incrementalSync)
}

// runPass wraps a sync pass with the single-flight guard, the offline
// short-circuit and the status transitions.
func (e *Engine) runPass(ctx context.Context, kind string, fn func(ctx context.Context) (*Result, error)) error {
	if !e.inFlight.TryLock() {
		log.Printf("Skipping %s sync: another sync operation is in flight", kind)
		return nil
	}
	defer e.inFlight.Unlock()

	if !e.monitor.IsOnline() {
		e.setStatus(ctx, StatusOffline)
		return nil
	}

	e.setStatus(ctx, StatusSyncing)
	start := time.Now()

	result, err := fn(ctx)
	if err != nil {
		e.finishFailed(ctx, kind, err)
		return err
	}

	result.Kind = kind
	result.Duration = time.Since(start)

	now := time.Now().UTC()
	e.mu.Lock()
	e.lastSyncAt = &now
	e.mu.Unlock()

	// Successful remote I/O is a stronger online signal than the probe.
	e.monitor.ReportOnline()
	e.setStatus(ctx, StatusSynced)

	log.Printf("Sync pass (%s) completed: %d calendars, %d upserted, %d deleted, %d reconciled in %s",
		result.Kind, result.Calendars, result.EventsUpserted, result.EventsDeleted, result.Reconciled, result.Duration)

	if e.notifier != nil {
		e.notifier.SyncCompleted(*result)
	}

	return nil
}

func (e *Engine) finishFailed(ctx context.Context, kind string, err error) {
	switch {
	case remote.IsTransport(err):
		log.Printf("Sync pass (%s) hit a transport failure: %v", kind, err)
		e.monitor.ReportOffline()
		e.setStatus(ctx, StatusOffline)
	case remote.IsAuth(err):
		log.Printf("Sync pass (%s) not authorized: %v", kind, err)
		e.setStatus(ctx, StatusError)
	default:
		log.Printf("Sync pass (%s) failed: %v", kind, err)
		e.setStatus(ctx, StatusError)
	}

	if e.notifier != nil {
		e.notifier.SyncFailed(kind, err)
	}
}

func (e *Engine) fullSync(ctx context.Context) (*Result, error) {
	result := &Result{}

	calendars, err := e.client.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}

	for i := range calendars {
		if err := e.calendarRepo.Upsert(ctx, &calendars[i]); err != nil {
			log.Printf("Failed to upsert calendar %s: %v", calendars[i].ID, err)
		}
	}

	visible, err := e.calendarRepo.ListVisible(ctx)
	if err != nil {
		return nil, err
	}

	for _, cal := range visible {
		if err := e.syncCalendarWindowed(ctx, cal, result); err != nil {
			// Transport and auth failures affect every remaining
			// calendar; anything else is scoped to this one.
			if remote.IsTransport(err) || remote.IsAuth(err) {
				return nil, err
			}
			log.Printf("Failed to sync calendar %s: %v", cal.ID, err)
			continue
		}
		result.Calendars++
	}

	return result, nil
}

func (e *Engine) incrementalSync(ctx context.Context) (*Result, error) {
	result := &Result{}

	visible, err := e.calendarRepo.ListVisible(ctx)
	if err != nil {
		return nil, err
	}

	for _, cal := range visible {
		if err := e.syncCalendarIncremental(ctx, cal, result); err != nil {
			if remote.IsTransport(err) || remote.IsAuth(err) {
				return nil, err
			}
			log.Printf("Failed to sync calendar %s: %v", cal.ID, err)
			continue
		}
		result.Calendars++
	}

	return result, nil
}

// syncCalendarWindowed performs the full listing treatment for one calendar:
// windowed listing, upsert-or-delete per event, reconciliation of local
// copies the listing implicitly reported gone, and token storage.
func (e *Engine) syncCalendarWindowed(ctx context.Context, cal models.Calendar, result *Result) error {
	now := time.Now().UTC()
	timeMin := now.Add(-e.windowBack)
	timeMax := now.Add(e.windowForward)

	listing, err := e.client.ListEvents(ctx, cal.ID, remote.ListOptions{TimeMin: timeMin, TimeMax: timeMax})
	if err != nil {
		return err
	}

	live := make(map[string]bool, len(listing.Events))
	e.applyEvents(ctx, listing.Events, live, result)

	removed, err := e.eventRepo.ReconcileRange(ctx, cal.ID, live, timeMin, timeMax)
	if err != nil {
		log.Printf("Failed to reconcile calendar %s: %v", cal.ID, err)
	}
	result.Reconciled += removed

	return e.storeSyncToken(ctx, cal.ID, listing.NextSyncToken)
}

// syncCalendarIncremental lists changes by sync token. No reconciliation
// runs here: change feeds are authoritative only for what changed, not for
// the full live set.
func (e *Engine) syncCalendarIncremental(ctx context.Context, cal models.Calendar, result *Result) error {
	if cal.SyncToken == nil || *cal.SyncToken == "" {
		return e.syncCalendarWindowed(ctx, cal, result)
	}

	listing, err := e.client.ListEvents(ctx, cal.ID, remote.ListOptions{SyncToken: *cal.SyncToken})
	if remote.IsStaleToken(err) {
		log.Printf("Sync token expired for calendar %s, falling back to windowed listing", cal.ID)
		return e.syncCalendarWindowed(ctx, cal, result)
	}
	if err != nil {
		return err
	}

	e.applyEvents(ctx, listing.Events, nil, result)

	return e.storeSyncToken(ctx, cal.ID, listing.NextSyncToken)
}

// applyEvents upserts or deletes each listed event. Per-event failures are
// logged and skipped; one bad event must not abort the calendar's sync.
func (e *Engine) applyEvents(ctx context.Context, events []models.Event, live map[string]bool, result *Result) {
	for i := range events {
		ev := &events[i]
		if ev.RemoteID == nil || *ev.RemoteID == "" {
			continue
		}

		if ev.Status == models.EventStatusCancelled {
			if err := e.eventRepo.DeleteCancelled(ctx, *ev.RemoteID); err != nil {
				log.Printf("Failed to delete cancelled event %s: %v", *ev.RemoteID, err)
				continue
			}
			result.EventsDeleted++
			continue
		}

		localID, err := e.eventRepo.Upsert(ctx, ev)
		if err != nil {
			log.Printf("Failed to upsert event %s: %v", *ev.RemoteID, err)
			continue
		}
		if err := e.eventRepo.UpsertAttendees(ctx, localID, ev.Attendees); err != nil {
			log.Printf("Failed to upsert attendees for event %s: %v", *ev.RemoteID, err)
		}

		if live != nil {
			live[*ev.RemoteID] = true
		}
		result.EventsUpserted++
	}
}

func (e *Engine) storeSyncToken(ctx context.Context, calendarID, token string) error {
	var tok *string
	if token != "" {
		tok = &token
	}
	if err := e.calendarRepo.UpdateSyncToken(ctx, calendarID, tok); err != nil {
		return err
	}
	return nil
}
