package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/calmirror/backend/internal/remote"
	"github.com/calmirror/backend/internal/storage/models"
)

// DrainResult reports how a drain pass went, for observability.
type DrainResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// DrainQueue applies deferred mutations against the remote provider: first
// the mutation queue in strict enqueue order, then a sweep of events whose
// pending action was recorded directly on the row (creations and deletions).
// Items are independent: one failure never blocks later items, it only
// increments that item's attempt count and records the error.
func (e *Engine) DrainQueue(ctx context.Context) (DrainResult, error) {
	var result DrainResult

	if !e.inFlight.TryLock() {
		log.Println("Skipping queue drain: another sync operation is in flight")
		return result, nil
	}
	defer e.inFlight.Unlock()

	if !e.monitor.IsOnline() {
		return result, nil
	}

	items, err := e.queueRepo.List(ctx)
	if err != nil {
		return result, fmt.Errorf("listing queue: %w", err)
	}

	for _, item := range items {
		if err := e.applyQueueItem(ctx, item); err != nil {
			log.Printf("Queue item %s (%s) failed: %v", item.ID, item.Action, err)
			if markErr := e.queueRepo.MarkFailed(ctx, item.ID, err); markErr != nil {
				log.Printf("Failed to record queue item failure: %v", markErr)
			}
			if remote.IsTransport(err) {
				e.monitor.ReportOffline()
			}
			result.Failed++
			continue
		}

		if err := e.queueRepo.MarkDone(ctx, item.ID); err != nil {
			log.Printf("Failed to remove drained queue item %s: %v", item.ID, err)
		}
		e.monitor.ReportOnline()
		result.Succeeded++
	}

	// The queue drain above may have cleared pending state via MarkSynced,
	// so list pending rows only now.
	pending, err := e.eventRepo.ListPending(ctx)
	if err != nil {
		return result, fmt.Errorf("listing pending events: %w", err)
	}

	for i := range pending {
		if err := e.applyPendingEvent(ctx, &pending[i]); err != nil {
			log.Printf("Pending %s on event %s failed: %v", *pending[i].PendingAction, pending[i].ID, err)
			if remote.IsTransport(err) {
				e.monitor.ReportOffline()
			}
			result.Failed++
			continue
		}
		e.monitor.ReportOnline()
		result.Succeeded++
	}

	if e.notifier != nil && (result.Succeeded > 0 || result.Failed > 0) {
		e.notifier.SyncStatusChanged(e.Status(ctx))
	}

	return result, nil
}

// applyQueueItem dispatches one queued mutation to the remote client.
func (e *Engine) applyQueueItem(ctx context.Context, item models.QueueItem) error {
	switch item.Action {
	case models.ActionCreate:
		var input models.EventInput
		if err := json.Unmarshal([]byte(item.Payload), &input); err != nil {
			return fmt.Errorf("decoding create payload: %w", err)
		}
		remoteID, etag, err := e.client.CreateEvent(ctx, item.CalendarID, input)
		if err != nil {
			return err
		}
		if item.EventID != nil {
			return e.confirmDrained(ctx, *item.EventID, remoteID, etag, models.PendingCreate, item.Payload)
		}
		return nil

	case models.ActionUpdate:
		if item.RemoteEventID == nil {
			return fmt.Errorf("update item %s has no remote event id", item.ID)
		}
		var input models.EventInput
		if err := json.Unmarshal([]byte(item.Payload), &input); err != nil {
			return fmt.Errorf("decoding update payload: %w", err)
		}
		etag, err := e.client.UpdateEvent(ctx, item.CalendarID, *item.RemoteEventID, input)
		if err != nil {
			return err
		}
		if item.EventID != nil {
			return e.confirmDrained(ctx, *item.EventID, *item.RemoteEventID, etag, models.PendingUpdate, item.Payload)
		}
		return nil

	case models.ActionDelete:
		if item.RemoteEventID == nil {
			return fmt.Errorf("delete item %s has no remote event id", item.ID)
		}
		err := e.client.DeleteEvent(ctx, item.CalendarID, *item.RemoteEventID)
		// Already gone remotely counts as done.
		if err != nil && !remote.IsNotFound(err) {
			return err
		}
		return e.eventRepo.DeleteCancelled(ctx, *item.RemoteEventID)

	case models.ActionRSVP:
		if item.RemoteEventID == nil {
			return fmt.Errorf("rsvp item %s has no remote event id", item.ID)
		}
		// RSVP payloads are the bare response string.
		return e.client.RSVP(ctx, item.CalendarID, *item.RemoteEventID, item.Payload)

	default:
		return fmt.Errorf("unknown queue action %q", item.Action)
	}
}

// confirmDrained records the remote identity of an event after its queue
// item applied. Pending state is cleared only when the row still records the
// drained mutation; an action recorded after the item was enqueued (an
// offline edit followed by an offline delete, say) must survive for the
// pending sweep.
func (e *Engine) confirmDrained(ctx context.Context, eventID, remoteID, etag, action, payload string) error {
	ev, err := e.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}

	current := ""
	if ev.PendingAction != nil {
		current = *ev.PendingAction
	}
	currentPayload := ""
	if ev.PendingPayload != nil {
		currentPayload = *ev.PendingPayload
	}
	if current == action && currentPayload == payload {
		return e.eventRepo.MarkSynced(ctx, eventID, remoteID, etag)
	}

	return e.eventRepo.SetRemoteIdentity(ctx, eventID, remoteID, etag)
}

// applyPendingEvent replays a mutation recorded directly on the event row.
func (e *Engine) applyPendingEvent(ctx context.Context, ev *models.Event) error {
	var input models.EventInput
	if ev.PendingPayload != nil && *ev.PendingPayload != "" {
		if err := json.Unmarshal([]byte(*ev.PendingPayload), &input); err != nil {
			return fmt.Errorf("decoding pending payload: %w", err)
		}
	}

	switch *ev.PendingAction {
	case models.PendingCreate:
		remoteID, etag, err := e.client.CreateEvent(ctx, ev.CalendarID, input)
		if err != nil {
			return err
		}
		return e.eventRepo.MarkSynced(ctx, ev.ID, remoteID, etag)

	case models.PendingUpdate:
		if ev.RemoteID == nil {
			// Never confirmed remotely; the update collapses into a create.
			remoteID, etag, err := e.client.CreateEvent(ctx, ev.CalendarID, input)
			if err != nil {
				return err
			}
			return e.eventRepo.MarkSynced(ctx, ev.ID, remoteID, etag)
		}
		etag, err := e.client.UpdateEvent(ctx, ev.CalendarID, *ev.RemoteID, input)
		if err != nil {
			return err
		}
		return e.eventRepo.MarkSynced(ctx, ev.ID, *ev.RemoteID, etag)

	case models.PendingDelete:
		if ev.RemoteID != nil {
			err := e.client.DeleteEvent(ctx, ev.CalendarID, *ev.RemoteID)
			if err != nil && !remote.IsNotFound(err) {
				return err
			}
		}
		return e.eventRepo.Delete(ctx, ev.ID)

	default:
		return fmt.Errorf("unknown pending action %q", *ev.PendingAction)
	}
}
