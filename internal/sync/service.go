package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/calmirror/backend/internal/connectivity"
	"github.com/calmirror/backend/internal/remote"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/storage/models"
)

// EventService handles user-facing event mutations: write to the local store
// immediately (optimistic), then attempt the remote call if online, and fall
// back to pending-action tracking and the mutation queue when offline or on
// failure. Local edits are therefore never lost to an outage.
type EventService struct {
	eventRepo *storage.EventRepository
	queueRepo *storage.QueueRepository
	client    remote.Client
	monitor   *connectivity.Monitor
}

// NewEventService creates a new event service.
func NewEventService(
	eventRepo *storage.EventRepository,
	queueRepo *storage.QueueRepository,
	client remote.Client,
	monitor *connectivity.Monitor,
) *EventService {
	return &EventService{
		eventRepo: eventRepo,
		queueRepo: queueRepo,
		client:    client,
		monitor:   monitor,
	}
}

// CreateEvent persists the event locally with a pending create, then tries
// to confirm it remotely right away when online.
func (s *EventService) CreateEvent(ctx context.Context, input models.EventInput) (*models.Event, error) {
	ev, err := s.eventRepo.CreateLocal(ctx, input)
	if err != nil {
		return nil, err
	}

	if !s.monitor.IsOnline() {
		return ev, nil
	}

	remoteID, etag, err := s.client.CreateEvent(ctx, input.CalendarID, input)
	if err != nil {
		s.reportOutcome(err)
		log.Printf("Remote create for event %s deferred: %v", ev.ID, err)
		return ev, nil
	}

	s.monitor.ReportOnline()
	if err := s.eventRepo.MarkSynced(ctx, ev.ID, remoteID, etag); err != nil {
		return nil, err
	}

	return s.eventRepo.GetByID(ctx, ev.ID)
}

// UpdateEvent applies the edit locally, then updates the remote copy or
// defers the mutation.
func (s *EventService) UpdateEvent(ctx context.Context, id string, input models.EventInput) (*models.Event, error) {
	ev, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("event not found: %s", id)
	}

	if err := s.eventRepo.UpdateLocal(ctx, id, input); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("serializing event input: %w", err)
	}
	payloadStr := string(payload)

	// An event that never reached the remote keeps (or regains) a pending
	// create carrying the latest field values.
	if ev.RemoteID == nil {
		if err := s.eventRepo.MarkPending(ctx, id, models.PendingCreate, &payloadStr); err != nil {
			return nil, err
		}
		return s.eventRepo.GetByID(ctx, id)
	}

	if s.monitor.IsOnline() {
		etag, err := s.client.UpdateEvent(ctx, ev.CalendarID, *ev.RemoteID, input)
		if err == nil {
			s.monitor.ReportOnline()
			if err := s.eventRepo.MarkSynced(ctx, id, *ev.RemoteID, etag); err != nil {
				return nil, err
			}
			return s.eventRepo.GetByID(ctx, id)
		}
		s.reportOutcome(err)
		log.Printf("Remote update for event %s deferred: %v", id, err)
	}

	if err := s.eventRepo.MarkPending(ctx, id, models.PendingUpdate, &payloadStr); err != nil {
		return nil, err
	}
	if err := s.queueRepo.Enqueue(ctx, &models.QueueItem{
		EventID:       &id,
		RemoteEventID: ev.RemoteID,
		CalendarID:    ev.CalendarID,
		Action:        models.ActionUpdate,
		Payload:       payloadStr,
	}); err != nil {
		return nil, err
	}

	return s.eventRepo.GetByID(ctx, id)
}

// DeleteEvent removes the event. A never-confirmed local event is deleted
// outright; a confirmed one is deleted remotely or marked pending delete.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	ev, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return fmt.Errorf("event not found: %s", id)
	}

	if ev.RemoteID == nil {
		return s.eventRepo.Delete(ctx, id)
	}

	if s.monitor.IsOnline() {
		err := s.client.DeleteEvent(ctx, ev.CalendarID, *ev.RemoteID)
		if err == nil || remote.IsNotFound(err) {
			s.monitor.ReportOnline()
			return s.eventRepo.Delete(ctx, id)
		}
		s.reportOutcome(err)
		log.Printf("Remote delete for event %s deferred: %v", id, err)
	}

	// Keep the row so the deletion survives a restart; the drain sweep
	// finishes the job.
	return s.eventRepo.MarkPending(ctx, id, models.PendingDelete, nil)
}

// RSVP records the user's response locally and remotely, queueing the remote
// half when it cannot be applied now.
func (s *EventService) RSVP(ctx context.Context, id, response string) error {
	switch response {
	case models.ResponseAccepted, models.ResponseDeclined, models.ResponseTentative, models.ResponseNeedsAction:
	default:
		return fmt.Errorf("invalid rsvp response %q", response)
	}

	ev, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return fmt.Errorf("event not found: %s", id)
	}
	if ev.RemoteID == nil {
		return fmt.Errorf("event %s has no remote copy to respond to", id)
	}

	if err := s.eventRepo.SetSelfResponse(ctx, id, response); err != nil {
		return err
	}

	if s.monitor.IsOnline() {
		err := s.client.RSVP(ctx, ev.CalendarID, *ev.RemoteID, response)
		if err == nil {
			s.monitor.ReportOnline()
			return nil
		}
		s.reportOutcome(err)
		log.Printf("Remote rsvp for event %s deferred: %v", id, err)
	}

	return s.queueRepo.Enqueue(ctx, &models.QueueItem{
		EventID:       &id,
		RemoteEventID: ev.RemoteID,
		CalendarID:    ev.CalendarID,
		Action:        models.ActionRSVP,
		Payload:       response,
	})
}

// reportOutcome feeds a remote failure into the connectivity monitor when it
// is network-class.
func (s *EventService) reportOutcome(err error) {
	if remote.IsTransport(err) {
		s.monitor.ReportOffline()
	}
}
