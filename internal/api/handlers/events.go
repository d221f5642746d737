package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/calmirror/backend/internal/api/middleware"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/storage/models"
	"github.com/calmirror/backend/internal/sync"
)

// Agenda returns the events overlapping a time range, drawn from visible
// calendars only. Range defaults to the coming week.
func Agenda(eventRepo *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		from := now.Truncate(24 * time.Hour)
		to := from.AddDate(0, 0, 7)

		var err error
		if v := r.URL.Query().Get("from"); v != "" {
			from, err = time.Parse(time.RFC3339, v)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid 'from' timestamp, expected RFC3339")
				return
			}
		}
		if v := r.URL.Query().Get("to"); v != "" {
			to, err = time.Parse(time.RFC3339, v)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid 'to' timestamp, expected RFC3339")
				return
			}
		}
		if !to.After(from) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "'to' must be after 'from'")
			return
		}

		events, err := eventRepo.Agenda(r.Context(), from, to)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query events")
			return
		}
		if events == nil {
			events = []models.Event{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	}
}

// GetEvent returns a single event with its attendees.
func GetEvent(eventRepo *storage.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		ev, err := eventRepo.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query event")
			return
		}
		if ev == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ev)
	}
}

func decodeEventInput(w http.ResponseWriter, r *http.Request) (models.EventInput, bool) {
	var input models.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return input, false
	}
	if input.CalendarID == "" {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "calendar_id is required")
		return input, false
	}
	if input.Title == "" {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "title is required")
		return input, false
	}
	if !input.End.After(input.Start) {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "end must be after start")
		return input, false
	}
	return input, true
}

// CreateEvent creates an event through the optimistic write path.
func CreateEvent(events *sync.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := decodeEventInput(w, r)
		if !ok {
			return
		}

		ev, err := events.CreateEvent(r.Context(), input)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create event")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(ev)
	}
}

// UpdateEvent edits an event through the optimistic write path.
func UpdateEvent(events *sync.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		input, ok := decodeEventInput(w, r)
		if !ok {
			return
		}

		ev, err := events.UpdateEvent(r.Context(), id, input)
		if err != nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ev)
	}
}

// DeleteEvent deletes an event, deferring the remote half when offline.
func DeleteEvent(events *sync.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if err := events.DeleteEvent(r.Context(), id); err != nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Event not found")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// RSVPRequest carries the user's attendance response.
type RSVPRequest struct {
	Response string `json:"response"`
}

// RSVP records the user's response to an invitation.
func RSVP(events *sync.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req RSVPRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if err := events.RSVP(r.Context(), id, req.Response); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
