package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calmirror/backend/internal/api/middleware"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/storage/models"
)

// ListCalendars returns all mirrored calendars.
func ListCalendars(calendarRepo *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendars, err := calendarRepo.List(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query calendars")
			return
		}

		if calendars == nil {
			calendars = []models.Calendar{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(calendars)
	}
}

// UpdateCalendarRequest carries the user-mutable calendar fields.
type UpdateCalendarRequest struct {
	Visible *bool   `json:"visible,omitempty"`
	Color   *string `json:"color,omitempty"`
}

// UpdateCalendar toggles visibility or sets the color override.
func UpdateCalendar(calendarRepo *storage.CalendarRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req UpdateCalendarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		ctx := r.Context()

		if req.Visible != nil {
			if err := calendarRepo.SetVisible(ctx, id, *req.Visible); err != nil {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar not found")
				return
			}
		}
		if req.Color != nil {
			if err := calendarRepo.SetColorOverride(ctx, id, *req.Color); err != nil {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar not found")
				return
			}
		}

		cal, err := calendarRepo.GetByID(ctx, id)
		if err != nil || cal == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cal)
	}
}
