package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/calmirror/backend/internal/api/middleware"
	"github.com/calmirror/backend/internal/connectivity"
	"github.com/calmirror/backend/internal/remote"
	"github.com/calmirror/backend/internal/storage"
)

// FreeBusy queries the provider for busy intervals across the visible
// calendars. This is a live remote query, so it requires connectivity.
func FreeBusy(client remote.Client, calendarRepo *storage.CalendarRepository, monitor *connectivity.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !monitor.IsOnline() {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrOffline, "Free/busy requires connectivity")
			return
		}

		from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid 'from' timestamp, expected RFC3339")
			return
		}
		to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid 'to' timestamp, expected RFC3339")
			return
		}
		if !to.After(from) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "'to' must be after 'from'")
			return
		}

		calendars, err := calendarRepo.ListVisible(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query calendars")
			return
		}
		ids := make([]string, 0, len(calendars))
		for _, cal := range calendars {
			ids = append(ids, cal.ID)
		}

		busy, err := client.FreeBusy(r.Context(), ids, from, to)
		if err != nil {
			if remote.IsTransport(err) {
				monitor.ReportOffline()
				middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrOffline, "Provider unreachable")
				return
			}
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrInternalError, "Free/busy query failed")
			return
		}
		monitor.ReportOnline()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(busy)
	}
}
