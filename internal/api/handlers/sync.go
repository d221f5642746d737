package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/calmirror/backend/internal/api/middleware"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/storage/models"
	"github.com/calmirror/backend/internal/sync"
)

// TriggerSync kicks off a sync pass in the background. Passing full=true
// requests a full pass instead of an incremental one.
func TriggerSync(engine *sync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		full := r.URL.Query().Get("full") == "true"

		// Detach from the request context; the pass outlives the response.
		go func() {
			if full {
				engine.FullSync(context.Background())
			} else {
				engine.IncrementalSync(context.Background())
			}
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "started"})
	}
}

// ListQueue exposes the pending mutation queue for inspection.
func ListQueue(queueRepo *storage.QueueRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := queueRepo.List(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query mutation queue")
			return
		}
		if items == nil {
			items = []models.QueueItem{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}
