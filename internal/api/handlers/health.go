// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/calmirror/backend/internal/connectivity"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/sync"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
	Online      bool   `json:"online"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB, monitor *connectivity.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
			Online:      monitor.IsOnline(),
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// StatusResponse is the pollable engine status snapshot.
type StatusResponse struct {
	sync.Snapshot
	Online    bool `json:"online"`
	Observers int  `json:"observers"`
}

// Status returns a handler exposing the sync engine's status snapshot.
func Status(engine *sync.Engine, monitor *connectivity.Monitor, observers func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			Snapshot: engine.Status(r.Context()),
			Online:   monitor.IsOnline(),
		}
		if observers != nil {
			response.Observers = observers()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
