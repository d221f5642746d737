// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/calmirror/backend/internal/api/handlers"
	"github.com/calmirror/backend/internal/api/middleware"
	"github.com/calmirror/backend/internal/connectivity"
	"github.com/calmirror/backend/internal/remote"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/sync"
	"github.com/calmirror/backend/internal/websocket"
)

// Deps collects everything the routes need.
type Deps struct {
	DB           *storage.DB
	CalendarRepo *storage.CalendarRepository
	EventRepo    *storage.EventRepository
	QueueRepo    *storage.QueueRepository
	Engine       *sync.Engine
	Events       *sync.EventService
	Client       remote.Client
	Monitor      *connectivity.Monitor
	Hub          *websocket.Hub
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(deps.DB, deps.Monitor)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(deps.Engine, deps.Monitor, deps.Hub.ClientCount)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(deps.Hub)).Methods("GET")

	// Calendar endpoints
	api.HandleFunc("/calendars", handlers.ListCalendars(deps.CalendarRepo)).Methods("GET")
	api.HandleFunc("/calendars/{id}", handlers.UpdateCalendar(deps.CalendarRepo)).Methods("PATCH")

	// Event endpoints
	api.HandleFunc("/events", handlers.Agenda(deps.EventRepo)).Methods("GET")
	api.HandleFunc("/events", handlers.CreateEvent(deps.Events)).Methods("POST")
	api.HandleFunc("/events/{id}", handlers.GetEvent(deps.EventRepo)).Methods("GET")
	api.HandleFunc("/events/{id}", handlers.UpdateEvent(deps.Events)).Methods("PUT")
	api.HandleFunc("/events/{id}", handlers.DeleteEvent(deps.Events)).Methods("DELETE")
	api.HandleFunc("/events/{id}/rsvp", handlers.RSVP(deps.Events)).Methods("POST")
	api.HandleFunc("/freebusy", handlers.FreeBusy(deps.Client, deps.CalendarRepo, deps.Monitor)).Methods("GET")

	// Sync endpoints
	api.HandleFunc("/sync", handlers.TriggerSync(deps.Engine)).Methods("POST")
	api.HandleFunc("/sync/queue", handlers.ListQueue(deps.QueueRepo)).Methods("GET")

	return r
}
