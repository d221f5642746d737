// Package main is the entry point for the calendar mirror server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calmirror/backend/internal/api"
	"github.com/calmirror/backend/internal/config"
	"github.com/calmirror/backend/internal/connectivity"
	"github.com/calmirror/backend/internal/remote"
	"github.com/calmirror/backend/internal/storage"
	"github.com/calmirror/backend/internal/sync"
	"github.com/calmirror/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration file")
	dataDir := flag.String("data", "data", "Data directory for SQLite database")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %q: %v", *configPath, err)
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Listen); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting calendar mirror (version: %s)...", version)

	// Initialize database
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %q: %v", *dataDir, err)
	}
	dbPath := *dataDir + "/calmirror.db"
	db, err := storage.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()
	broadcaster := websocket.NewEventBroadcaster(hub)

	// Initialize repositories
	calendarRepo := storage.NewCalendarRepository(db)
	eventRepo := storage.NewEventRepository(db)
	queueRepo := storage.NewQueueRepository(db)

	// Initialize remote client
	ctx := context.Background()
	client, err := remote.NewGoogleClient(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenFile)
	if err != nil {
		log.Fatalf("Failed to create remote client: %v", err)
	}

	// Initialize connectivity monitor
	monitor := connectivity.NewMonitor(
		connectivity.HostProbe(cfg.Connectivity.ProbeHost, cfg.Connectivity.ProbePort),
		connectivity.Config{
			Debounce:        time.Duration(cfg.Connectivity.DebounceSeconds) * time.Second,
			OnlineInterval:  time.Duration(cfg.Connectivity.OnlineSeconds) * time.Second,
			OfflineInterval: time.Duration(cfg.Connectivity.OfflineSeconds) * time.Second,
		},
	)
	monitor.Start(ctx)
	defer monitor.Stop()

	// Relay connectivity transitions to observers
	go func() {
		for online := range monitor.Subscribe() {
			broadcaster.ConnectivityChanged(online)
		}
	}()

	// Initialize sync engine and user-facing event service
	engine := sync.NewEngine(
		calendarRepo,
		eventRepo,
		queueRepo,
		client,
		monitor,
		broadcaster,
		time.Duration(cfg.Sync.WindowBackDays)*24*time.Hour,
		time.Duration(cfg.Sync.WindowForwardDays)*24*time.Hour,
	)
	events := sync.NewEventService(eventRepo, queueRepo, client, monitor)

	// Start the sync scheduler
	scheduler := sync.NewScheduler(
		engine,
		monitor,
		time.Duration(cfg.Sync.IncrementalSeconds)*time.Second,
		time.Duration(cfg.Sync.FullHours)*time.Hour,
	)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start sync scheduler: %v", err)
	}

	// Initialize HTTP router
	router := api.NewRouter(api.Deps{
		DB:           db,
		CalendarRepo: calendarRepo,
		EventRepo:    eventRepo,
		QueueRepo:    queueRepo,
		Engine:       engine,
		Events:       events,
		Client:       client,
		Monitor:      monitor,
		Hub:          hub,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
