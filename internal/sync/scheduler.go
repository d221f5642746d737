package sync

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calmirror/backend/internal/connectivity"
)

// Scheduler drives the engine's periodic work: a drain and full sync on
// start, a drain and incremental sync on a short interval, full syncs on a
// long one to catch drift the tokens might miss, and an out-of-band drain
// plus incremental sync whenever connectivity comes back. Draining on the
// cadence too means failed items retry without waiting for a connectivity
// transition.
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	monitor *connectivity.Monitor

	incrementalEvery time.Duration
	fullEvery        time.Duration

	stop chan struct{}
}

// NewScheduler creates a scheduler. Non-positive intervals fall back to the
// defaults of 60 seconds (incremental) and 8 hours (full).
func NewScheduler(engine *Engine, monitor *connectivity.Monitor, incrementalEvery, fullEvery time.Duration) *Scheduler {
	if incrementalEvery <= 0 {
		incrementalEvery = 60 * time.Second
	}
	if fullEvery <= 0 {
		fullEvery = 8 * time.Hour
	}

	return &Scheduler{
		cron:             cron.New(),
		engine:           engine,
		monitor:          monitor,
		incrementalEvery: incrementalEvery,
		fullEvery:        fullEvery,
		stop:             make(chan struct{}),
	}
}

// Start begins scheduling. The initial full sync runs immediately in the
// background.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Println("Starting sync scheduler...")

	go func() {
		// Mutations left over from a previous run go out before the pull.
		if _, err := s.engine.DrainQueue(ctx); err != nil {
			log.Printf("Startup queue drain failed: %v", err)
		}
		if err := s.engine.FullSync(ctx); err != nil {
			log.Printf("Initial full sync failed: %v", err)
		}
	}()

	if _, err := s.cron.AddFunc("@every "+s.incrementalEvery.String(), func() {
		if _, err := s.engine.DrainQueue(context.Background()); err != nil {
			log.Printf("Scheduled queue drain failed: %v", err)
		}
		if err := s.engine.IncrementalSync(context.Background()); err != nil {
			log.Printf("Scheduled incremental sync failed: %v", err)
		}
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc("@every "+s.fullEvery.String(), func() {
		if err := s.engine.FullSync(context.Background()); err != nil {
			log.Printf("Scheduled full sync failed: %v", err)
		}
	}); err != nil {
		return err
	}

	go s.watchConnectivity()

	s.cron.Start()
	log.Printf("Sync scheduler started (incremental every %s, full every %s)", s.incrementalEvery, s.fullEvery)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	log.Println("Stopping sync scheduler...")
	close(s.stop)
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Sync scheduler stopped")
}

// watchConnectivity consumes the monitor's transition events. The online
// transition is the one-shot recovery hook: drain the queue, then run one
// incremental sync.
func (s *Scheduler) watchConnectivity() {
	transitions := s.monitor.Subscribe()

	for {
		select {
		case <-s.stop:
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if !online {
				continue
			}

			log.Println("Connectivity restored, draining queue")
			ctx := context.Background()

			result, err := s.engine.DrainQueue(ctx)
			if err != nil {
				log.Printf("Queue drain after reconnect failed: %v", err)
			} else if result.Succeeded > 0 || result.Failed > 0 {
				log.Printf("Queue drain after reconnect: %d succeeded, %d failed", result.Succeeded, result.Failed)
			}

			if err := s.engine.IncrementalSync(ctx); err != nil {
				log.Printf("Incremental sync after reconnect failed: %v", err)
			}
		}
	}
}
