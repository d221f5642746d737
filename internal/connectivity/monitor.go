// Package connectivity tracks whether the remote provider is reachable.
//
// The monitor layers two inputs: a reachability probe sampled on an adaptive
// timer, and explicit reports driven by the outcome of real remote calls. A
// candidate state change must hold for a quiet period before it is committed,
// so flapping links do not trigger spurious sync cycles. Commits emit
// discrete transition events, letting subscribers run one-shot recovery
// actions instead of re-triggering on every poll.
package connectivity

import (
	"context"
	"log"
	"net"
	"sync"
	"time"
)

// Probe reports whether the remote provider currently looks reachable.
// Implementations must respect the context deadline.
type Probe func(ctx context.Context) bool

// Config tunes the monitor. Zero values fall back to defaults.
type Config struct {
	// Debounce is the quiet period a candidate state must hold before
	// being committed.
	Debounce time.Duration
	// OnlineInterval is the probe cadence while online.
	OnlineInterval time.Duration
	// OfflineInterval is the probe cadence while offline; it is shorter so
	// recovery is detected quickly.
	OfflineInterval time.Duration
	// ProbeTimeout bounds a single probe call.
	ProbeTimeout time.Duration
}

func (c *Config) normalize() {
	if c.Debounce <= 0 {
		c.Debounce = 3 * time.Second
	}
	if c.OnlineInterval <= 0 {
		c.OnlineInterval = 30 * time.Second
	}
	if c.OfflineInterval <= 0 {
		c.OfflineInterval = 5 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
}

// Monitor maintains a debounced online/offline state.
type Monitor struct {
	probe Probe
	cfg   Config

	mu          sync.Mutex
	online      bool
	candidate   *bool
	commitTimer *time.Timer
	subs        []chan bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor. The initial state is online; the first
// failing probe or offline report starts the debounce countdown. A nil probe
// disables timer-driven sampling, leaving only explicit reports.
func NewMonitor(probe Probe, cfg Config) *Monitor {
	cfg.normalize()
	return &Monitor{
		probe:  probe,
		cfg:    cfg,
		online: true,
		stop:   make(chan struct{}),
	}
}

// HostProbe returns a Probe that checks TCP reachability of host:port.
func HostProbe(host, port string) Probe {
	return func(ctx context.Context) bool {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// Start begins timer-driven sampling. It returns immediately; sampling runs
// until Stop is called or the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if m.probe == nil {
		return
	}
	go m.run(ctx)
}

// Stop halts sampling and cancels any in-flight debounce countdown.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})

	m.mu.Lock()
	if m.commitTimer != nil {
		m.commitTimer.Stop()
		m.commitTimer = nil
	}
	m.candidate = nil
	m.mu.Unlock()
}

func (m *Monitor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-time.After(m.pollInterval()):
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		reachable := m.probe(probeCtx)
		cancel()

		m.observe(reachable)
	}
}

func (m *Monitor) pollInterval() time.Duration {
	if m.IsOnline() {
		return m.cfg.OnlineInterval
	}
	return m.cfg.OfflineInterval
}

// IsOnline returns the committed state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// ReportOnline feeds a successful remote call into the monitor. Successful
// remote I/O is a stronger signal than the reachability probe, but it goes
// through the same debounce so a single lucky call cannot flap the state.
func (m *Monitor) ReportOnline() {
	m.observe(true)
}

// ReportOffline feeds a network-class remote failure into the monitor.
func (m *Monitor) ReportOffline() {
	m.observe(false)
}

// Subscribe returns a channel receiving the new state on each committed
// transition. Slow subscribers miss transitions rather than blocking the
// monitor.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 8)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// observe registers a raw sample. A sample matching the committed state
// cancels any countdown; a sample contradicting it starts (or continues) the
// debounce countdown toward a commit.
func (m *Monitor) observe(raw bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if raw == m.online {
		m.candidate = nil
		if m.commitTimer != nil {
			m.commitTimer.Stop()
			m.commitTimer = nil
		}
		return
	}

	if m.candidate != nil && *m.candidate == raw {
		// Countdown already running for this state.
		return
	}

	v := raw
	m.candidate = &v
	if m.commitTimer != nil {
		m.commitTimer.Stop()
	}
	m.commitTimer = time.AfterFunc(m.cfg.Debounce, m.commit)
}

func (m *Monitor) commit() {
	m.mu.Lock()
	if m.candidate == nil || *m.candidate == m.online {
		m.candidate = nil
		m.commitTimer = nil
		m.mu.Unlock()
		return
	}

	m.online = *m.candidate
	m.candidate = nil
	m.commitTimer = nil
	online := m.online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if online {
		log.Println("Connectivity: online")
	} else {
		log.Println("Connectivity: offline")
	}

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
		}
	}
}
