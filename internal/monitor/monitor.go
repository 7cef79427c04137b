// Package monitor periodically probes the active gRPC connection so a stale
// channel shows up in logs and metrics before the next user operation hits it.
// It never connects or reconnects on its own; an empty slot is simply idle.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haukened/roomtemp/internal/domain"
	"github.com/haukened/roomtemp/internal/metrics"
)

// Pinger probes the current connection. It returns domain.ErrNotConnected
// when there is nothing to probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Recorder receives probe counters and latencies.
type Recorder interface {
	Inc(name string, delta int64)
	ObserveSince(name string, start time.Time)
}

// Config holds tunables for the Monitor.
type Config struct {
	Interval time.Duration // time between probes
	Timeout  time.Duration // per-probe bound; zero leaves it to the pinger
	Logger   *slog.Logger
}

// State is the last observed health of the connection.
type State int

// Connection states as seen by the monitor.
const (
	StateIdle State = iota
	StateHealthy
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "idle"
	}
}

// Stats is a copy of the monitor's counters.
type Stats struct {
	Cycles         uint64
	Probes         uint64
	Failures       uint64
	LastDurationMS int64
	State          State
	LastErr        error
}

// Monitor runs the probe loop.
type Monitor struct {
	pinger  Pinger
	metrics Recorder
	cfg     Config
	log     *slog.Logger

	mu    sync.Mutex
	stats Stats

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Monitor. rec may be nil.
func New(p Pinger, rec Recorder, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		pinger:  p,
		metrics: rec,
		cfg:     cfg,
		log:     cfg.Logger.With("domain", "monitor"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the loop in a new goroutine.
func (m *Monitor) Start(ctx context.Context) {
	if m.ticker != nil {
		return
	}
	m.ticker = time.NewTicker(m.cfg.Interval)
	go m.loop(ctx)
}

// Stop signals the loop to exit and waits for it. Stop on a monitor that was
// never started returns immediately.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	if m.ticker == nil {
		return
	}
	<-m.doneCh
}

// Stats returns a copy of the current counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) loop(ctx context.Context) {
	defer func() {
		m.ticker.Stop()
		close(m.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stop", "reason", "context_cancel")
			return
		case <-m.stopCh:
			m.log.Info("monitor stop", "reason", "stop_signal")
			return
		case <-m.ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs one probe cycle and returns the resulting state.
func (m *Monitor) Probe(ctx context.Context) State {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := m.pinger.Ping(ctx)
	elapsed := time.Since(start)

	state := StateHealthy
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		state, err = StateIdle, nil
	case err != nil:
		state = StateUnhealthy
	}

	m.mu.Lock()
	prev := m.stats.State
	m.stats.Cycles++
	if state != StateIdle {
		m.stats.Probes++
		m.stats.LastDurationMS = elapsed.Milliseconds()
	}
	if state == StateUnhealthy {
		m.stats.Failures++
	}
	m.stats.State = state
	m.stats.LastErr = err
	m.mu.Unlock()

	if state != StateIdle {
		m.record(metrics.CounterProbes, start)
	}
	if state == StateUnhealthy {
		m.inc(metrics.CounterProbeFailures)
		if !errors.Is(err, context.Canceled) {
			m.log.Warn("probe failed", "err", err, "ms", elapsed.Milliseconds())
		}
	}
	if state != prev {
		m.log.Info("connection state", "from", prev.String(), "to", state.String())
	}
	return state
}

func (m *Monitor) record(counter string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.Inc(counter, 1)
	m.metrics.ObserveSince(metrics.SummaryProbeMillis, start)
}

func (m *Monitor) inc(counter string) {
	if m.metrics != nil {
		m.metrics.Inc(counter, 1)
	}
}
