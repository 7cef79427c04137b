// Package metrics keeps operational counters for the backend. Observations are
// batched in memory and flushed periodically to the same SQLite database that
// holds the settings record, so totals survive across CLI invocations. Only
// monotonic counters and (count,sum,min,max) summaries are supported.
package metrics

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Counter names.
const (
	CounterSettingsReads    = "settings_reads_total"
	CounterSettingsWrites   = "settings_writes_total"
	CounterSettingsFailures = "settings_failures_total"
	CounterConnects         = "grpc_connects_total"
	CounterConnectFailures  = "grpc_connect_failures_total"
	CounterRPCCalls         = "grpc_calls_total"
	CounterRPCFailures      = "grpc_call_failures_total"
	CounterProbes           = "monitor_probes_total"
	CounterProbeFailures    = "monitor_probe_failures_total"
	CounterEventsDropped    = "metrics_events_dropped_total"
)

// Summary names. Values are milliseconds.
const (
	SummaryConnectMillis = "grpc_connect_ms"
	SummaryRPCMillis     = "grpc_call_ms"
	SummaryProbeMillis   = "monitor_probe_ms"
)

// Config controls flush cadence and logging.
type Config struct {
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// Summary is an aggregate of observations.
type Summary struct {
	Count int64 `json:"count"`
	Sum   int64 `json:"sum"`
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
}

func (s *Summary) merge(o Summary) {
	if s.Count == 0 {
		*s = o
		return
	}
	s.Count += o.Count
	s.Sum += o.Sum
	s.Min = min(s.Min, o.Min)
	s.Max = max(s.Max, o.Max)
}

// Snapshot is the persisted state with unflushed deltas layered on top.
type Snapshot struct {
	Counters  map[string]int64   `json:"counters"`
	Summaries map[string]Summary `json:"summaries"`
}

// Manager aggregates metric events and flushes them.
type Manager struct {
	cfg     Config
	log     *slog.Logger
	db      *sql.DB
	events  chan event
	stop    chan struct{}
	done    chan struct{}
	started bool
	dropped atomic.Int64

	mu        sync.Mutex
	counters  map[string]int64
	summaries map[string]*Summary
}

type eventKind int

const (
	eventInc eventKind = iota + 1
	eventObserve
)

type event struct {
	kind eventKind
	name string
	v    int64
}

// New creates a Manager. Call Start to begin background flushing.
func New(db *sql.DB, cfg Config) *Manager {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		log:       cfg.Logger.With("domain", "metrics"),
		db:        db,
		events:    make(chan event, 1024),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		counters:  make(map[string]int64),
		summaries: make(map[string]*Summary),
	}
}

// InitSchema ensures metrics tables exist.
func (m *Manager) InitSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS metrics_counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS metrics_summaries (
		name TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		sum INTEGER NOT NULL,
		min INTEGER NOT NULL,
		max INTEGER NOT NULL
	);`
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

// Start launches the background loop.
func (m *Manager) Start(ctx context.Context) {
	if m.started {
		return
	}
	m.started = true
	go m.loop(ctx)
}

// Stop ends the loop, applies anything still queued and flushes.
func (m *Manager) Stop(ctx context.Context) error {
	if m.started {
		close(m.stop)
		<-m.done
		m.started = false
	}
	m.drain()
	return m.flush(ctx)
}

// Inc increments a counter by delta. Non-positive deltas are ignored.
func (m *Manager) Inc(name string, delta int64) {
	if delta <= 0 {
		return
	}
	m.send(event{kind: eventInc, name: name, v: delta})
}

// Observe records a summary observation.
func (m *Manager) Observe(name string, value int64) {
	m.send(event{kind: eventObserve, name: name, v: value})
}

// ObserveSince records the milliseconds elapsed since start.
func (m *Manager) ObserveSince(name string, start time.Time) {
	m.Observe(name, time.Since(start).Milliseconds())
}

// send never blocks; a full queue drops the event and counts the drop.
func (m *Manager) send(ev event) {
	select {
	case m.events <- ev:
	default:
		m.dropped.Add(1)
	}
}

func (m *Manager) loop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer func() {
		ticker.Stop()
		close(m.done)
	}()
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("metrics stop", "reason", "context_cancel")
			return
		case <-m.stop:
			m.log.Debug("metrics stop", "reason", "stop_signal")
			return
		case ev := <-m.events:
			m.apply(ev)
		case <-ticker.C:
			if err := m.flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("flush", "err", err)
			}
		}
	}
}

// drain applies queued events without blocking.
func (m *Manager) drain() {
	for {
		select {
		case ev := <-m.events:
			m.apply(ev)
		default:
			return
		}
	}
}

func (m *Manager) apply(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.kind {
	case eventInc:
		m.counters[ev.name] += ev.v
	case eventObserve:
		agg := m.summaries[ev.name]
		if agg == nil {
			agg = &Summary{}
			m.summaries[ev.name] = agg
		}
		agg.merge(Summary{Count: 1, Sum: ev.v, Min: ev.v, Max: ev.v})
	}
}

// Snapshot reads persisted totals and layers unflushed deltas on top.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Counters: make(map[string]int64), Summaries: make(map[string]Summary)}
	rows, err := m.db.QueryContext(ctx, `SELECT name, value FROM metrics_counters`)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		var v int64
		if err := rows.Scan(&n, &v); err != nil {
			return Snapshot{}, err
		}
		snap.Counters[n] = v
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	srows, err := m.db.QueryContext(ctx, `SELECT name, count, sum, min, max FROM metrics_summaries`)
	if err != nil {
		return Snapshot{}, err
	}
	defer srows.Close()
	for srows.Next() {
		var n string
		var s Summary
		if err := srows.Scan(&n, &s.Count, &s.Sum, &s.Min, &s.Max); err != nil {
			return Snapshot{}, err
		}
		snap.Summaries[n] = s
	}
	if err := srows.Err(); err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	for n, v := range m.counters {
		snap.Counters[n] += v
	}
	for n, agg := range m.summaries {
		cur := snap.Summaries[n]
		cur.merge(*agg)
		snap.Summaries[n] = cur
	}
	m.mu.Unlock()
	if d := m.dropped.Load(); d > 0 {
		snap.Counters[CounterEventsDropped] += d
	}
	return snap, nil
}

// flush writes in-memory deltas to SQLite in one transaction and resets them.
// On failure the deltas are put back so the next flush retries them.
func (m *Manager) flush(ctx context.Context) error {
	m.mu.Lock()
	counters, summaries := m.counters, m.summaries
	if d := m.dropped.Swap(0); d > 0 {
		counters[CounterEventsDropped] += d
	}
	if len(counters) == 0 && len(summaries) == 0 {
		m.mu.Unlock()
		return nil
	}
	m.counters = make(map[string]int64)
	m.summaries = make(map[string]*Summary)
	m.mu.Unlock()

	if err := m.write(ctx, counters, summaries); err != nil {
		m.mu.Lock()
		for n, v := range counters {
			m.counters[n] += v
		}
		for n, agg := range summaries {
			cur := m.summaries[n]
			if cur == nil {
				m.summaries[n] = agg
				continue
			}
			cur.merge(*agg)
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) write(ctx context.Context, counters map[string]int64, summaries map[string]*Summary) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for name, delta := range counters {
		if _, err := tx.ExecContext(ctx, `INSERT INTO metrics_counters(name,value) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`, name, delta); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	for name, agg := range summaries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO metrics_summaries(name,count,sum,min,max) VALUES(?,?,?,?,?) ON CONFLICT(name) DO UPDATE SET count = metrics_summaries.count + excluded.count, sum = metrics_summaries.sum + excluded.sum, min = MIN(metrics_summaries.min, excluded.min), max = MAX(metrics_summaries.max, excluded.max)`, name, agg.Count, agg.Sum, agg.Min, agg.Max); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
