package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/haukened/roomtemp/internal/domain"
	"github.com/haukened/roomtemp/internal/grpcx"
	"github.com/haukened/roomtemp/internal/metrics"
)

// ConnectionInfo describes the channel that Connect placed in the slot.
type ConnectionInfo struct {
	Target   string `json:"target"`
	ProxyURL string `json:"proxy_url,omitempty"`
}

// Service wires the settings store and the connection slot together. Store
// and Conn are required; Clock, Metrics and Logger are optional.
type Service struct {
	Store   SettingsStore
	Conn    Connector
	Clock   Clock
	Metrics Metrics
	Logger  *slog.Logger
}

// GetSettings returns the stored settings, creating the default record on
// first use.
func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	st, err := s.Store.Get(ctx)
	if err != nil {
		s.inc(metrics.CounterSettingsFailures)
		s.log().Error("load settings", "err", err)
		return domain.Settings{}, err
	}
	s.inc(metrics.CounterSettingsReads)
	return st, nil
}

// SaveSettings replaces the stored settings. The access token is encrypted
// with a fresh nonce on every save.
func (s *Service) SaveSettings(ctx context.Context, st domain.Settings) error {
	if err := s.Store.Set(ctx, st); err != nil {
		s.inc(metrics.CounterSettingsFailures)
		s.log().Error("save settings", "err", err)
		return err
	}
	s.inc(metrics.CounterSettingsWrites)
	s.log().Info("settings saved", "url", st.URL, "use_proxies", st.UseProxies)
	return nil
}

// Connect loads the stored settings and replaces the active connection with
// a new one built from them. It fails with domain.ErrNotConfigured before any
// network I/O when the URL or access token is empty. A failed attempt leaves
// any existing connection in place.
func (s *Service) Connect(ctx context.Context) (ConnectionInfo, error) {
	st, err := s.GetSettings(ctx)
	if err != nil {
		return ConnectionInfo{}, err
	}
	if !st.Configured() {
		return ConnectionInfo{}, domain.ErrNotConfigured
	}
	start := time.Now()
	sess, err := s.Conn.Connect(ctx, st)
	s.observe(metrics.SummaryConnectMillis, start)
	if err != nil {
		s.inc(metrics.CounterConnectFailures)
		return ConnectionInfo{}, err
	}
	defer sess.Release()
	s.inc(metrics.CounterConnects)
	return ConnectionInfo{Target: sess.Target(), ProxyURL: sess.ProxyURL()}, nil
}

// FetchAmbientConditions requests samples between start and end over the
// active connection and returns the encoded response untouched. Timestamps
// are truncated to whole seconds. Zero samples requests the default count.
func (s *Service) FetchAmbientConditions(ctx context.Context, start, end time.Time, samples uint32) ([]byte, error) {
	sess, err := s.Conn.Current()
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	t0 := time.Now()
	resp, err := sess.GetAmbientConditions(ctx, start.Truncate(time.Second), end.Truncate(time.Second), samples)
	s.observe(metrics.SummaryRPCMillis, t0)
	s.inc(metrics.CounterRPCCalls)
	if err != nil {
		s.inc(metrics.CounterRPCFailures)
		s.log().Warn("get ambient conditions", "err", err)
		return nil, err
	}
	return resp, nil
}

// FetchRecent fetches the window of the given length ending now and decodes
// the response.
func (s *Service) FetchRecent(ctx context.Context, window time.Duration, samples uint32) ([]grpcx.AmbientSample, error) {
	end := s.now()
	raw, err := s.FetchAmbientConditions(ctx, end.Add(-window), end, samples)
	if err != nil {
		return nil, err
	}
	return grpcx.DecodeAmbientConditions(raw)
}

// Ping health-checks the active connection. It returns
// domain.ErrNotConnected when there is none. Monitors call it too.
func (s *Service) Ping(ctx context.Context) error {
	sess, err := s.Conn.Current()
	if err != nil {
		return err
	}
	defer sess.Release()
	return sess.Ping(ctx)
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default().With("domain", "app")
	}
	return s.Logger
}

func (s *Service) inc(name string) {
	if s.Metrics != nil {
		s.Metrics.Inc(name, 1)
	}
}

func (s *Service) observe(name string, start time.Time) {
	if s.Metrics != nil {
		s.Metrics.ObserveSince(name, start)
	}
}
