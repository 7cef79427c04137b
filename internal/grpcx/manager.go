// Package grpcx manages the single authenticated gRPC channel to the remote
// telemetry service. Manager dials TLS channels (optionally through an HTTP
// CONNECT proxy) from the settings record and keeps the active one in a
// mutex-guarded slot; callers lease the current handle instead of dialing.
package grpcx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"

	"github.com/haukened/roomtemp/internal/domain"
)

const userAgent = "roomtemp"

// Options tune how channels are built.
type Options struct {
	// RootCAs overrides the platform trust store. Nil uses system roots.
	RootCAs *x509.CertPool
	// ConnectTimeout bounds Connect when positive.
	ConnectTimeout time.Duration
	// CallTimeout bounds RPCs issued through Handle helpers when the caller's
	// context has no deadline.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Manager owns the connection slot. States are disconnected (empty slot) and
// connected; a successful Connect fills or replaces the slot, a failed one
// leaves it untouched. There is no disconnect; Close is for shutdown.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	current *Handle // the slot's own lease
}

// NewManager returns a Manager with an empty slot.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{opts: opts, logger: opts.Logger.With("domain", "grpc")}
}

// Connect dials a channel from s and, once it is ready, swaps it into the
// slot. The returned lease must be released by the caller. The slot lock is
// never held across network I/O.
func (m *Manager) Connect(ctx context.Context, s domain.Settings) (*Handle, error) {
	ch, err := m.dial(ctx, s)
	if err != nil {
		m.logger.Warn("connect failed", "err", err)
		return nil, err
	}
	h := ch.lease()
	slot := ch.lease()

	m.mu.Lock()
	prev := m.current
	m.current = slot
	m.mu.Unlock()

	if prev != nil {
		prev.Release()
	}
	m.logger.Info("connected", "target", ch.target, "via_proxy", ch.proxy != "")
	return h, nil
}

// Current leases the active handle, or returns domain.ErrNotConnected.
func (m *Manager) Current() (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, domain.ErrNotConnected
	}
	return m.current.ch.lease(), nil
}

// Connected reports whether the slot holds a handle.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Close empties the slot at shutdown. Outstanding leases stay usable until
// released.
func (m *Manager) Close() {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()
	if prev != nil {
		prev.Release()
	}
}

func (m *Manager) dial(ctx context.Context, s domain.Settings) (*channel, error) {
	auth, err := newBearerAuth(s.AccessToken)
	if err != nil {
		return nil, err
	}
	ep, err := parseEndpoint(s.URL)
	if err != nil {
		return nil, err
	}

	base := &net.Dialer{}
	rec := &dialRecorder{}
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		return rec.record(base.DialContext(ctx, "tcp", addr))
	}
	proxy := ""
	if s.UseProxies {
		pu, err := parseProxy(s.ProxyURL)
		if err != nil {
			return nil, err
		}
		viaProxy := connectDialer(base, pu)
		dialer = func(ctx context.Context, addr string) (net.Conn, error) {
			return rec.record(viaProxy(ctx, addr))
		}
		proxy = pu.Redacted()
	}

	tlsCfg := &tls.Config{
		ServerName: ep.serverName,
		RootCAs:    m.opts.RootCAs,
		MinVersion: tls.VersionTLS12,
	}
	conn, err := grpc.NewClient("passthrough:///"+ep.addr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)),
		grpc.WithContextDialer(dialer),
		grpc.WithNoProxy(),
		grpc.WithUserAgent(userAgent),
		grpc.WithChainUnaryInterceptor(auth.unary),
		grpc.WithChainStreamInterceptor(auth.stream),
	)
	if err != nil {
		return nil, fail(KindTransport, err)
	}

	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}
	if err := waitReady(ctx, conn); err != nil {
		_ = conn.Close()
		if last := rec.last(); last != nil {
			err = fmt.Errorf("%w: %w", err, last)
		}
		if proxy != "" {
			err = fmt.Errorf("via proxy %s: %w", proxy, err)
		}
		return nil, fail(KindTransport, err)
	}
	return &channel{conn: conn, target: ep.addr, proxy: proxy, callTimeout: m.opts.CallTimeout}, nil
}

// waitReady drives conn out of idle and blocks until it is ready, fails, or
// ctx ends.
func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		st := conn.GetState()
		switch st {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("channel %s", st)
		}
		if !conn.WaitForStateChange(ctx, st) {
			return ctx.Err()
		}
	}
}

// dialRecorder remembers the most recent dial error so a failed Connect can
// say why, not just that the channel went into TRANSIENT_FAILURE.
type dialRecorder struct {
	err atomic.Pointer[error]
}

func (r *dialRecorder) record(c net.Conn, err error) (net.Conn, error) {
	if err != nil {
		r.err.Store(&err)
	}
	return c, err
}

func (r *dialRecorder) last() error {
	if p := r.err.Load(); p != nil {
		return *p
	}
	return nil
}
