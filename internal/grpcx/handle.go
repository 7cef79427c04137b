package grpcx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// channel is one dialed connection shared by every lease on it. It closes
// when the last lease is released.
type channel struct {
	conn        *grpc.ClientConn
	target      string
	proxy       string
	callTimeout time.Duration

	mu   sync.Mutex
	refs int
}

func (c *channel) lease() *Handle {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
	return &Handle{ch: c}
}

func (c *channel) release() {
	c.mu.Lock()
	c.refs--
	last := c.refs == 0
	c.mu.Unlock()
	if last {
		_ = c.conn.Close()
	}
}

// Handle is a lease on the active connection. Leases are cheap; any number
// may issue RPCs concurrently over the same channel. Release must be called
// once the caller is done with it.
type Handle struct {
	ch   *channel
	once sync.Once
}

// Release returns the lease. Calling it more than once is harmless.
func (h *Handle) Release() {
	h.once.Do(h.ch.release)
}

// Conn exposes the underlying client connection for generated stubs.
func (h *Handle) Conn() *grpc.ClientConn { return h.ch.conn }

// Target returns the host:port the channel is connected to.
func (h *Handle) Target() string { return h.ch.target }

// ProxyURL returns the proxy the channel tunnels through, or "".
func (h *Handle) ProxyURL() string { return h.ch.proxy }

// callContext applies the default per-call timeout when ctx has no deadline.
func (h *Handle) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || h.ch.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.ch.callTimeout)
}

// Ping runs the standard gRPC health check against the server.
func (h *Handle) Ping(ctx context.Context) error {
	ctx, cancel := h.callContext(ctx)
	defer cancel()
	resp, err := healthpb.NewHealthClient(h.ch.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("server not serving: %s", resp.GetStatus())
	}
	return nil
}
