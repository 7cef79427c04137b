// Package app declares the ports the roomtemp use cases depend on and the
// Service that orchestrates them. Adapters (the encrypted SQLite settings
// store, the gRPC connection manager, the metrics manager) live in their own
// packages; nothing here performs I/O directly.
package app

import (
	"context"
	"time"

	"github.com/haukened/roomtemp/internal/domain"
)

// Clock abstracts time so fetch windows are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SettingsStore persists the single settings record with its access token
// encrypted at rest. Get materializes a default record on first use.
type SettingsStore interface {
	Get(ctx context.Context) (domain.Settings, error)
	Set(ctx context.Context, s domain.Settings) error
}

// Session is a lease on an established connection. Release must be called
// once the caller is done with it.
type Session interface {
	Ping(ctx context.Context) error
	GetAmbientConditions(ctx context.Context, start, end time.Time, samples uint32) ([]byte, error)
	Target() string
	ProxyURL() string
	Release()
}

// Connector owns the shared connection slot. Connect replaces the slot only
// on success; Current returns domain.ErrNotConnected when the slot is empty.
type Connector interface {
	Connect(ctx context.Context, s domain.Settings) (Session, error)
	Current() (Session, error)
}

// Metrics receives counters and latency observations. Optional.
type Metrics interface {
	Inc(name string, delta int64)
	ObserveSince(name string, start time.Time)
}
