// Package store defines the persistence port for the sealed settings row and
// the key source used to seal it. The concrete SQLite adapter lives in
// store/sqlite; callers outside this package use Store only.
package store

import (
	"context"
	"errors"
)

// ErrNoRecord is returned by Repository.Load when the singleton row is absent.
var ErrNoRecord = errors.New("settings record not found")

// Sealed is the persisted form of domain.Settings: the access token is
// replaced by its ciphertext and the nonce it was sealed with.
type Sealed struct {
	URL        string
	Ciphertext []byte
	Nonce      []byte
	UseProxies bool
	ProxyURL   string
}

// Repository persists the singleton sealed settings row.
type Repository interface {
	// Load returns the row or ErrNoRecord.
	Load(ctx context.Context) (Sealed, error)
	// InsertDefault inserts the row if absent; an existing row is left as is.
	InsertDefault(ctx context.Context, s Sealed) error
	// Replace atomically swaps the row for s. The row is never observed absent
	// and a failed replace leaves the previous row in place.
	Replace(ctx context.Context, s Sealed) error
}

// KeySource yields the 32-byte sealing key (keystore.Custodian).
type KeySource interface {
	GetOrCreateKey() ([]byte, error)
}
