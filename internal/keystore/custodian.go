// Package keystore obtains the symmetric key that seals the access token. The
// key lives in a platform secure-storage facility (see Backend); the process
// only ever holds a transient copy.
package keystore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Account is the fixed account label the key is stored under.
const Account = "encryption_key_v1"

// KeySize is the length of the symmetric key in bytes.
const KeySize = 32

// Custodian fetches the key for one service name, creating it on first use.
// It is safe for concurrent use: first-time creation is serialized so that
// racing callers all observe the same key.
type Custodian struct {
	backend Backend
	service string
	logger  *slog.Logger
	rand    io.Reader

	createMu sync.Mutex
}

// New returns a Custodian bound to backend and service.
func New(backend Backend, service string, logger *slog.Logger) (*Custodian, error) {
	if backend == nil {
		return nil, errors.New("keystore: nil backend")
	}
	if service == "" {
		return nil, wrap(KindInvalidAttribute, errors.New("empty service name"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Custodian{
		backend: backend,
		service: service,
		logger:  logger.With("domain", "keystore", "backend", backend.Name()),
		rand:    rand.Reader,
	}, nil
}

// Service returns the service name keys are stored under.
func (c *Custodian) Service() string { return c.service }

// GetOrCreateKey returns the stored key, generating and persisting a fresh
// random key when the backend has no entry yet.
func (c *Custodian) GetOrCreateKey() ([]byte, error) {
	key, err := c.fetch()
	if err == nil || !errors.Is(err, ErrNoEntry) {
		return key, err
	}

	c.createMu.Lock()
	defer c.createMu.Unlock()
	// another caller may have won the race while we waited
	key, err = c.fetch()
	if err == nil || !errors.Is(err, ErrNoEntry) {
		return key, err
	}

	key = make([]byte, KeySize)
	if _, err := io.ReadFull(c.rand, key); err != nil {
		return nil, wrap(KindPlatformFailure, fmt.Errorf("generate key: %w", err))
	}
	if err := c.backend.Set(c.service, Account, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, err
	}
	c.logger.Info("created encryption key", "service", c.service)
	return key, nil
}

func (c *Custodian) fetch() ([]byte, error) {
	b64, err := c.backend.Get(c.service, Account)
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, wrap(KindBadEncoding, err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}
