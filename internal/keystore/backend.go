package keystore

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Backend is a secure-storage facility holding string secrets addressed by
// (service, account). Implementations return *Error values; a missing entry
// must be reported as KindNoEntry.
type Backend interface {
	Name() string
	Get(service, account string) (string, error)
	Set(service, account, secret string) error
	Delete(service, account string) error
}

// Backend kinds selectable from configuration.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendMemory  = "memory"
)

// NewBackend returns the backend named by kind. dir is only used by the file
// backend.
func NewBackend(kind, dir string) (Backend, error) {
	switch kind {
	case "", BackendKeyring:
		return KeyringBackend{}, nil
	case BackendFile:
		return NewFileBackend(filepath.Clean(dir))
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("keystore: unknown backend %q", kind)
	}
}

// MemoryBackend keeps secrets in process memory. Useful for tests and
// throwaway sessions; nothing survives a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	secrets map[[2]string]string
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{secrets: make(map[[2]string]string)}
}

func (m *MemoryBackend) Name() string { return BackendMemory }

func (m *MemoryBackend) Get(service, account string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.secrets[[2]string{service, account}]
	if !ok {
		return "", ErrNoEntry
	}
	return v, nil
}

func (m *MemoryBackend) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[[2]string{service, account}] = secret
	return nil
}

func (m *MemoryBackend) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[[2]string{service, account}]; !ok {
		return ErrNoEntry
	}
	delete(m.secrets, [2]string{service, account})
	return nil
}
