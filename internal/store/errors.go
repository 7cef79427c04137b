package store

import "fmt"

// Kind names the layer a store failure originated in.
type Kind uint8

// Origins of a store failure.
const (
	KindKeystore Kind = iota + 1
	KindCrypto
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindKeystore:
		return "keystore"
	case KindCrypto:
		return "crypto"
	case KindStorage:
		return "storage"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error wraps a lower-layer failure with the operation and origin. The cause
// stays reachable through errors.Is / errors.As.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("settings %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
