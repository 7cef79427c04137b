package keystore

import "fmt"

// Kind classifies secure-storage failures so callers can tell "no key yet"
// apart from "storage is broken".
type Kind uint8

// Failure kinds. KindNoEntry is consumed by Custodian and never escapes
// GetOrCreateKey.
const (
	KindPlatformFailure Kind = iota + 1
	KindNoStorageAccess
	KindNoEntry
	KindBadEncoding
	KindBadDataFormat
	KindAttributeTooLong
	KindInvalidAttribute
	KindAmbiguousMatch
	KindInvalidKeyLength
)

var kindNames = map[Kind]string{
	KindPlatformFailure:  "platform failure",
	KindNoStorageAccess:  "storage unavailable",
	KindNoEntry:          "entry not found",
	KindBadEncoding:      "invalid encoding",
	KindBadDataFormat:    "invalid data format",
	KindAttributeTooLong: "attribute too long",
	KindInvalidAttribute: "invalid attribute",
	KindAmbiguousMatch:   "ambiguous credentials",
	KindInvalidKeyLength: "stored key has invalid length (expected 32 bytes)",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the single error type returned by this package. Err holds the
// backend-specific cause for diagnostics and may be nil.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "keystore: " + e.Kind.String()
	}
	return "keystore: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind that carries no cause, which is
// how the package-level sentinels below are shaped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrPlatformFailure  = &Error{Kind: KindPlatformFailure}
	ErrNoStorageAccess  = &Error{Kind: KindNoStorageAccess}
	ErrNoEntry          = &Error{Kind: KindNoEntry}
	ErrBadEncoding      = &Error{Kind: KindBadEncoding}
	ErrBadDataFormat    = &Error{Kind: KindBadDataFormat}
	ErrAttributeTooLong = &Error{Kind: KindAttributeTooLong}
	ErrInvalidAttribute = &Error{Kind: KindInvalidAttribute}
	ErrAmbiguousMatch   = &Error{Kind: KindAmbiguousMatch}
	ErrInvalidKeyLength = &Error{Kind: KindInvalidKeyLength}
)

func wrap(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}
