package grpcx

import "fmt"

// Kind classifies connection failures.
type Kind uint8

// Connection failure kinds.
const (
	KindInvalidURL Kind = iota + 1
	KindInvalidURI
	KindInvalidTLSDomain
	KindTransport
	KindInvalidAuthToken
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid endpoint URL"
	case KindInvalidURI:
		return "invalid proxy URI"
	case KindInvalidTLSDomain:
		return "invalid TLS domain name"
	case KindTransport:
		return "transport error"
	case KindInvalidAuthToken:
		return "invalid authorization token"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is returned by Manager.Connect. Err carries the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "grpc: " + e.Kind.String()
	}
	return "grpc: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the cause-less sentinels below by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidURL       = &Error{Kind: KindInvalidURL}
	ErrInvalidURI       = &Error{Kind: KindInvalidURI}
	ErrInvalidTLSDomain = &Error{Kind: KindInvalidTLSDomain}
	ErrTransport        = &Error{Kind: KindTransport}
	ErrInvalidAuthToken = &Error{Kind: KindInvalidAuthToken}
)

func fail(kind Kind, err error) error { return &Error{Kind: kind, Err: err} }
