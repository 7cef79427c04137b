package app

import (
	"context"
	"errors"

	"google.golang.org/grpc/status"

	"github.com/haukened/roomtemp/internal/crypto"
	"github.com/haukened/roomtemp/internal/domain"
	"github.com/haukened/roomtemp/internal/grpcx"
	"github.com/haukened/roomtemp/internal/keystore"
	"github.com/haukened/roomtemp/internal/store"
)

// UnexpectedMessage is what Describe returns for errors it does not know.
const UnexpectedMessage = "Unexpected error occurred"

var keystoreMessages = map[keystore.Kind]string{
	keystore.KindPlatformFailure:  "Keystore: platform failure",
	keystore.KindNoStorageAccess:  "Keystore: storage unavailable",
	keystore.KindNoEntry:          "Keystore: entry not found",
	keystore.KindBadEncoding:      "Keystore: invalid encoding",
	keystore.KindBadDataFormat:    "Keystore: invalid data format",
	keystore.KindAttributeTooLong: "Keystore: attribute too long",
	keystore.KindInvalidAttribute: "Keystore: invalid attribute",
	keystore.KindAmbiguousMatch:   "Keystore: ambiguous credentials",
	keystore.KindInvalidKeyLength: "Keystore: invalid length detected",
}

var grpcMessages = map[grpcx.Kind]string{
	grpcx.KindInvalidURL:       "grpc: invalid URL detected",
	grpcx.KindInvalidURI:       "grpc: invalid URI detected",
	grpcx.KindInvalidTLSDomain: "grpc: invalid TLS domain detected",
	grpcx.KindTransport:        "grpc: transport error occurred",
	grpcx.KindInvalidAuthToken: "grpc: invalid auth token detected",
}

// Describe renders err as a short message fit to show a user. It never
// includes the access token, key material or driver internals.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var (
		kerr *keystore.Error
		gerr *grpcx.Error
		serr *store.Error
	)
	switch {
	case errors.Is(err, domain.ErrNotConfigured), errors.Is(err, domain.ErrNotConnected):
		return err.Error()
	case errors.As(err, &kerr):
		if msg, ok := keystoreMessages[kerr.Kind]; ok {
			return msg
		}
		return "Keystore: unknown error occurred"
	case errors.Is(err, crypto.ErrInvalidKey):
		return "Crypto: invalid key detected"
	case errors.Is(err, crypto.ErrInvalidNonceLength):
		return "Crypto: invalid nonce length detected"
	case errors.Is(err, crypto.ErrEncrypt):
		return "Crypto: encryption failed"
	case errors.Is(err, crypto.ErrDecrypt):
		return "Crypto: decryption failed"
	case errors.As(err, &gerr):
		if msg, ok := grpcMessages[gerr.Kind]; ok {
			return msg
		}
		return "grpc: connection failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "Operation timed out"
	case errors.Is(err, context.Canceled):
		return "Operation canceled"
	case errors.As(err, &serr) && serr.Kind == store.KindStorage:
		return "Database error occurred"
	}
	if st, ok := status.FromError(err); ok {
		return "grpc: call failed: " + st.Code().String()
	}
	return UnexpectedMessage
}
