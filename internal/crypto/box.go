// Package crypto provides the authenticated encryption primitive used to seal
// the access token at rest. It is a thin, stateless wrapper over
// ChaCha20-Poly1305 with a fresh random 96-bit nonce per encryption.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sizes of the key and nonce expected by Box.
const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
)

// Sentinel errors. None of them carries key material.
var (
	ErrInvalidKey         = errors.New("invalid key length (expected 32 bytes)")
	ErrInvalidNonceLength = errors.New("invalid nonce length")
	ErrEncrypt            = errors.New("encryption failed")
	ErrDecrypt            = errors.New("decryption failed")
)

// InvalidNonceLengthError reports the offending nonce length. It matches
// ErrInvalidNonceLength with errors.Is.
type InvalidNonceLengthError struct {
	Got int
}

func (e *InvalidNonceLengthError) Error() string {
	return fmt.Sprintf("invalid nonce length (expected %d bytes, got %d)", NonceSize, e.Got)
}

// Is makes errors.Is(err, ErrInvalidNonceLength) succeed.
func (e *InvalidNonceLengthError) Is(target error) bool { return target == ErrInvalidNonceLength }

// Box seals and opens strings with a single 32-byte key.
type Box struct {
	aead cipher.AEAD
}

// New returns a Box for key. key must be exactly KeySize bytes.
func New(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext under a freshly generated nonce and returns the
// ciphertext together with that nonce. The two must be stored as a pair.
func (b *Box) Encrypt(plaintext string) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}
	ciphertext = b.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext with nonce. Tampered input, a wrong key and
// non-UTF-8 plaintext all yield ErrDecrypt.
func (b *Box) Decrypt(ciphertext, nonce []byte) (string, error) {
	if len(nonce) != NonceSize {
		return "", &InvalidNonceLengthError{Got: len(nonce)}
	}
	pt, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	if !utf8.Valid(pt) {
		return "", ErrDecrypt
	}
	return string(pt), nil
}
