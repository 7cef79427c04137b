// Package domain errors.go contains sentinel errors
package domain

import "errors"

// Sentinel domain-level errors reused by higher layers.
var (
	ErrNotConfigured = errors.New("URL or access token is empty")
	ErrNotConnected  = errors.New("gRPC client is not connected")
)
