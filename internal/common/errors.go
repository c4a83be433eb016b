// Package common defines sentinel errors shared by the device and server
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Malformed input: missing required field, bad enum value.
	ErrValidation = errors.New("validation error")

	// Missing, invalid or revoked credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Backing store or network unreachable.
	ErrUnavailable = errors.New("unavailable")

	// A stored entry failed to parse.
	ErrCorruptData = errors.New("corrupt data")
)
