// Package core provides the main Resonance client and shared types for the
// event substrate.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrStoreUnavailable indicates the backing file could not be opened or
	// locked within the bounded wait. Retryable by the caller with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSchema indicates a corrupt or unexpected on-disk structure, or an
	// operation invoked before successful initialization. Fatal; not retried
	// automatically.
	ErrSchema = errors.New("schema error")

	// ErrGeneratorTimeout indicates the generator collaborator did not
	// respond within its deadline. The validation engine absorbs this into
	// the DEGRADED terminal state; it is never raised to persona callers.
	ErrGeneratorTimeout = errors.New("generator timeout")

	// ErrGeneratorTransport indicates a transport-level failure talking to
	// the generator collaborator. Absorbed into DEGRADED like a timeout.
	ErrGeneratorTransport = errors.New("generator transport failure")

	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound indicates a requested record was not found.
	ErrNotFound = errors.New("record not found")
)

// StoreError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &StoreError{
//	    Op:  "Append",
//	    Err: ErrStoreUnavailable,
//	}
//	// Error() returns: "resonance: Append: store unavailable"
type StoreError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message in the form
// "resonance: <Op>: <Err>".
func (e *StoreError) Error() string {
	return fmt.Sprintf("resonance: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewStoreError("Append", err)
//	}
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{
		Op:  op,
		Err: err,
	}
}
