package store

import (
	"errors"
	"fmt"
)

// Sentinel error kinds returned by every store implementation. Callers
// branch with errors.Is; the hub maps them to HTTP status codes.
var (
	// ErrNotFound indicates a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an illegal state transition or a path collision.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates bad input rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable indicates a transient backing-store failure. Safe to
	// retry at the call site.
	ErrUnavailable = errors.New("storage unavailable")
)

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Unavailablef wraps ErrUnavailable with a formatted message.
func Unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnavailable}, args...)...)
}
