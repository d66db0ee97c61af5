package softcache

import (
	"errors"
	"fmt"
)

var (
	// ErrBulkTransferUnsupported is returned by Build when the configured
	// store does not implement remote.BulkReader. The fetch pipeline
	// refuses to fall back to per-line reads.
	ErrBulkTransferUnsupported = errors.New("store does not support bulk indexed reads")

	// ErrNotBound is returned when an operation needs a host buffer that
	// has not been bound.
	ErrNotBound = errors.New("required host buffer is not bound")

	// ErrNotBuilt is returned when a transfer is attempted before Build.
	ErrNotBuilt = errors.New("cache has not been built")

	// ErrClosed is returned when using a closed cache.
	ErrClosed = errors.New("cache is closed")

	// ErrInvalidConfig indicates a store/cache shape mismatch at Build.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrCapacityViolation indicates a cache dimension that violates the
// capacity relations at construction. Dimensions are never clamped; the
// constructor rejects the configuration outright.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCapacityViolation struct {
	Param string // offending parameter name
	Value int
	Limit int // exceeded bound, 0 when the violation is non-positivity
	cause error
}

func (e *ErrCapacityViolation) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("capacity violation: %s %d exceeds %d", e.Param, e.Value, e.Limit)
	}
	return fmt.Sprintf("capacity violation: %s must be positive, got %d", e.Param, e.Value)
}

func (e *ErrCapacityViolation) Unwrap() error { return e.cause }
