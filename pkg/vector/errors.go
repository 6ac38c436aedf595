package vector

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrDimensionMismatch is returned when a vector's length differs
	// from the collection dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidID is returned when a record id violates the backend's
	// id policy
	ErrInvalidID = errors.New("invalid record id")

	// ErrUnsupportedMetric is returned for unknown or unsupported
	// metric names
	ErrUnsupportedMetric = errors.New("unsupported metric")

	// ErrFiltersNotSupported is returned when filters are passed to a
	// backend without filter support
	ErrFiltersNotSupported = errors.New("payload filters not supported")

	// ErrCollectionExists is returned when creating a collection that
	// already exists without overwrite
	ErrCollectionExists = errors.New("collection already exists")

	// ErrCollectionNotFound is returned when operating on a missing
	// collection
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidDimension is returned when a collection dimension is
	// not positive
	ErrInvalidDimension = errors.New("invalid collection dimension")
)

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("vectorstore: %v", e.Err)
	}
	return fmt.Sprintf("vectorstore: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
