package core

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrConfig is returned when model or repository configuration is invalid
	ErrConfig = errors.New("invalid configuration")

	// ErrUsage is returned when an operation is called with arguments that
	// violate its preconditions
	ErrUsage = errors.New("invalid usage")

	// ErrConflict is returned when a statement violates a database constraint
	ErrConflict = errors.New("constraint conflict")

	// ErrNotSupported is returned when a backend lacks a required capability
	ErrNotSupported = errors.New("operation not supported")

	// ErrMissingPK is returned when an operation requires a set primary key
	ErrMissingPK = errors.New("primary key not set")

	// ErrEmptyWhere is returned when a bulk write is attempted without a
	// where condition
	ErrEmptyWhere = errors.New("where condition required")

	// ErrNestedTransaction is returned when a transaction scope is entered
	// while another is already active
	ErrNestedTransaction = errors.New("transaction already active")

	// ErrNotRegistered is returned when a model requires explicit
	// registration and none was performed
	ErrNotRegistered = errors.New("model not registered")

	// ErrSchemaConflict is returned when an existing table is incompatible
	// with the model definition
	ErrSchemaConflict = errors.New("schema conflict")
)

// Error wraps errors with operation context
type Error struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("relstore: %v", e.Err)
	}
	return fmt.Sprintf("relstore: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// usageError builds a precondition violation for op.
func usageError(op, format string, args ...any) error {
	return wrapError(op, fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...)))
}

// configError builds a configuration error for op.
func configError(op, format string, args ...any) error {
	return wrapError(op, fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...)))
}
