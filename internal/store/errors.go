package store

import (
	"errors"
	"fmt"
)

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)

// PersistenceError wraps an infrastructure failure of the storage layer. Retryable marks
// transient failures (timeouts, serialization failures, lost connections) that a caller
// may retry for idempotent operations.
type PersistenceError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("%s: transient storage failure: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err carries a retryable PersistenceError.
func IsRetryable(err error) bool {
	var pErr *PersistenceError
	return errors.As(err, &pErr) && pErr.Retryable
}
