// Package pipeline holds the error taxonomy shared across the analytics
// pipeline. Handlers map these onto HTTP statuses; jobs use them to decide
// what is retried, what is skipped, and what fails a run.
package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound covers both genuinely missing resources and ownership
// violations: a caller probing another business's resources learns nothing
// beyond "not found".
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RateLimitError carries the retry metadata clients need for backoff.
type RateLimitError struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: limit %d, resets at %s", e.Limit, e.Reset.UTC().Format(time.RFC3339))
}

// TransientStoreError marks a durable-write failure that buffered paths
// retry automatically and batch jobs surface as a per-site failure.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientStoreError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientStoreError for the named operation.
func Transient(op string, err error) error {
	return &TransientStoreError{Op: op, Err: err}
}

// InsufficientDataError is not a hard failure: it marks a read whose sample
// size is below the statistical minimum, for which callers return a defined
// placeholder result.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string { return e.Reason }

// IsInsufficientData reports whether err is (or wraps) an
// InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}
