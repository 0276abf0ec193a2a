package job

import (
	"errors"
	"fmt"

	"media-pipeline-go/pkg/utils"
)

var (
	// ErrInvalidInput is returned by Submit before any state is created
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for unknown job ids
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned when an operation does not fit the job state
	ErrConflict = errors.New("job state conflict")
	// ErrExtraction means the input could not be segmented into sequences
	ErrExtraction = errors.New("sequence extraction failed")
	// ErrValidationUnavailable means the quality gate could not run
	ErrValidationUnavailable = errors.New("validation unavailable")
	// ErrValidationRejected means the quality gate ran and refused the output
	ErrValidationRejected = errors.New("validation rejected output")
	// ErrCancelled marks a job stopped by a cancel request
	ErrCancelled = errors.New("job cancelled")
)

// FailureClass tells the retry policy how to treat a capability failure
type FailureClass int

const (
	ClassPermanent FailureClass = iota
	ClassTransient
	ClassCapacity
)

// String returns the string representation of a failure class
func (c FailureClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassCapacity:
		return "capacity_exceeded"
	default:
		return "permanent"
	}
}

// Retryable reports whether the class may be retried
func (c FailureClass) Retryable() bool {
	return c == ClassTransient || c == ClassCapacity
}

// CapabilityError is a typed failure reported by a generation capability
type CapabilityError struct {
	Class FailureClass
	Op    string
	Err   error
}

// Error implements the error interface
func (e *CapabilityError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s failure: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s failure during %s: %v", e.Class, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure
func Transient(op string, err error) error {
	return &CapabilityError{Class: ClassTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable failure
func Permanent(op string, err error) error {
	return &CapabilityError{Class: ClassPermanent, Op: op, Err: err}
}

// CapacityExceeded wraps err as a retryable failure that needs a longer backoff
func CapacityExceeded(op string, err error) error {
	return &CapabilityError{Class: ClassCapacity, Op: op, Err: err}
}

// ClassOf classifies an error. Typed capability errors carry their class;
// anything else is classified from its shape.
func ClassOf(err error) FailureClass {
	if err == nil {
		return ClassPermanent
	}

	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		return capErr.Class
	}

	if errors.Is(err, ErrValidationUnavailable) {
		return ClassTransient
	}

	if utils.IsCapacityError(err) {
		return ClassCapacity
	}

	if utils.IsTimeoutError(err) || utils.IsRetryableError(err) {
		return ClassTransient
	}

	return ClassPermanent
}

// StageError is the terminal failure recorded on a job
type StageError struct {
	Stage    Stage
	Index    int
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e.Index == JobLevel {
		return fmt.Sprintf("%s stage failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s stage failed for sequence %d after %d attempt(s): %v",
		e.Stage, e.Index, e.Attempts, e.Err)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	return e.Err
}
