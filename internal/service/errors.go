package service

import (
	"errors"
	"fmt"

	"github.com/nvasquez/dirbatch-api/internal/store"
)

// Common sentinel errors for the job service.
var (
	// ErrJobNotFound indicates that the job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownJobKind indicates that no source or handler is registered
	// for the requested kind.
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrNoEligibleItems indicates that the source found nothing to enqueue.
	ErrNoEligibleItems = errors.New("no eligible items for job")

	// ErrInvalidFilter indicates the source could not parse the caller's
	// filter document.
	ErrInvalidFilter = errors.New("invalid job filter")

	// ErrJobAlreadyFinished indicates a cancel against a terminal job.
	ErrJobAlreadyFinished = errors.New("job already finished")
)

// JobServiceError wraps errors from the job service with context.
type JobServiceError struct {
	// Operation is the operation that failed (e.g., "start_job", "cancel_job").
	Operation string
	// Message is a human-readable description of the error.
	Message string
	// Err is the underlying error that caused the failure.
	Err error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError. Known sentinel errors,
// including their store-level counterparts, come back as the service-level
// sentinel directly so callers can match on them.
func NewJobServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrJobNotFound) || errors.Is(err, store.ErrJobNotFound) {
		return ErrJobNotFound
	}
	if errors.Is(err, ErrJobAlreadyFinished) || errors.Is(err, store.ErrJobFinished) {
		return ErrJobAlreadyFinished
	}
	if errors.Is(err, ErrUnknownJobKind) || errors.Is(err, ErrNoEligibleItems) || errors.Is(err, ErrInvalidFilter) {
		return err
	}

	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
