package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/nvasquez/dirbatch-api/internal/platform/logger"
	"github.com/nvasquez/dirbatch-api/internal/redact"
)

// ErrTransient marks an error as a transient upstream condition (service
// overloaded, rate limited, temporarily unavailable). Handlers wrap such
// errors with ErrTransient so the engine retries them with backoff; all
// other errors are treated as permanent and fail the task immediately.
var ErrTransient = errors.New("transient upstream error")

// IsTransient reports whether the error should be retried. A handler
// deadline counts as transient: a slow external call is expected to succeed
// on a later attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// Reasons recorded on failed tasks.
const (
	reasonPermanentFailure = "permanent failure"
	reasonRetriesExhausted = "retries exhausted"
	reasonAborted          = "invocation aborted"
)

// runWithRetry executes the handler for one task, retrying transient errors
// up to the configured attempt ceiling with exponential backoff and jitter.
// Every path returns a terminal TaskOutcome: exhausting retries is a per-task
// failure, never a job failure.
func (r *Runner) runWithRetry(ctx context.Context, handler Handler, task *domain.Task) TaskOutcome {
	log := logger.FromContext(ctx).With(
		"task_id", task.ID,
		"job_id", task.JobID,
	)

	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		// Per-item timeout so one slow call cannot consume the whole
		// invocation's time budget.
		hctx, cancel := context.WithTimeout(ctx, r.cfg.HandlerTimeout)
		result, err := handler(hctx, task.Payload)
		cancel()

		if err == nil {
			return TaskOutcome{
				Succeeded: true,
				Verdict:   result.Verdict,
				Reason:    result.Reason,
			}
		}

		lastErr = err

		// The invocation itself is going away; record the abort rather
		// than burning the remaining attempts against a dead context.
		if ctx.Err() != nil {
			log.Warn("handler aborted by invocation context", "error", err)
			return failureOutcome(reasonAborted, err)
		}

		if !IsTransient(err) {
			log.Warn("permanent handler error, not retrying",
				"attempt", attempt,
				"error", err)
			return failureOutcome(reasonPermanentFailure, err)
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(r.cfg.RetryBaseDelay, attempt)
		log.Info("transient handler error, retrying",
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"delay", delay.String(),
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return failureOutcome(reasonAborted, ctx.Err())
		}
	}

	log.Warn("retry attempts exhausted",
		"max_attempts", r.cfg.MaxAttempts,
		"error", lastErr)
	return failureOutcome(reasonRetriesExhausted, lastErr)
}

// failureOutcome builds the terminal outcome for a failed task. The error
// message is redacted before it is persisted, since task traces are served
// to operators over the API.
func failureOutcome(reason string, err error) TaskOutcome {
	outcome := TaskOutcome{
		Succeeded: false,
		Verdict:   VerdictError,
		Reason:    reason,
	}
	if err != nil {
		outcome.ErrorMessage = redact.Error(err)
	}
	return outcome
}

// backoffDelay computes the delay before the next attempt:
// base * 2^(attempt-1), scaled by a jitter factor between 0.5 and 1.0.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	backoff := float64(base) * math.Pow(2, float64(attempt-1))
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(backoff * jitter)
}

// Transient wraps err so the engine classifies it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
