package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retryTask(t *testing.T) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(uuid.New(), json.RawMessage(`{"item":0}`))
	require.NoError(t, err)
	return task
}

func retryRunner(maxAttempts int) *Runner {
	cfg := DefaultRunnerConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.RetryBaseDelay = time.Millisecond
	cfg.HandlerTimeout = 100 * time.Millisecond
	return NewRunner(NewMockStore(), NewRegistry(), cfg, testLogger())
}

func TestRunWithRetry_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	attempts := 0
	handler := func(ctx context.Context, payload json.RawMessage) (Result, error) {
		attempts++
		if attempts < 3 {
			return Result{}, Transient(errors.New("service overloaded"))
		}
		return Result{Verdict: "approved", Reason: "clean image"}, nil
	}

	outcome := retryRunner(5).runWithRetry(context.Background(), handler, retryTask(t))

	assert.Equal(t, 3, attempts)
	assert.True(t, outcome.Succeeded)
	assert.Equal(t, "approved", outcome.Verdict)
	assert.Equal(t, "clean image", outcome.Reason)
	assert.Empty(t, outcome.ErrorMessage)
}

func TestRunWithRetry_PermanentNoRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	handler := func(ctx context.Context, payload json.RawMessage) (Result, error) {
		attempts++
		return Result{}, errors.New("image fetch returned status 404")
	}

	outcome := retryRunner(5).runWithRetry(context.Background(), handler, retryTask(t))

	assert.Equal(t, 1, attempts, "permanent errors must not be retried")
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, VerdictError, outcome.Verdict)
	assert.Equal(t, "permanent failure", outcome.Reason)
	assert.Contains(t, outcome.ErrorMessage, "404")
}

func TestRunWithRetry_Exhaustion(t *testing.T) {
	t.Parallel()

	attempts := 0
	handler := func(ctx context.Context, payload json.RawMessage) (Result, error) {
		attempts++
		return Result{}, Transient(errors.New("too many requests"))
	}

	outcome := retryRunner(4).runWithRetry(context.Background(), handler, retryTask(t))

	assert.Equal(t, 4, attempts)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, "retries exhausted", outcome.Reason)
	assert.Contains(t, outcome.ErrorMessage, "too many requests")
}

func TestRunWithRetry_HandlerTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	attempts := 0
	handler := func(ctx context.Context, payload json.RawMessage) (Result, error) {
		attempts++
		if attempts == 1 {
			<-ctx.Done() // outlive the per-item timeout
			return Result{}, ctx.Err()
		}
		return Result{Verdict: "approved"}, nil
	}

	outcome := retryRunner(3).runWithRetry(context.Background(), handler, retryTask(t))

	assert.Equal(t, 2, attempts, "a timed-out attempt should be retried")
	assert.True(t, outcome.Succeeded)
}

func TestRunWithRetry_AbortedInvocation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	handler := func(hctx context.Context, payload json.RawMessage) (Result, error) {
		attempts++
		cancel() // the invocation context dies mid-execution
		return Result{}, Transient(errors.New("temporarily unavailable"))
	}

	outcome := retryRunner(5).runWithRetry(ctx, handler, retryTask(t))

	assert.Equal(t, 1, attempts, "no retries against a dead invocation context")
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, "invocation aborted", outcome.Reason)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTransient(Transient(errors.New("overloaded"))))
	assert.True(t, IsTransient(ErrTransient))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("bad request")))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}

func TestTransient(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Transient(nil))

	wrapped := Transient(errors.New("rate limited"))
	assert.True(t, errors.Is(wrapped, ErrTransient))
	assert.Contains(t, wrapped.Error(), "rate limited")
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 5; attempt++ {
		d := backoffDelay(base, attempt)
		// Jitter scales by [0.5, 1.0] of base * 2^(attempt-1).
		max := time.Duration(float64(base) * float64(int(1)<<uint(attempt-1)))
		min := max / 2
		assert.GreaterOrEqual(t, d, min, "attempt %d", attempt)
		assert.LessOrEqual(t, d, max, "attempt %d", attempt)
	}
}
