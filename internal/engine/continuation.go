package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProcessFunc matches Runner.ProcessBatch.
type ProcessFunc func(ctx context.Context, jobID uuid.UUID) (BatchResult, error)

// Continuer dispatches the next worker-loop invocation for a job without
// blocking the caller. The source environment did this with a fire-and-forget
// HTTP call to itself; in a process with a real scheduler it is a detached
// task.
type Continuer interface {
	Continue(jobID uuid.UUID)
}

// NoopContinuer discards continuations. Used in tests and for callers that
// drive the loop themselves via the process endpoint.
type NoopContinuer struct{}

// Continue implements Continuer.
func (NoopContinuer) Continue(uuid.UUID) {}

// GoroutineContinuer runs each continuation as a detached goroutine with its
// own bounded context, so a chain of invocations carries a job to completion
// while no single invocation exceeds its time budget.
type GoroutineContinuer struct {
	process ProcessFunc
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewGoroutineContinuer creates a continuer that invokes process with a
// fresh background context bounded by timeout.
func NewGoroutineContinuer(process ProcessFunc, timeout time.Duration, logger *slog.Logger) *GoroutineContinuer {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &GoroutineContinuer{
		process: process,
		timeout: timeout,
		logger:  logger,
	}
}

// Continue dispatches one detached invocation for the job and returns
// immediately. A crashed invocation is recovered by the stuck-task reaper,
// so failures here are logged, never propagated.
func (c *GoroutineContinuer) Continue(jobID uuid.UUID) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				c.logger.Error("continuation panicked",
					"job_id", jobID,
					"panic", p)
			}
		}()

		// Background context: the continuation must outlive the request
		// that triggered it.
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if _, err := c.process(ctx, jobID); err != nil {
			c.logger.Error("continuation failed",
				"job_id", jobID,
				"error", err)
		}
	}()
}

// Wait blocks until all dispatched continuations have returned.
// Used during graceful shutdown and in tests.
func (c *GoroutineContinuer) Wait() {
	c.wg.Wait()
}
