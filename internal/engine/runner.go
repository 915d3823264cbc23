package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/platform/logger"
)

// RunnerConfig holds configuration for the worker loop.
type RunnerConfig struct {
	// BatchSize determines how many tasks one invocation claims.
	// Keep at 1 for strictly rate-limited workloads.
	BatchSize int

	// StuckTaskAge defines how long a task may sit in_progress before the
	// reaper considers its claimer dead and resets it to pending.
	StuckTaskAge time.Duration

	// HandlerTimeout bounds a single handler execution attempt.
	HandlerTimeout time.Duration

	// MaxAttempts is the per-task attempt ceiling for transient errors.
	MaxAttempts int

	// RetryBaseDelay is the base delay for exponential backoff between attempts.
	RetryBaseDelay time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		BatchSize:      3,
		StuckTaskAge:   2 * time.Minute,
		HandlerTimeout: 60 * time.Second,
		MaxAttempts:    5,
		RetryBaseDelay: 2 * time.Second,
	}
}

// BatchResult summarizes one worker-loop invocation.
type BatchResult struct {
	// Done is true when the job is in a terminal status.
	Done bool `json:"done"`

	// Claimed is the number of tasks this invocation claimed.
	Claimed int `json:"claimed"`

	// Processed and Succeeded count the tasks this invocation completed.
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
}

// Runner is the per-invocation worker loop. It is stateless between
// invocations: every piece of shared state lives in the Store, so any
// number of Runners (across processes) may work the same job.
type Runner struct {
	store     Store
	registry  *Registry
	cfg       RunnerConfig
	logger    *slog.Logger
	continuer Continuer
}

// NewRunner creates a Runner over the given store and handler registry.
// The continuer defaults to a no-op; callers wanting self-continuation
// set one with SetContinuer after construction.
func NewRunner(store Store, registry *Registry, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRunnerConfig().BatchSize
	}
	if cfg.StuckTaskAge <= 0 {
		cfg.StuckTaskAge = DefaultRunnerConfig().StuckTaskAge
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = DefaultRunnerConfig().HandlerTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRunnerConfig().MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRunnerConfig().RetryBaseDelay
	}

	return &Runner{
		store:     store,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
		continuer: NoopContinuer{},
	}
}

// SetContinuer installs the continuation dispatcher used after a batch.
func (r *Runner) SetContinuer(c Continuer) {
	if c != nil {
		r.continuer = c
	}
}

// ProcessBatch runs one worker-loop invocation for the job:
//
//  1. If the job is already terminal, sweep any abandoned in-progress tasks
//     to cancelled and return.
//  2. Sweep stuck tasks back to pending.
//  3. Atomically claim up to BatchSize pending tasks.
//  4. If none were claimed, mark the job done when no non-terminal tasks
//     remain; otherwise another invocation still holds work.
//  5. Execute the handler per claimed task with retry/backoff, re-checking
//     the job's cancellation status before each item, and persist each
//     outcome together with the job counter increments.
//  6. Dispatch a continuation so remaining work is picked up by a fresh
//     invocation; this loop never iterates past its own batch.
func (r *Runner) ProcessBatch(ctx context.Context, jobID uuid.UUID) (BatchResult, error) {
	log := logger.FromContext(ctx).With("job_id", jobID)

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to load job: %w", err)
	}

	if job.Status.IsTerminal() {
		// A worker that crashed mid-task leaves it in_progress; on a
		// finished job no claim will ever pick it back up, so the reaper
		// cancels it instead of re-queueing.
		swept, err := r.store.CancelStuckTasks(ctx, jobID, r.cfg.StuckTaskAge)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to cancel stuck tasks: %w", err)
		}
		if swept > 0 {
			log.Warn("cancelled stuck tasks on finished job", "count", swept, "status", job.Status)
		}
		return BatchResult{Done: true}, nil
	}

	reaped, err := r.store.ResetStuckTasks(ctx, jobID, r.cfg.StuckTaskAge)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to reset stuck tasks: %w", err)
	}
	if reaped > 0 {
		log.Warn("reset stuck tasks to pending", "count", reaped)
	}

	tasks, err := r.store.ClaimTasks(ctx, jobID, r.cfg.BatchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to claim tasks: %w", err)
	}

	if len(tasks) == 0 {
		// Nothing claimable is ambiguous: the job may be complete, or
		// other invocations may still hold in-progress tasks. The store
		// resolves this with a remainder check that is read-consistent
		// with the job update.
		done, err := r.store.FinishJobIfComplete(ctx, jobID)
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to finalize job: %w", err)
		}
		if done {
			log.Info("job complete")
		}
		return BatchResult{Done: done}, nil
	}

	result := BatchResult{Claimed: len(tasks)}
	handler, handlerErr := r.registry.Handler(job.Kind)

	for i, task := range tasks {
		// Fresh read, not the snapshot from the top of the loop:
		// cancellation must be observed between items.
		fresh, err := r.store.GetJob(ctx, jobID)
		if err != nil {
			return result, fmt.Errorf("failed to re-check job status: %w", err)
		}

		if fresh.Status.IsTerminal() {
			log.Info("job reached terminal status mid-batch, releasing claimed tasks",
				"status", fresh.Status,
				"remaining", len(tasks)-i)
			for _, rest := range tasks[i:] {
				if err := r.store.CancelTask(ctx, rest.ID); err != nil {
					log.Error("failed to cancel claimed task",
						"task_id", rest.ID,
						"error", err)
				}
			}
			result.Done = true
			return result, nil
		}

		var outcome TaskOutcome
		if handlerErr != nil {
			outcome = failureOutcome(reasonPermanentFailure, handlerErr)
		} else {
			outcome = r.runWithRetry(ctx, handler, task)
		}

		if err := r.store.CompleteTask(ctx, jobID, task.ID, outcome); err != nil {
			return result, fmt.Errorf("failed to record task outcome: %w", err)
		}

		result.Processed++
		if outcome.Succeeded {
			result.Succeeded++
		}

		log.Info("task processed",
			"task_id", task.ID,
			"verdict", outcome.Verdict,
			"succeeded", outcome.Succeeded)
	}

	// Hand off: further pending work belongs to a fresh invocation.
	r.continuer.Continue(jobID)

	return result, nil
}
