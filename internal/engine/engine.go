package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
)

// Verdict values the engine writes when it decides the outcome itself.
// Handlers are free to return richer verdicts ("approved", "rejected",
// "cleared", ...) for successful executions.
const (
	VerdictError = "error"
)

// Result is a handler's per-item outcome for a successful execution.
type Result struct {
	// Verdict is the domain-level outcome, e.g. "approved" or "rejected".
	Verdict string

	// Reason is a human-readable explanation of the verdict.
	Reason string
}

// Handler executes one work item. The payload is the opaque task payload
// snapshotted at job creation; handlers parse and validate it themselves.
//
// A nil error marks the task done with the returned Result. Errors wrapping
// ErrTransient are retried with backoff up to the attempt ceiling; any other
// error fails the task immediately. Handlers must be idempotent: a task
// reclaimed after a crash is executed again (at-least-once delivery).
type Handler func(ctx context.Context, payload json.RawMessage) (Result, error)

// TaskOutcome is the terminal record the worker loop writes for one task.
type TaskOutcome struct {
	Succeeded    bool
	Verdict      string
	Reason       string
	ErrorMessage string
}

// Store is the engine's view of the durable job/task tables. All mutation of
// shared state goes through these operations; the engine itself keeps no
// in-memory state between invocations.
type Store interface {
	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// CreateJob persists a new job together with one pending task per
	// payload, in a single transaction.
	CreateJob(ctx context.Context, job *domain.Job, payloads []json.RawMessage) error

	// MarkJobRunning moves a pending job to running.
	MarkJobRunning(ctx context.Context, jobID uuid.UUID) error

	// FinishJobIfComplete marks the job done iff no pending or in-progress
	// tasks remain, checking the remainder and updating the job in one
	// transaction so the check cannot race a concurrent claim.
	// Returns true when the job is in a terminal status afterwards.
	FinishJobIfComplete(ctx context.Context, jobID uuid.UUID) (bool, error)

	// CancelJob flips the job to cancelled and every still-pending task to
	// cancelled. Tasks already in progress are left for their worker.
	// Returns the number of tasks cancelled.
	CancelJob(ctx context.Context, jobID uuid.UUID) (int64, error)

	// ClaimTasks atomically takes up to limit pending tasks of the job,
	// marks them in_progress with a fresh updated_at, and returns them.
	// Concurrent callers never receive the same task.
	ClaimTasks(ctx context.Context, jobID uuid.UUID, limit int) ([]*domain.Task, error)

	// ResetStuckTasks returns in-progress tasks older than olderThan to
	// pending, recovering work stranded by a crashed invocation.
	ResetStuckTasks(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) (int64, error)

	// CancelStuckTasks marks in-progress tasks older than olderThan as
	// cancelled. This is the reaper's path for jobs that are already
	// terminal, where re-queueing would strand the task instead.
	CancelStuckTasks(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) (int64, error)

	// CompleteTask writes the task's terminal outcome and increments the
	// job's processed/succeeded/failed counters in one transaction.
	CompleteTask(ctx context.Context, jobID, taskID uuid.UUID, outcome TaskOutcome) error

	// CancelTask marks a claimed-but-unprocessed task cancelled without
	// touching the job counters.
	CancelTask(ctx context.Context, taskID uuid.UUID) error

	// ListJobs returns the most recent jobs, newest first.
	ListJobs(ctx context.Context, limit int) ([]*domain.Job, error)

	// ListTasks returns all tasks of a job in creation order.
	ListTasks(ctx context.Context, jobID uuid.UUID) ([]*domain.Task, error)
}

// ErrUnknownJobKind is returned when no handler is registered for a job kind.
var ErrUnknownJobKind = errors.New("unknown job kind")

// Registry maps job kinds to their handlers. Multiple admin batch features
// (photo audit, hero audit, description backfill) share the one engine and
// register themselves here at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register associates a handler with a job kind.
// Returns an error if the kind is already registered.
func (r *Registry) Register(kind string, handler Handler) error {
	if kind == "" {
		return errors.New("job kind cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for kind %q", kind)
	}

	r.handlers[kind] = handler
	return nil
}

// Handler returns the handler for the given kind.
func (r *Registry) Handler(kind string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobKind, kind)
	}
	return handler, nil
}

// Kinds returns the registered job kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}
