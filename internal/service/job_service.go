package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/nvasquez/dirbatch-api/internal/engine"
)

// Source snapshots the work items for one job kind at job-creation time.
// The returned payloads are opaque to the engine; only the kind's handler
// interprets them.
type Source interface {
	// Collect returns up to limit payloads, one per eligible item. A limit
	// of zero or less means the source's own default. The filter is the
	// caller's raw filter document, opaque to everything but the source;
	// nil means unfiltered, and a filter the source cannot parse comes
	// back wrapping ErrInvalidFilter.
	Collect(ctx context.Context, limit int, filter json.RawMessage) ([]json.RawMessage, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, limit int, filter json.RawMessage) ([]json.RawMessage, error)

// Collect implements the Source interface.
func (f SourceFunc) Collect(ctx context.Context, limit int, filter json.RawMessage) ([]json.RawMessage, error) {
	return f(ctx, limit, filter)
}

// JobService provides job lifecycle operations for the HTTP layer.
type JobService interface {
	// StartJob snapshots eligible items for the kind, creates the job with
	// its tasks, and fires the initial continuations that begin processing.
	// The filter is handed to the kind's source untouched.
	StartJob(ctx context.Context, kind string, limit int, filter json.RawMessage) (*domain.Job, error)

	// ProcessBatch runs one worker-loop batch for the job synchronously.
	ProcessBatch(ctx context.Context, jobID uuid.UUID) (engine.BatchResult, error)

	// GetJob returns the job's status and counters.
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)

	// GetTraces returns the job's per-task outcomes in creation order.
	GetTraces(ctx context.Context, jobID uuid.UUID) ([]*domain.Task, error)

	// CancelJob cooperatively cancels the job and returns how many pending
	// tasks were cancelled with it.
	CancelJob(ctx context.Context, jobID uuid.UUID) (int64, error)

	// ListJobs returns the most recent jobs.
	ListJobs(ctx context.Context, limit int) ([]*domain.Job, error)

	// RegisterSource binds a job kind to its item source.
	RegisterSource(kind string, source Source) error

	// Kinds returns the registered job kinds.
	Kinds() []string
}

// jobServiceImpl implements the JobService interface.
type jobServiceImpl struct {
	store          engine.Store
	runner         *engine.Runner
	continuer      engine.Continuer
	initialWorkers int
	logger         *slog.Logger

	mu      sync.RWMutex
	sources map[string]Source
}

// NewJobService creates a new JobService. The continuer is the same
// dispatcher the runner chains batches through; StartJob uses it to fan out
// the initial workers.
func NewJobService(
	store engine.Store,
	runner *engine.Runner,
	continuer engine.Continuer,
	initialWorkers int,
	logger *slog.Logger,
) (JobService, error) {
	if store == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "store cannot be nil"}
	}
	if runner == nil {
		return nil, &JobServiceError{Operation: "create_service", Message: "runner cannot be nil"}
	}
	if continuer == nil {
		continuer = engine.NoopContinuer{}
	}
	if initialWorkers < 1 {
		initialWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &jobServiceImpl{
		store:          store,
		runner:         runner,
		continuer:      continuer,
		initialWorkers: initialWorkers,
		logger:         logger.With("component", "job_service"),
		sources:        make(map[string]Source),
	}, nil
}

// RegisterSource binds a job kind to its item source. Registration happens
// once at wiring time; duplicate kinds are a programming error.
func (s *jobServiceImpl) RegisterSource(kind string, source Source) error {
	if kind == "" {
		return fmt.Errorf("kind cannot be empty")
	}
	if source == nil {
		return fmt.Errorf("source cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[kind]; exists {
		return fmt.Errorf("source already registered for kind %q", kind)
	}
	s.sources[kind] = source
	return nil
}

func (s *jobServiceImpl) source(kind string) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[kind]
	return src, ok
}

// Kinds returns the job kinds with a registered source, in no particular
// order.
func (s *jobServiceImpl) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]string, 0, len(s.sources))
	for kind := range s.sources {
		kinds = append(kinds, kind)
	}
	return kinds
}

func (s *jobServiceImpl) StartJob(ctx context.Context, kind string, limit int, filter json.RawMessage) (*domain.Job, error) {
	source, ok := s.source(kind)
	if !ok {
		return nil, ErrUnknownJobKind
	}

	payloads, err := source.Collect(ctx, limit, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "source collection failed",
			"kind", kind,
			"error", err)
		return nil, NewJobServiceError("start_job", "failed to collect work items", err)
	}
	if len(payloads) == 0 {
		return nil, ErrNoEligibleItems
	}

	job, err := domain.NewJob(kind, len(payloads))
	if err != nil {
		return nil, NewJobServiceError("start_job", "failed to create job", err)
	}

	if err := s.store.CreateJob(ctx, job, payloads); err != nil {
		return nil, NewJobServiceError("start_job", "failed to persist job", err)
	}

	if err := s.store.MarkJobRunning(ctx, job.ID); err != nil {
		return nil, NewJobServiceError("start_job", "failed to mark job running", err)
	}
	job.Status = domain.JobStatusRunning

	// Fan out the initial workers. Each continuation chains itself until the
	// job's tasks run dry, so W dispatches give W-way concurrency for the
	// whole run.
	workers := s.initialWorkers
	if workers > job.Total {
		workers = job.Total
	}
	for i := 0; i < workers; i++ {
		s.continuer.Continue(job.ID)
	}

	s.logger.InfoContext(ctx, "job started",
		"job_id", job.ID,
		"kind", kind,
		"total", job.Total,
		"workers", workers)
	return job, nil
}

func (s *jobServiceImpl) ProcessBatch(ctx context.Context, jobID uuid.UUID) (engine.BatchResult, error) {
	result, err := s.runner.ProcessBatch(ctx, jobID)
	if err != nil {
		return result, NewJobServiceError("process_batch", "batch processing failed", err)
	}
	return result, nil
}

func (s *jobServiceImpl) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, NewJobServiceError("get_job", "failed to get job", err)
	}
	return job, nil
}

func (s *jobServiceImpl) GetTraces(ctx context.Context, jobID uuid.UUID) ([]*domain.Task, error) {
	// Surface not-found explicitly: an empty trace list for a missing job
	// would read as a real, taskless job.
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, NewJobServiceError("get_traces", "failed to get job", err)
	}

	tasks, err := s.store.ListTasks(ctx, jobID)
	if err != nil {
		return nil, NewJobServiceError("get_traces", "failed to list tasks", err)
	}
	return tasks, nil
}

func (s *jobServiceImpl) CancelJob(ctx context.Context, jobID uuid.UUID) (int64, error) {
	cancelled, err := s.store.CancelJob(ctx, jobID)
	if err != nil {
		return 0, NewJobServiceError("cancel_job", "failed to cancel job", err)
	}

	s.logger.InfoContext(ctx, "job cancelled",
		"job_id", jobID,
		"tasks_cancelled", cancelled)
	return cancelled, nil
}

func (s *jobServiceImpl) ListJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	jobs, err := s.store.ListJobs(ctx, limit)
	if err != nil {
		return nil, NewJobServiceError("list_jobs", "failed to list jobs", err)
	}
	return jobs, nil
}
