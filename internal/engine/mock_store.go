package engine

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/nvasquez/dirbatch-api/internal/store"
)

// MockStore is an in-memory Store used by tests. Behavior methods can be
// overridden per test via the *Fn fields; unset fields fall back to a
// semantically faithful in-memory implementation (atomic claim, counter
// increments, read-consistent finish check) guarded by one mutex.
type MockStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*domain.Job
	tasks map[uuid.UUID]*domain.Task

	GetJobFn              func(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
	CreateJobFn           func(ctx context.Context, job *domain.Job, payloads []json.RawMessage) error
	MarkJobRunningFn      func(ctx context.Context, jobID uuid.UUID) error
	FinishJobIfCompleteFn func(ctx context.Context, jobID uuid.UUID) (bool, error)
	CancelJobFn           func(ctx context.Context, jobID uuid.UUID) (int64, error)
	ClaimTasksFn          func(ctx context.Context, jobID uuid.UUID, limit int) ([]*domain.Task, error)
	ResetStuckTasksFn     func(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) (int64, error)
	CancelStuckTasksFn    func(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) (int64, error)
	CompleteTaskFn        func(ctx context.Context, jobID, taskID uuid.UUID, outcome TaskOutcome) error
	CancelTaskFn          func(ctx context.Context, taskID uuid.UUID) error
	ListJobsFn            func(ctx context.Context, limit int) ([]*domain.Job, error)
	ListTasksFn           func(ctx context.Context, jobID uuid.UUID) ([]*domain.Task, error)
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		jobs:  make(map[uuid.UUID]*domain.Job),
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// GetJob implements Store.
func (s *MockStore) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	if s.GetJobFn != nil {
		return s.GetJobFn(ctx, jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// CreateJob implements Store.
func (s *MockStore) CreateJob(ctx context.Context, job *domain.Job, payloads []json.RawMessage) error {
	if s.CreateJobFn != nil {
		return s.CreateJobFn(ctx, job, payloads)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *job
	s.jobs[job.ID] = &copied

	for _, payload := range payloads {
		task, err := domain.NewTask(job.ID, payload)
		if err != nil {
			return err
		}
		s.tasks[task.ID] = task
	}
	return nil
}

// MarkJobRunning implements Store.
func (s *MockStore) MarkJobRunning(ctx context.Context, jobID uuid.UUID) error {
	if s.MarkJobRunningFn != nil {
		return s.MarkJobRunningFn(ctx, jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return nil
	}
	return job.Transition(domain.JobStatusRunning)
}

// FinishJobIfComplete implements Store.
func (s *MockStore) FinishJobIfComplete(ctx context.Context, jobID uuid.UUID) (bool, error) {
	if s.FinishJobIfCompleteFn != nil {
		return s.FinishJobIfCompleteFn(ctx, jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, store.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return true, nil
	}

	for _, task := range s.tasks {
		if task.JobID == jobID && !task.Status.IsTerminal() {
			return false, nil
		}
	}

	if job.Status == domain.JobStatusPending {
		if err := job.Transition(domain.JobStatusRunning); err != nil {
			return false, err
		}
	}
	if err := job.Transition(domain.JobStatusDone); err != nil {
		return false, err
	}
	return true, nil
}

// CancelJob implements Store.
func (s *MockStore) CancelJob(ctx context.Context, jobID uuid.UUID) (int64, error) {
	if s.CancelJobFn != nil {
		return s.CancelJobFn(ctx, jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return 0, store.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return 0, store.ErrJobFinished
	}
	if err := job.Transition(domain.JobStatusCancelled); err != nil {
		return 0, err
	}

	var cancelled int64
	now := time.Now().UTC()
	for _, task := range s.tasks {
		if task.JobID == jobID && task.Status == domain.TaskStatusPending {
			task.Status = domain.TaskStatusCancelled
			task.UpdatedAt = now
			task.FinishedAt = &now
			cancelled++
		}
	}
	return cancelled, nil
}

// ClaimTasks implements Store.
func (s *MockStore) ClaimTasks(ctx context.Context, jobID uuid.UUID, limit int) ([]*domain.Task, error) {
	if s.ClaimTasksFn != nil {
		return s.ClaimTasksFn(ctx, jobID, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.tasksByStatusLocked(jobID, domain.TaskStatusPending)
	if len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	claimed := make([]*domain.Task, 0, len(pending))
	for _, task := range pending {
		task.Status = domain.TaskStatusInProgress
		task.UpdatedAt = now
		copied := *task
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

// ResetStuckTasks implements Store.
func (s *MockStore) ResetStuckTasks(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) (int64, error) {
	if s.ResetStuckTasksFn != nil {
		return s.ResetStuckTasksFn(ctx, jobID, olderThan)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var reset int64
	for _, task := range s.tasks {
		if task.JobID == jobID && task.Status == domain.TaskStatusInProgress && task.UpdatedAt.Before(cutoff) {
			task.Status = domain.TaskStatusPending
			task.UpdatedAt = time.Now().UTC()
			reset++
		}
	}
	return reset, nil
}

// CancelStuckTasks implements Store.
func (s *MockStore) CancelStuckTasks(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) (int64, error) {
	if s.CancelStuckTasksFn != nil {
		return s.CancelStuckTasksFn(ctx, jobID, olderThan)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)
	var cancelled int64
	for _, task := range s.tasks {
		if task.JobID == jobID && task.Status == domain.TaskStatusInProgress && task.UpdatedAt.Before(cutoff) {
			task.Status = domain.TaskStatusCancelled
			task.UpdatedAt = now
			finished := now
			task.FinishedAt = &finished
			cancelled++
		}
	}
	return cancelled, nil
}

// CompleteTask implements Store.
func (s *MockStore) CompleteTask(ctx context.Context, jobID, taskID uuid.UUID, outcome TaskOutcome) error {
	if s.CompleteTaskFn != nil {
		return s.CompleteTaskFn(ctx, jobID, taskID, outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusDone
	task.Verdict = outcome.Verdict
	task.Reason = outcome.Reason
	task.ErrorMessage = outcome.ErrorMessage
	task.UpdatedAt = now
	task.FinishedAt = &now

	job.Processed++
	if outcome.Succeeded {
		job.Succeeded++
	} else {
		job.Failed++
	}
	job.UpdatedAt = now
	return nil
}

// CancelTask implements Store.
func (s *MockStore) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	if s.CancelTaskFn != nil {
		return s.CancelTaskFn(ctx, taskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	now := time.Now().UTC()
	task.Status = domain.TaskStatusCancelled
	task.UpdatedAt = now
	task.FinishedAt = &now
	return nil
}

// ListJobs implements Store.
func (s *MockStore) ListJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	if s.ListJobsFn != nil {
		return s.ListJobsFn(ctx, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// ListTasks implements Store.
func (s *MockStore) ListTasks(ctx context.Context, jobID uuid.UUID) ([]*domain.Task, error) {
	if s.ListTasksFn != nil {
		return s.ListTasksFn(ctx, jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*domain.Task, 0)
	for _, task := range s.tasks {
		if task.JobID == jobID {
			copied := *task
			tasks = append(tasks, &copied)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

// BackdateTask rewinds a task's updated_at, simulating a claim abandoned by
// a crashed invocation. Test helper only.
func (s *MockStore) BackdateTask(taskID uuid.UUID, age time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[taskID]; ok {
		task.UpdatedAt = time.Now().UTC().Add(-age)
	}
}

// TaskByID returns a copy of the task. Test helper only.
func (s *MockStore) TaskByID(taskID uuid.UUID) (*domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	copied := *task
	return &copied, true
}

// tasksByStatusLocked returns the job's tasks with the given status in
// creation order. Caller holds the mutex.
func (s *MockStore) tasksByStatusLocked(jobID uuid.UUID, status domain.TaskStatus) []*domain.Task {
	tasks := make([]*domain.Task, 0)
	for _, task := range s.tasks {
		if task.JobID == jobID && task.Status == status {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks
}

// Compile-time check that MockStore satisfies Store.
var _ Store = (*MockStore)(nil)
