package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a batch job
type JobStatus string

// Possible job status values
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusDone      JobStatus = "done"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
)

// Common validation errors for Job
var (
	ErrEmptyJobID           = errors.New("job ID cannot be empty")
	ErrEmptyJobKind         = errors.New("job kind cannot be empty")
	ErrNegativeJobTotal     = errors.New("job total cannot be negative")
	ErrInvalidJobStatus     = errors.New("invalid job status")
	ErrInvalidJobTransition = errors.New("invalid job status transition")
)

// Job represents one batch run over a set of work items.
// It owns aggregate truth: the fixed total and the monotonically
// advancing processed/succeeded/failed counters. Per-item truth
// lives on the Task rows.
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Kind       string     `json:"kind"`
	Status     JobStatus  `json:"status"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewJob creates a new Job of the given kind covering total work items.
// It generates a new UUID for the job ID, sets the status to pending,
// and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewJob(kind string, total int) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Kind:      kind,
		Status:    JobStatusPending,
		Total:     total,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.Kind == "" {
		return ErrEmptyJobKind
	}

	if j.Total < 0 {
		return ErrNegativeJobTotal
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	return nil
}

// IsTerminal reports whether the status is a final state.
// Terminal jobs are never resumed; FinishedAt is set exactly once,
// when a job reaches one of these states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusCancelled, JobStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition. Status never moves backward.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCancelled || next == JobStatusFailed
	case JobStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Transition moves the job to the given status, enforcing the forward-only
// rule and stamping FinishedAt when the new status is terminal.
// Returns ErrInvalidJobTransition if the move is not legal.
func (j *Job) Transition(next JobStatus) error {
	if !isValidJobStatus(next) {
		return ErrInvalidJobStatus
	}

	if !j.Status.CanTransitionTo(next) {
		return ErrInvalidJobTransition
	}

	now := time.Now().UTC()
	j.Status = next
	j.UpdatedAt = now
	if next.IsTerminal() && j.FinishedAt == nil {
		j.FinishedAt = &now
	}

	return nil
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusRunning, JobStatusDone,
		JobStatusCancelled, JobStatusFailed:
		return true
	default:
		return false
	}
}
