package api

import (
	"encoding/json"
	"time"

	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/nvasquez/dirbatch-api/internal/engine"
)

// StartJobRequest is the request body for starting a batch job. The filter
// is passed through to the kind's item source verbatim; each kind documents
// its own filter shape.
type StartJobRequest struct {
	Kind   string          `json:"kind"  validate:"required,min=1"`
	Limit  int             `json:"limit" validate:"gte=0"`
	Filter json.RawMessage `json:"filter,omitempty"`
}

// JobResponse is the response body for a job's status and counters.
type JobResponse struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TaskTraceResponse is one per-item outcome in a job's trace listing.
type TaskTraceResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Verdict      string     `json:"verdict,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// BatchResponse reports the outcome of one synchronous worker-loop batch.
type BatchResponse struct {
	Done      bool `json:"done"`
	Claimed   int  `json:"claimed"`
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
}

// CancelResponse reports how many pending tasks a cancel swept up.
type CancelResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	TasksCancelled int64  `json:"tasks_cancelled"`
}

// jobToResponse converts a domain.Job to a JobResponse.
func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:         job.ID.String(),
		Kind:       job.Kind,
		Status:     string(job.Status),
		Total:      job.Total,
		Processed:  job.Processed,
		Succeeded:  job.Succeeded,
		Failed:     job.Failed,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
}

// taskToTrace converts a domain.Task to a TaskTraceResponse. Payloads stay
// server-side; traces expose outcomes only.
func taskToTrace(task *domain.Task) TaskTraceResponse {
	return TaskTraceResponse{
		ID:           task.ID.String(),
		Status:       string(task.Status),
		Verdict:      task.Verdict,
		Reason:       task.Reason,
		ErrorMessage: task.ErrorMessage,
		FinishedAt:   task.FinishedAt,
	}
}

// batchToResponse converts an engine.BatchResult to a BatchResponse.
func batchToResponse(result engine.BatchResult) BatchResponse {
	return BatchResponse{
		Done:      result.Done,
		Claimed:   result.Claimed,
		Processed: result.Processed,
		Succeeded: result.Succeeded,
	}
}
