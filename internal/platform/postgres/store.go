package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nvasquez/dirbatch-api/internal/domain"
	"github.com/nvasquez/dirbatch-api/internal/engine"
	"github.com/nvasquez/dirbatch-api/internal/platform/logger"
	"github.com/nvasquez/dirbatch-api/internal/store"
)

// Store implements the engine.Store interface using PostgreSQL.
//
// The claim and reaper operations are single atomic statements; the
// cross-table operations (job creation with its task snapshot, task
// completion with counter increments, the finish check) run inside a
// transaction so readers never observe a job/task mismatch.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store over the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db: db,
	}
}

const jobColumns = `id, kind, status, total, processed, succeeded, failed,
	started_at, finished_at, created_at, updated_at`

const taskColumns = `id, job_id, payload, status, verdict, reason, error_message,
	created_at, updated_at, finished_at`

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// CreateJob persists a new job together with one pending task per payload,
// in a single transaction: either the whole snapshot exists or none of it.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job, payloads []json.RawMessage) error {
	log := logger.FromContext(ctx)

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		jobQuery := `
			INSERT INTO jobs (id, kind, status, total, processed, succeeded, failed,
				started_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err := tx.ExecContext(ctx, jobQuery,
			job.ID,
			job.Kind,
			job.Status,
			job.Total,
			job.Processed,
			job.Succeeded,
			job.Failed,
			job.StartedAt,
			job.CreatedAt,
			job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert job: %w", err)
		}

		taskQuery := `
			INSERT INTO job_tasks (id, job_id, payload, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		stmt, err := tx.PrepareContext(ctx, taskQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare task insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, payload := range payloads {
			task, err := domain.NewTask(job.ID, payload)
			if err != nil {
				return fmt.Errorf("failed to build task: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				task.ID,
				task.JobID,
				[]byte(task.Payload),
				task.Status,
				task.CreatedAt,
				task.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert task: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		log.Error("failed to create job with tasks",
			"job_id", job.ID,
			"kind", job.Kind,
			"total", job.Total,
			"error", err)
		return err
	}
	return nil
}

// MarkJobRunning moves a pending job to running. Already-running jobs are
// left untouched.
func (s *Store) MarkJobRunning(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	_, err := s.db.ExecContext(ctx, query,
		domain.JobStatusRunning,
		time.Now().UTC(),
		jobID,
		domain.JobStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return nil
}

// FinishJobIfComplete marks a running job done iff no pending or in-progress
// tasks remain. The job row is locked while the remainder is counted, so the
// check cannot interleave with a concurrent claim or reaper sweep.
func (s *Store) FinishJobIfComplete(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var done bool

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var status domain.JobStatus
		row := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID)
		if err := row.Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrJobNotFound
			}
			return fmt.Errorf("failed to lock job row: %w", err)
		}

		if status.IsTerminal() {
			done = true
			return nil
		}
		if status != domain.JobStatusRunning {
			// A pending job has not started; done is a transition out of
			// running only.
			return nil
		}

		var remaining int
		countQuery := `
			SELECT count(*) FROM job_tasks
			WHERE job_id = $1 AND status IN ($2, $3)
		`
		row = tx.QueryRowContext(ctx, countQuery,
			jobID, domain.TaskStatusPending, domain.TaskStatusInProgress)
		if err := row.Scan(&remaining); err != nil {
			return fmt.Errorf("failed to count remaining tasks: %w", err)
		}
		if remaining > 0 {
			return nil
		}

		now := time.Now().UTC()
		finishQuery := `
			UPDATE jobs
			SET status = $1, finished_at = $2, updated_at = $2
			WHERE id = $3 AND status = $4
		`
		if _, err := tx.ExecContext(ctx, finishQuery, domain.JobStatusDone, now, jobID, domain.JobStatusRunning); err != nil {
			return fmt.Errorf("failed to mark job done: %w", err)
		}
		done = true
		return nil
	})

	return done, err
}

// CancelJob flips the job to cancelled and every still-pending task to
// cancelled. Tasks already in progress are left for their worker to finish
// or for the reaper to reclaim.
func (s *Store) CancelJob(ctx context.Context, jobID uuid.UUID) (int64, error) {
	var cancelled int64

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now().UTC()
		jobQuery := `
			UPDATE jobs
			SET status = $1, finished_at = $2, updated_at = $2
			WHERE id = $3 AND status IN ($4, $5)
		`
		result, err := tx.ExecContext(ctx, jobQuery,
			domain.JobStatusCancelled,
			now,
			jobID,
			domain.JobStatusPending,
			domain.JobStatusRunning,
		)
		if err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			row := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, jobID)
			if err := row.Scan(&exists); err != nil {
				return fmt.Errorf("failed to check job existence: %w", err)
			}
			if !exists {
				return store.ErrJobNotFound
			}
			return store.ErrJobFinished
		}

		taskQuery := `
			UPDATE job_tasks
			SET status = $1, finished_at = $2, updated_at = $2
			WHERE job_id = $3 AND status = $4
		`
		result, err = tx.ExecContext(ctx, taskQuery,
			domain.TaskStatusCancelled,
			now,
			jobID,
			domain.TaskStatusPending,
		)
		if err != nil {
			return fmt.Errorf("failed to cancel pending tasks: %w", err)
		}
		cancelled, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})

	return cancelled, err
}

// ClaimTasks atomically takes up to limit pending tasks of the job, marks
// them in_progress with a fresh updated_at, and returns them. SKIP LOCKED
// keeps concurrent claimers from ever receiving the same row.
func (s *Store) ClaimTasks(ctx context.Context, jobID uuid.UUID, limit int) ([]*domain.Task, error) {
	query := `
		UPDATE job_tasks
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM job_tasks
			WHERE job_id = $3 AND status = $4
			ORDER BY created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := s.db.QueryContext(ctx, query,
		domain.TaskStatusInProgress,
		time.Now().UTC(),
		jobID,
		domain.TaskStatusPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ResetStuckTasks returns in-progress tasks whose claim went stale back to
// pending. This is the reaper: the only recovery path for work stranded by
// a crashed invocation.
func (s *Store) ResetStuckTasks(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE job_tasks
		SET status = $1, updated_at = $2
		WHERE job_id = $3 AND status = $4 AND updated_at < $5
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusPending,
		time.Now().UTC(),
		jobID,
		domain.TaskStatusInProgress,
		time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck tasks: %w", err)
	}

	reset, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return reset, nil
}

// CancelStuckTasks marks in-progress tasks whose claim went stale as
// cancelled. Used on terminal jobs, where a reclaim to pending would leave
// the task stranded: nothing claims from a finished job.
func (s *Store) CancelStuckTasks(ctx context.Context, jobID uuid.UUID, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	query := `
		UPDATE job_tasks
		SET status = $1, finished_at = $2, updated_at = $2
		WHERE job_id = $3 AND status = $4 AND updated_at < $5
	`
	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusCancelled,
		now,
		jobID,
		domain.TaskStatusInProgress,
		now.Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel stuck tasks: %w", err)
	}

	cancelled, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return cancelled, nil
}

// CompleteTask writes the task's terminal outcome and increments the job's
// counters in one transaction. The task update is guarded on the current
// in_progress status: if the reaper reassigned the task and another
// invocation finished it first, this write is a no-op and the counters are
// left alone, which is what keeps processed from ever exceeding total.
func (s *Store) CompleteTask(ctx context.Context, jobID, taskID uuid.UUID, outcome engine.TaskOutcome) error {
	log := logger.FromContext(ctx)

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now().UTC()
		taskQuery := `
			UPDATE job_tasks
			SET status = $1, verdict = $2, reason = $3, error_message = $4,
				updated_at = $5, finished_at = $5
			WHERE id = $6 AND status = $7
		`
		result, err := tx.ExecContext(ctx, taskQuery,
			domain.TaskStatusDone,
			outcome.Verdict,
			outcome.Reason,
			outcome.ErrorMessage,
			now,
			taskID,
			domain.TaskStatusInProgress,
		)
		if err != nil {
			return fmt.Errorf("failed to update task outcome: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			// Lost the race to a reassigned claim; the other invocation's
			// write already carried the counters.
			log.Warn("task no longer in progress, skipping outcome write",
				"task_id", taskID,
				"job_id", jobID)
			return nil
		}

		jobQuery := `
			UPDATE jobs
			SET processed = processed + 1,
				succeeded = succeeded + CASE WHEN $1 THEN 1 ELSE 0 END,
				failed = failed + CASE WHEN $1 THEN 0 ELSE 1 END,
				updated_at = $2
			WHERE id = $3
		`
		if _, err := tx.ExecContext(ctx, jobQuery, outcome.Succeeded, now, jobID); err != nil {
			return fmt.Errorf("failed to increment job counters: %w", err)
		}
		return nil
	})
}

// CancelTask marks a claimed-but-unprocessed task cancelled without touching
// the job counters.
func (s *Store) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	now := time.Now().UTC()
	query := `
		UPDATE job_tasks
		SET status = $1, finished_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	_, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusCancelled,
		now,
		taskID,
		domain.TaskStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	return nil
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

// ListTasks returns all tasks of a job in creation order.
func (s *Store) ListTasks(ctx context.Context, jobID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM job_tasks WHERE job_id = $1 ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var finishedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&job.Total,
		&job.Processed,
		&job.Succeeded,
		&job.Failed,
		&job.StartedAt,
		&finishedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		var task domain.Task
		var payload []byte
		var verdict, reason, errorMessage sql.NullString
		var finishedAt sql.NullTime

		err := rows.Scan(
			&task.ID,
			&task.JobID,
			&payload,
			&task.Status,
			&verdict,
			&reason,
			&errorMessage,
			&task.CreatedAt,
			&task.UpdatedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		task.Payload = payload
		task.Verdict = verdict.String
		task.Reason = reason.String
		task.ErrorMessage = errorMessage.String
		if finishedAt.Valid {
			t := finishedAt.Time
			task.FinishedAt = &t
		}
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// Compile-time check that Store satisfies engine.Store.
var _ engine.Store = (*Store)(nil)
