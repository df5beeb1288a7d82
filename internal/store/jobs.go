package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docket/internal/language"
)

// InsertJob persists a new job record.
func (s *Store) InsertJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobQueued
	}

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO jobs (
            id, source_path, mode, languages, status, output_dir,
            error_message, created_at, updated_at, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.SourcePath,
		job.Mode,
		language.JoinSet(job.Languages),
		job.Status,
		nullableString(job.OutputDir),
		nullableString(job.ErrorMessage),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpsertJob inserts a job or, when a job with the same identifier
// already exists, overwrites its mutable fields. Applying the same job
// state twice leaves the stored row unchanged apart from updated_at.
func (s *Store) UpsertJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobQueued
	}

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO jobs (
            id, source_path, mode, languages, status, output_dir,
            error_message, created_at, updated_at, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            source_path = excluded.source_path,
            mode = excluded.mode,
            languages = excluded.languages,
            status = excluded.status,
            output_dir = excluded.output_dir,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at`,
		job.ID,
		job.SourcePath,
		job.Mode,
		language.JoinSet(job.Languages),
		job.Status,
		nullableString(job.OutputDir),
		nullableString(job.ErrorMessage),
		job.CreatedAt.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
	); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET source_path = ?, mode = ?, languages = ?, status = ?,
             output_dir = ?, error_message = ?, updated_at = ?,
             started_at = ?, finished_at = ?
         WHERE id = ?`,
		job.SourcePath,
		job.Mode,
		language.JoinSet(job.Languages),
		job.Status,
		nullableString(job.OutputDir),
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		job.ID,
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// GetJob fetches a job by identifier. Returns nil when no job matches.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	return getJob(ctx, s.db, id)
}

func getJob(ctx context.Context, q querier, id string) (*Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no
// status is provided), oldest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ActiveJobs returns jobs that still have work pending or in flight.
func (s *Store) ActiveJobs(ctx context.Context) ([]*Job, error) {
	return s.ListJobs(ctx, JobQueued, JobRunning, JobCancelling)
}

// NextQueuedJob returns the oldest queued job, or nil when the queue is empty.
func (s *Store) NextQueuedJob(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1`,
		JobQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

// SetJobStatus updates only the status and error message of a job.
func (s *Store) SetJobStatus(ctx context.Context, id string, status JobStatus, errorMessage string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status,
		nullableString(errorMessage),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// JobSnapshot loads a job together with its tasks and aggregated counts
// inside a single read transaction, so the job row and its tasks are
// never torn against each other. Returns nil when no job matches.
func (s *Store) JobSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := getJob(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	tasks, err := tasksForJob(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	counts, err := taskCountsForJob(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Job: job, Counts: counts, Tasks: tasks}, nil
}

// RemoveJob deletes a job and, via cascade, its tasks.
func (s *Store) RemoveJob(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
