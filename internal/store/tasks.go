package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertTasks persists a batch of tasks for a job in a single
// transaction. Slice position becomes the task's sequence number, so
// dispatch order matches submission order regardless of identifier or
// timestamp ties.
func (s *Store) InsertTasks(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	now := time.Now().UTC()

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin task tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for i, task := range tasks {
			task.Seq = i
			task.CreatedAt = now
			task.UpdatedAt = now
			if task.Status == "" {
				task.Status = TaskPending
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO file_tasks (
                    id, job_id, seq, source_path, status, attempts, error_kind,
                    error_message, output_pdf, output_text, output_hocr,
                    pages, duration_ms, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				task.ID,
				task.JobID,
				task.Seq,
				task.SourcePath,
				task.Status,
				task.Attempts,
				nullableString(task.ErrorKind),
				nullableString(task.ErrorMessage),
				nullableString(task.OutputPDF),
				nullableString(task.OutputText),
				nullableString(task.OutputHOCR),
				task.Pages,
				task.DurationMS,
				now.Format(time.RFC3339Nano),
				now.Format(time.RFC3339Nano),
			); err != nil {
				return fmt.Errorf("insert task: %w", err)
			}
		}
		return tx.Commit()
	})
}

// UpsertTask inserts a task or, when a task with the same identifier
// already exists, overwrites its mutable fields. Applying the same
// task state twice leaves the stored row unchanged apart from
// updated_at.
func (s *Store) UpsertTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = TaskPending
	}

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO file_tasks (
            id, job_id, seq, source_path, status, attempts, error_kind,
            error_message, output_pdf, output_text, output_hocr,
            pages, duration_ms, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            seq = excluded.seq,
            source_path = excluded.source_path,
            status = excluded.status,
            attempts = excluded.attempts,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            output_pdf = excluded.output_pdf,
            output_text = excluded.output_text,
            output_hocr = excluded.output_hocr,
            pages = excluded.pages,
            duration_ms = excluded.duration_ms,
            updated_at = excluded.updated_at`,
		task.ID,
		task.JobID,
		task.Seq,
		task.SourcePath,
		task.Status,
		task.Attempts,
		nullableString(task.ErrorKind),
		nullableString(task.ErrorMessage),
		nullableString(task.OutputPDF),
		nullableString(task.OutputText),
		nullableString(task.OutputHOCR),
		task.Pages,
		task.DurationMS,
		task.CreatedAt.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()

	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE file_tasks
         SET status = ?, attempts = ?, error_kind = ?, error_message = ?,
             output_pdf = ?, output_text = ?, output_hocr = ?, pages = ?,
             duration_ms = ?, updated_at = ?
         WHERE id = ?`,
		task.Status,
		task.Attempts,
		nullableString(task.ErrorKind),
		nullableString(task.ErrorMessage),
		nullableString(task.OutputPDF),
		nullableString(task.OutputText),
		nullableString(task.OutputHOCR),
		task.Pages,
		task.DurationMS,
		task.UpdatedAt.Format(time.RFC3339Nano),
		task.ID,
	); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// GetTask fetches a task by identifier. Returns nil when no task matches.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM file_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// TasksForJob returns a job's tasks in submission order.
func (s *Store) TasksForJob(ctx context.Context, jobID string) ([]*Task, error) {
	return tasksForJob(ctx, s.db, jobID)
}

func tasksForJob(ctx context.Context, q querier, jobID string) ([]*Task, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM file_tasks WHERE job_id = ? ORDER BY seq, id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("tasks for job: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// PendingTasksForJob returns a job's unstarted tasks in submission order.
func (s *Store) PendingTasksForJob(ctx context.Context, jobID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM file_tasks WHERE job_id = ? AND status = ? ORDER BY seq, id`,
		jobID,
		TaskPending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending tasks for job: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// TaskCountsForJob aggregates a job's tasks by status.
func (s *Store) TaskCountsForJob(ctx context.Context, jobID string) (TaskCounts, error) {
	return taskCountsForJob(ctx, s.db, jobID)
}

func taskCountsForJob(ctx context.Context, q querier, jobID string) (TaskCounts, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM file_tasks WHERE job_id = ? GROUP BY status`,
		jobID,
	)
	if err != nil {
		return TaskCounts{}, fmt.Errorf("task counts: %w", err)
	}
	defer rows.Close()

	var counts TaskCounts
	for rows.Next() {
		var status TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return TaskCounts{}, err
		}
		counts.Total += count
		switch status {
		case TaskPending:
			counts.Pending = count
		case TaskProcessing:
			counts.Processing = count
		case TaskCompleted:
			counts.Completed = count
		case TaskFailed:
			counts.Failed = count
		case TaskSkipped:
			counts.Skipped = count
		}
	}
	return counts, rows.Err()
}

// ReclaimProcessingTasks resets tasks stranded in the processing state
// back to pending. Used on daemon startup after an unclean shutdown.
// Returns the number of tasks reclaimed.
func (s *Store) ReclaimProcessingTasks(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE file_tasks SET status = ?, updated_at = ? WHERE status = ?`,
		TaskPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		TaskProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim processing tasks: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimRunningJobs requeues jobs stranded in running or cancelling
// state after an unclean shutdown. Cancelling jobs are finalized as
// cancelled. Returns the number of jobs touched.
func (s *Store) ReclaimRunningJobs(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		JobQueued,
		now,
		JobRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim running jobs: %w", err)
	}
	requeued, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, updated_at = ? WHERE status = ?`,
		JobCancelled,
		now,
		now,
		JobCancelling,
	)
	if err != nil {
		return requeued, fmt.Errorf("finalize cancelling jobs: %w", err)
	}
	cancelled, err := res.RowsAffected()
	if err != nil {
		return requeued, err
	}
	return requeued + cancelled, nil
}
