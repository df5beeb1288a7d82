package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Audit event types recorded by the engine.
const (
	EventJobSubmitted   = "job_submitted"
	EventJobStarted     = "job_started"
	EventJobCompleted   = "job_completed"
	EventJobFailed      = "job_failed"
	EventJobCancelled   = "job_cancelled"
	EventCancelRequest  = "cancel_requested"
	EventTaskStarted    = "task_started"
	EventTaskCompleted  = "task_completed"
	EventTaskSkipped    = "task_skipped"
	EventTaskRetried    = "task_retried"
	EventTaskFailed     = "task_failed"
	EventFileArchived   = "file_archived"
	EventCleanupRun     = "cleanup_run"
	EventDaemonStarted  = "daemon_started"
	EventDaemonStopped  = "daemon_stopped"
)

// AppendAudit records an audit event. Audit rows are append-only.
func (s *Store) AppendAudit(ctx context.Context, event *AuditEvent) error {
	now := time.Now().UTC()
	event.CreatedAt = now

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO audit_events (job_id, task_id, event_type, detail, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		nullableString(event.JobID),
		nullableString(event.TaskID),
		event.EventType,
		nullableString(event.Detail),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	event.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit event id: %w", err)
	}
	return nil
}

// AuditForJob returns a job's audit trail in chronological order.
func (s *Store) AuditForJob(ctx context.Context, jobID string) ([]*AuditEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, task_id, event_type, detail, created_at
         FROM audit_events WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit for job: %w", err)
	}
	defer rows.Close()
	return collectAuditRows(rows)
}

// RecentAudit returns the newest audit events across all jobs, newest first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, task_id, event_type, detail, created_at
         FROM audit_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()
	return collectAuditRows(rows)
}

func collectAuditRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*AuditEvent, error) {
	var events []*AuditEvent
	for rows.Next() {
		var (
			event      AuditEvent
			jobID      sql.NullString
			taskID     sql.NullString
			detail     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&event.ID, &jobID, &taskID, &event.EventType, &detail, &createdRaw); err != nil {
			return nil, err
		}
		event.JobID = jobID.String
		event.TaskID = taskID.String
		event.Detail = detail.String
		if created, err := parseTimeString(createdRaw); err == nil {
			event.CreatedAt = created
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
