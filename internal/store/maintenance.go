package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case JobQueued:
			health.Queued += count
		case JobRunning, JobCancelling:
			health.Running += count
		case JobFailed:
			health.Failed += count
		case JobCompleted, JobCompletedWithErrors:
			health.Completed += count
		}
	}
	return health, nil
}

// CleanupResult reports what a retention sweep removed.
type CleanupResult struct {
	Jobs    int64
	Audit   int64
	Metrics int64
}

// Cleanup removes terminal jobs older than the retention window along
// with their tasks (via cascade), and prunes audit events and metric
// samples older than the cutoff. Active jobs are never touched.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (CleanupResult, error) {
	ctx = ensureContext(ctx)
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	var result CleanupResult

	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?, ?) AND updated_at < ?`,
		JobCompleted,
		JobCompletedWithErrors,
		JobFailed,
		JobCancelled,
		cutoff,
	)
	if err != nil {
		return result, fmt.Errorf("cleanup jobs: %w", err)
	}
	if result.Jobs, err = res.RowsAffected(); err != nil {
		return result, err
	}

	res, err = s.execWithRetry(ctx, `DELETE FROM audit_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return result, fmt.Errorf("cleanup audit events: %w", err)
	}
	if result.Audit, err = res.RowsAffected(); err != nil {
		return result, err
	}

	res, err = s.execWithRetry(ctx, `DELETE FROM metric_samples WHERE created_at < ?`, cutoff)
	if err != nil {
		return result, fmt.Errorf("cleanup metric samples: %w", err)
	}
	if result.Metrics, err = res.RowsAffected(); err != nil {
		return result, err
	}

	return result, nil
}

// CheckHealth returns diagnostic information about the job database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: "current",
	}

	if s.path == "" {
		return health, errors.New("job database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat job database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("job database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("job database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping job database: %w", err)
	}
	health.DatabaseReadable = true

	expected := []string{"jobs", "file_tasks", "audit_events", "metric_samples"}
	missing := make(map[string]struct{}, len(expected))
	for _, table := range expected {
		missing[table] = struct{}{}
	}

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		health.TablesPresent = append(health.TablesPresent, name)
		delete(missing, name)
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate table info: %w", err)
	}
	for table := range missing {
		health.MissingTables = append(health.MissingTables, table)
	}

	if len(health.MissingTables) == 0 {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs")
		if err := row.Scan(&health.TotalJobs); err != nil && !errors.Is(err, sql.ErrNoRows) {
			health.Error = err.Error()
			return health, fmt.Errorf("count jobs: %w", err)
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
