package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Metric names recorded by the engine.
const (
	MetricTaskDuration  = "task_duration_ms"
	MetricTaskPages     = "task_pages"
	MetricJobDuration   = "job_duration_ms"
	MetricJobFiles      = "job_files"
	MetricQueueWaitTime = "queue_wait_ms"
)

// RecordMetric appends a metric sample.
func (s *Store) RecordMetric(ctx context.Context, sample *MetricSample) error {
	now := time.Now().UTC()
	sample.CreatedAt = now

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO metric_samples (job_id, task_id, name, value, unit, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		nullableString(sample.JobID),
		nullableString(sample.TaskID),
		sample.Name,
		sample.Value,
		nullableString(sample.Unit),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record metric: %w", err)
	}
	sample.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("metric sample id: %w", err)
	}
	return nil
}

// MetricSummary aggregates samples sharing a name over a window.
type MetricSummary struct {
	Name  string
	Count int
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
}

// SummarizeMetrics aggregates all samples recorded since the cutoff,
// grouped by name.
func (s *Store) SummarizeMetrics(ctx context.Context, since time.Time) ([]MetricSummary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, COUNT(1), SUM(value), MIN(value), MAX(value), AVG(value)
         FROM metric_samples WHERE created_at >= ? GROUP BY name ORDER BY name`,
		since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("summarize metrics: %w", err)
	}
	defer rows.Close()

	var summaries []MetricSummary
	for rows.Next() {
		var summary MetricSummary
		if err := rows.Scan(&summary.Name, &summary.Count, &summary.Sum, &summary.Min, &summary.Max, &summary.Avg); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// MetricsForJob returns every sample recorded for a job, oldest first.
func (s *Store) MetricsForJob(ctx context.Context, jobID string) ([]*MetricSample, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, task_id, name, value, unit, created_at
         FROM metric_samples WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("metrics for job: %w", err)
	}
	defer rows.Close()

	var samples []*MetricSample
	for rows.Next() {
		var (
			sample     MetricSample
			jobIDCol   sql.NullString
			taskIDCol  sql.NullString
			unitCol    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&sample.ID, &jobIDCol, &taskIDCol, &sample.Name, &sample.Value, &unitCol, &createdRaw); err != nil {
			return nil, err
		}
		sample.JobID = jobIDCol.String
		sample.TaskID = taskIDCol.String
		sample.Unit = unitCol.String
		if created, err := parseTimeString(createdRaw); err == nil {
			sample.CreatedAt = created
		}
		samples = append(samples, &sample)
	}
	return samples, rows.Err()
}
