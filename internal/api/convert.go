package api

import (
	"time"

	"docket/internal/store"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FromJob converts a stored job into its transport form.
func FromJob(job *store.Job) JobView {
	if job == nil {
		return JobView{}
	}
	return JobView{
		ID:         job.ID,
		SourcePath: job.SourcePath,
		Mode:       job.Mode,
		Languages:  job.Languages,
		Status:     string(job.Status),
		OutputDir:  job.OutputDir,
		Error:      job.ErrorMessage,
		CreatedAt:  formatTime(job.CreatedAt),
		UpdatedAt:  formatTime(job.UpdatedAt),
		StartedAt:  formatTimePtr(job.StartedAt),
		FinishedAt: formatTimePtr(job.FinishedAt),
	}
}

// FromJobs converts a job slice, preserving order.
func FromJobs(jobs []*store.Job) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, FromJob(job))
	}
	return views
}

// FromTask converts a stored task into its transport form.
func FromTask(task *store.Task) TaskView {
	if task == nil {
		return TaskView{}
	}
	return TaskView{
		ID:         task.ID,
		SourcePath: task.SourcePath,
		Status:     string(task.Status),
		Attempts:   task.Attempts,
		ErrorKind:  task.ErrorKind,
		Error:      task.ErrorMessage,
		OutputPDF:  task.OutputPDF,
		OutputText: task.OutputText,
		OutputHOCR: task.OutputHOCR,
		Pages:      task.Pages,
		DurationMS: task.DurationMS,
		CreatedAt:  formatTime(task.CreatedAt),
		UpdatedAt:  formatTime(task.UpdatedAt),
	}
}

// FromCounts converts task counts, attaching derived progress.
func FromCounts(counts store.TaskCounts) TaskCountsView {
	return TaskCountsView{
		Total:      counts.Total,
		Pending:    counts.Pending,
		Processing: counts.Processing,
		Completed:  counts.Completed,
		Failed:     counts.Failed,
		Skipped:    counts.Skipped,
		Progress:   counts.Progress(),
	}
}

// FromSnapshot converts a job snapshot into its transport form.
func FromSnapshot(snapshot *store.Snapshot) SnapshotView {
	if snapshot == nil {
		return SnapshotView{}
	}
	tasks := make([]TaskView, 0, len(snapshot.Tasks))
	for _, task := range snapshot.Tasks {
		tasks = append(tasks, FromTask(task))
	}
	return SnapshotView{
		Job:    FromJob(snapshot.Job),
		Counts: FromCounts(snapshot.Counts),
		Tasks:  tasks,
	}
}

// FromAuditEvents converts an audit trail, preserving order.
func FromAuditEvents(events []*store.AuditEvent) []AuditEventView {
	views := make([]AuditEventView, 0, len(events))
	for _, event := range events {
		views = append(views, AuditEventView{
			ID:        event.ID,
			JobID:     event.JobID,
			TaskID:    event.TaskID,
			EventType: event.EventType,
			Detail:    event.Detail,
			CreatedAt: formatTime(event.CreatedAt),
		})
	}
	return views
}

// FromMetricSummaries converts aggregated metrics, preserving order.
func FromMetricSummaries(summaries []store.MetricSummary) []MetricSummaryView {
	views := make([]MetricSummaryView, 0, len(summaries))
	for _, summary := range summaries {
		views = append(views, MetricSummaryView{
			Name:  summary.Name,
			Count: summary.Count,
			Sum:   summary.Sum,
			Min:   summary.Min,
			Max:   summary.Max,
			Avg:   summary.Avg,
		})
	}
	return views
}

// FromHealthSummary converts aggregated job counts.
func FromHealthSummary(health store.HealthSummary) JobStatsView {
	return JobStatsView{
		Total:     health.Total,
		Queued:    health.Queued,
		Running:   health.Running,
		Failed:    health.Failed,
		Completed: health.Completed,
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timestampLayout)
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return formatTime(*value)
}
