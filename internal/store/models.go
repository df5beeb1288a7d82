package store

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a submitted job.
type JobStatus string

const (
	JobQueued              JobStatus = "queued"
	JobRunning             JobStatus = "running"
	JobCancelling          JobStatus = "cancelling"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
	JobCancelled           JobStatus = "cancelled"
)

var allJobStatuses = []JobStatus{
	JobQueued,
	JobRunning,
	JobCancelling,
	JobCompleted,
	JobCompletedWithErrors,
	JobFailed,
	JobCancelled,
}

// AllJobStatuses returns the ordered list of known job statuses.
func AllJobStatuses() []JobStatus {
	cp := make([]JobStatus, len(allJobStatuses))
	copy(cp, allJobStatuses)
	return cp
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allJobStatuses {
		if normalized == status {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCompletedWithErrors, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Active reports whether the job still has work in flight or pending.
func (s JobStatus) Active() bool {
	switch s {
	case JobQueued, JobRunning, JobCancelling:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle of a single file within a job.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

var allTaskStatuses = []TaskStatus{
	TaskPending,
	TaskProcessing,
	TaskCompleted,
	TaskFailed,
	TaskSkipped,
}

// ParseTaskStatus converts a string into a known TaskStatus.
func ParseTaskStatus(value string) (TaskStatus, bool) {
	normalized := TaskStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allTaskStatuses {
		if normalized == status {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether the task has reached a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

// Job represents a submitted batch of files persisted in SQLite.
type Job struct {
	ID           string
	SourcePath   string
	Mode         string
	Languages    []string
	Status       JobStatus
	OutputDir    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Task represents one file within a job. Seq is the file's position in
// the submission; workers attempt tasks in ascending Seq order.
type Task struct {
	ID           string
	JobID        string
	Seq          int
	SourcePath   string
	Status       TaskStatus
	Attempts     int
	ErrorKind    string
	ErrorMessage string
	OutputPDF    string
	OutputText   string
	OutputHOCR   string
	Pages        int
	DurationMS   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuditEvent is an append-only record of something that happened to a
// job or task.
type AuditEvent struct {
	ID        int64
	JobID     string
	TaskID    string
	EventType string
	Detail    string
	CreatedAt time.Time
}

// MetricSample is a single named measurement.
type MetricSample struct {
	ID        int64
	JobID     string
	TaskID    string
	Name      string
	Value     float64
	Unit      string
	CreatedAt time.Time
}

// TaskCounts aggregates a job's tasks by status.
type TaskCounts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Skipped    int
}

// Done returns how many tasks have reached a terminal state.
func (c TaskCounts) Done() int {
	return c.Completed + c.Failed + c.Skipped
}

// Progress returns the fraction of tasks finished, in [0, 1].
func (c TaskCounts) Progress() float64 {
	if c.Total == 0 {
		return 1
	}
	return float64(c.Done()) / float64(c.Total)
}

// Snapshot combines a job with its aggregated task state.
type Snapshot struct {
	Job    *Job
	Counts TaskCounts
	Tasks  []*Task
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Queued    int
	Running   int
	Failed    int
	Completed int
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
