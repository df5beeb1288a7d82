package api

// JobView is the transport representation of a job.
type JobView struct {
	ID         string   `json:"id"`
	SourcePath string   `json:"sourcePath"`
	Mode       string   `json:"mode"`
	Languages  []string `json:"languages"`
	Status     string   `json:"status"`
	OutputDir  string   `json:"outputDir,omitempty"`
	Error      string   `json:"error,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt"`
	StartedAt  string   `json:"startedAt,omitempty"`
	FinishedAt string   `json:"finishedAt,omitempty"`
}

// TaskView is the transport representation of a single file task.
type TaskView struct {
	ID         string `json:"id"`
	SourcePath string `json:"sourcePath"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	ErrorKind  string `json:"errorKind,omitempty"`
	Error      string `json:"error,omitempty"`
	OutputPDF  string `json:"outputPdf,omitempty"`
	OutputText string `json:"outputText,omitempty"`
	OutputHOCR string `json:"outputHocr,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	DurationMS int64  `json:"durationMs,omitempty"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// TaskCountsView aggregates a job's tasks by status for display.
type TaskCountsView struct {
	Total      int     `json:"total"`
	Pending    int     `json:"pending"`
	Processing int     `json:"processing"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Progress   float64 `json:"progress"`
}

// SnapshotView combines a job with its tasks and progress counts.
type SnapshotView struct {
	Job    JobView        `json:"job"`
	Counts TaskCountsView `json:"counts"`
	Tasks  []TaskView     `json:"tasks"`
}

// AuditEventView is one entry of a job's audit trail.
type AuditEventView struct {
	ID        int64  `json:"id"`
	JobID     string `json:"jobId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	EventType string `json:"eventType"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// MetricSummaryView aggregates metric samples sharing a name.
type MetricSummaryView struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// JobStatsView aggregates job counts per lifecycle state.
type JobStatsView struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

// SubmitPayload is the request body for job submission.
type SubmitPayload struct {
	Path      string   `json:"path"`
	Mode      string   `json:"mode,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Recursive bool     `json:"recursive,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// SnapshotResponse wraps a job snapshot.
type SnapshotResponse struct {
	Snapshot SnapshotView `json:"snapshot"`
}

// HistoryResponse wraps a job's audit trail.
type HistoryResponse struct {
	Events []AuditEventView `json:"events"`
}

// StatusResponse reports daemon runtime state.
type StatusResponse struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	DatabasePath string       `json:"databasePath"`
	LockFilePath string       `json:"lockFilePath"`
	Workers      int          `json:"workers"`
	Jobs         JobStatsView `json:"jobs"`
}

// HealthResponse reports database health for monitoring probes.
type HealthResponse struct {
	Status         string   `json:"status"`
	DatabaseExists bool     `json:"databaseExists"`
	IntegrityCheck bool     `json:"integrityCheck"`
	MissingTables  []string `json:"missingTables,omitempty"`
	TotalJobs      int      `json:"totalJobs"`
	Error          string   `json:"error,omitempty"`
}

// MetricsResponse wraps aggregated metrics over a window.
type MetricsResponse struct {
	Since   string              `json:"since"`
	Metrics []MetricSummaryView `json:"metrics"`
}
