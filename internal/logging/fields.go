package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldTaskID    = "task_id"
	FieldEventType = "event_type"
	FieldErrorKind = "error_kind"
	FieldAttempt   = "attempt"
	FieldMode      = "mode"
	FieldSource    = "source"
)
