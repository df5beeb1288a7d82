// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal store models into transport-friendly DTOs
// so consumers never couple to internal types.
//
// DTOs use camelCase JSON tags. Internal enums (store.JobStatus,
// store.TaskStatus) are exposed as lowercase strings. Timestamps use
// RFC3339 with milliseconds; optional timestamps are omitted when unset.
package api
