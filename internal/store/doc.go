// Package store persists jobs, file tasks, audit events, and metric
// samples in SQLite. All writes retry on SQLITE_BUSY and all timestamps
// are stored as UTC RFC 3339 strings.
package store
