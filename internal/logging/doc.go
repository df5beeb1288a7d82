// Package logging builds slog loggers with docket's console and JSON
// handlers and provides the shared attribute helpers used across the
// daemon and CLI.
package logging
