// Package notifications delivers job lifecycle events to external
// channels. Webhook and ntfy backends are supported; with neither
// configured a noop implementation is returned so callers never need
// nil checks.
package notifications
