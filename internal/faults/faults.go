// Package faults defines docket's error taxonomy and the pure retry
// classification used by the worker pool.
package faults

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind labels a classified failure.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindEngineTransient Kind = "engine_transient"
	KindEngineTerminal  Kind = "engine_terminal"
	KindTimeout         Kind = "timeout"
	KindNotFound        Kind = "not_found"
	KindPersistence     Kind = "persistence"
	KindUnknown         Kind = "unknown"
)

// Sentinel markers wrapped into errors for later classification.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEngineTransient = errors.New("transient engine failure")
	ErrEngineTerminal  = errors.New("terminal engine failure")
	ErrTimeout         = errors.New("timeout")
	ErrNotFound        = errors.New("not found")
	ErrPersistence     = errors.New("persistence failure")
)

// DefaultMaxAttempts bounds retries for retryable task failures.
const DefaultMaxAttempts = 3

// Wrap builds an error message that includes component context while tagging
// it with the provided marker. The marker should be one of the exported
// sentinel errors above; a nil marker defaults to ErrEngineTransient.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrEngineTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error to its classified kind. Total over the taxonomy:
// every error maps to exactly one kind, with KindUnknown as the fallback
// for untagged errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrEngineTerminal):
		return KindEngineTerminal
	case errors.Is(err, ErrEngineTransient):
		return KindEngineTransient
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindUnknown
	}
}

// Retryable reports whether a task attempt that failed with err may be
// re-attempted. Only transient engine failures and timeouts qualify;
// unknown errors are treated as transient so a misbehaving adapter cannot
// silently turn recoverable faults into terminal ones.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindEngineTransient, KindTimeout, KindUnknown:
		return err != nil
	default:
		return false
	}
}

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// Backoff returns the capped exponential delay to apply before re-enqueueing
// attempt n (1-based: the delay before the second attempt is Backoff(1)).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap || delay <= 0 {
		return backoffCap
	}
	return delay
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
