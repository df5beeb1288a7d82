package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docket/internal/config"
)

const userAgent = "Docket/0.1.0"

// JobSummary carries the fields notification messages are built from.
type JobSummary struct {
	JobID      string
	SourcePath string
	Mode       string
	Completed  int
	Failed     int
	Skipped    int
	Duration   time.Duration
}

// Service defines the notification surface exposed to the worker pool
// and job manager.
type Service interface {
	NotifyJobCompleted(ctx context.Context, summary JobSummary) error
	NotifyJobFailed(ctx context.Context, summary JobSummary, reason string) error
	NotifyTaskExhausted(ctx context.Context, jobID, filePath, reason string) error
	TestNotification(ctx context.Context) error
}

// event is the backend-neutral representation of one notification.
type event struct {
	kind     string
	title    string
	message  string
	tags     []string
	priority string
	fields   map[string]any
}

type sender interface {
	send(ctx context.Context, data event) error
}

// NewService builds a notification service from configuration. Each
// configured backend receives every enabled event; with no backends a
// noop implementation is returned.
func NewService(cfg *config.Config) Service {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var backends []sender
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		backends = append(backends, &ntfySender{endpoint: topic, client: client})
	}
	if webhookURL := strings.TrimSpace(cfg.Notifications.WebhookURL); webhookURL != "" {
		backends = append(backends, &webhookSender{endpoint: webhookURL, client: client})
	}
	if len(backends) == 0 {
		return noopService{}
	}
	return &service{backends: backends, settings: cfg.Notifications}
}

type service struct {
	backends []sender
	settings config.Notifications
}

func (s *service) NotifyJobCompleted(ctx context.Context, summary JobSummary) error {
	if !s.settings.JobCompleted {
		return nil
	}
	title := "Docket - Job Complete"
	message := fmt.Sprintf("Job %s complete: %d processed, %d skipped in %s",
		summary.JobID, summary.Completed, summary.Skipped, durationText(summary.Duration))
	if summary.Failed > 0 {
		title = "Docket - Job Complete (with errors)"
		message = fmt.Sprintf("Job %s complete: %d processed, %d failed, %d skipped in %s",
			summary.JobID, summary.Completed, summary.Failed, summary.Skipped, durationText(summary.Duration))
	}
	return s.send(ctx, event{
		kind:    "job_completed",
		title:   title,
		message: message,
		tags:    []string{"docket", "job", "completed"},
		fields:  summaryFields(summary),
	})
}

func (s *service) NotifyJobFailed(ctx context.Context, summary JobSummary, reason string) error {
	if !s.settings.JobFailed {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	fields := summaryFields(summary)
	fields["reason"] = reason
	return s.send(ctx, event{
		kind:     "job_failed",
		title:    "Docket - Job Failed",
		message:  fmt.Sprintf("Job %s failed: %s", summary.JobID, reason),
		tags:     []string{"docket", "job", "failed"},
		priority: "high",
		fields:   fields,
	})
}

func (s *service) NotifyTaskExhausted(ctx context.Context, jobID, filePath, reason string) error {
	if !s.settings.TaskExhausted {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return s.send(ctx, event{
		kind:     "task_exhausted",
		title:    "Docket - File Failed",
		message:  fmt.Sprintf("Gave up on %s: %s", filePath, reason),
		tags:     []string{"docket", "task", "failed"},
		priority: "high",
		fields: map[string]any{
			"job_id": jobID,
			"file":   filePath,
			"reason": reason,
		},
	})
}

func (s *service) TestNotification(ctx context.Context) error {
	return s.send(ctx, event{
		kind:     "test",
		title:    "Docket - Test",
		message:  "Notification system test",
		tags:     []string{"docket", "test"},
		priority: "low",
	})
}

func (s *service) send(ctx context.Context, data event) error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.send(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func summaryFields(summary JobSummary) map[string]any {
	return map[string]any{
		"job_id":      summary.JobID,
		"source_path": summary.SourcePath,
		"mode":        summary.Mode,
		"completed":   summary.Completed,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
		"duration_ms": summary.Duration.Milliseconds(),
	}
}

func durationText(duration time.Duration) string {
	duration = duration.Round(time.Second)
	if duration <= 0 {
		return "0s"
	}
	return duration.String()
}

type ntfySender struct {
	endpoint string
	client   *http.Client
}

func (n *ntfySender) send(ctx context.Context, data event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type webhookSender struct {
	endpoint string
	client   *http.Client
}

func (w *webhookSender) send(ctx context.Context, data event) error {
	payload := map[string]any{
		"event":     data.kind,
		"title":     data.title,
		"message":   data.message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range data.fields {
		payload[key] = value
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, JobSummary) error              { return nil }
func (noopService) NotifyJobFailed(context.Context, JobSummary, string) error         { return nil }
func (noopService) NotifyTaskExhausted(context.Context, string, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
