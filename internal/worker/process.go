package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"docket/internal/engine"
	"docket/internal/faults"
	"docket/internal/logging"
	"docket/internal/store"
)

// handleTask runs one file task to a terminal state, applying the
// retry policy for transient failures.
func (p *Pool) handleTask(ctx context.Context, tracker *jobTracker, task *store.Task) {
	job := tracker.job
	logger := p.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldSource, task.SourcePath),
	)

	// Cancellation is cooperative: tasks already dispatched before the
	// request still run, everything after it stays pending.
	if tracker.cancelled.Load() || ctx.Err() != nil {
		return
	}

	task.Status = store.TaskProcessing
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.setLastError(err)
		logger.Error("failed to mark task processing", logging.Error(err))
		return
	}
	p.audit(ctx, job.ID, task.ID, store.EventTaskStarted, "")

	mode, _ := engine.ParseMode(job.Mode)
	if mode == engine.ModeFast {
		if skipped, err := p.trySkip(ctx, task, logger); err == nil && skipped {
			return
		} else if err != nil {
			logger.Debug("text layer probe failed, processing anyway", logging.Error(err))
		}
	}

	start := time.Now()
	maxAttempts := p.cfg.Processing.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = faults.DefaultMaxAttempts
	}

	var lastErr error
	for attempt := task.Attempts + 1; attempt <= maxAttempts; attempt++ {
		task.Attempts = attempt
		result, err := p.eng.Process(ctx, engine.Request{
			InputPath: task.SourcePath,
			OutputDir: p.taskOutputDir(job, task),
			Mode:      mode,
			Languages: job.Languages,
		})
		if err == nil {
			if result.PriorTextFound {
				p.markSkipped(ctx, task, logger, "engine reported existing text layer")
				return
			}
			p.markCompleted(ctx, task, logger, result, time.Since(start))
			return
		}
		lastErr = err

		if ctx.Err() != nil || tracker.cancelled.Load() {
			break
		}
		if !faults.Retryable(err) || attempt == maxAttempts {
			break
		}

		logger.Warn("task attempt failed, retrying",
			logging.Int(logging.FieldAttempt, attempt),
			logging.String(logging.FieldErrorKind, string(faults.KindOf(err))),
			logging.Error(err),
		)
		p.audit(ctx, job.ID, task.ID, store.EventTaskRetried,
			fmt.Sprintf("attempt %d: %s", attempt, err.Error()))
		if err := p.store.UpdateTask(ctx, task); err != nil {
			logger.Warn("failed to persist attempt count", logging.Error(err))
		}
		p.sleep(ctx, p.retryDelay(attempt))
	}

	p.markFailed(ctx, task, logger, lastErr, time.Since(start))
}

// trySkip checks whether a fast-mode file already carries enough text
// to skip recognition entirely.
func (p *Pool) trySkip(ctx context.Context, task *store.Task, logger *slog.Logger) (bool, error) {
	hasText, err := engine.HasText(task.SourcePath, p.cfg.Processing.SkipTextChars)
	if err != nil {
		return false, err
	}
	if !hasText {
		return false, nil
	}
	p.markSkipped(ctx, task, logger, "existing text layer")
	return true, nil
}

func (p *Pool) markSkipped(ctx context.Context, task *store.Task, logger *slog.Logger, reason string) {
	task.Status = store.TaskSkipped
	task.ErrorKind = ""
	task.ErrorMessage = ""
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.setLastError(err)
	}
	p.audit(ctx, task.JobID, task.ID, store.EventTaskSkipped, reason)
	logger.Info("task skipped", logging.String("reason", reason))
}

func (p *Pool) markCompleted(ctx context.Context, task *store.Task, logger *slog.Logger, result *engine.Result, elapsed time.Duration) {
	task.Status = store.TaskCompleted
	task.ErrorKind = ""
	task.ErrorMessage = ""
	task.OutputPDF = result.OutputPDF
	task.OutputText = result.OutputText
	task.OutputHOCR = result.OutputHOCR
	task.Pages = result.Pages
	task.DurationMS = elapsed.Milliseconds()
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.setLastError(err)
	}
	p.audit(ctx, task.JobID, task.ID, store.EventTaskCompleted, "")
	p.metric(ctx, &store.MetricSample{JobID: task.JobID, TaskID: task.ID, Name: store.MetricTaskDuration, Value: float64(task.DurationMS), Unit: "ms"})
	if task.Pages > 0 {
		p.metric(ctx, &store.MetricSample{JobID: task.JobID, TaskID: task.ID, Name: store.MetricTaskPages, Value: float64(task.Pages), Unit: "pages"})
	}
	logger.Info("task completed",
		logging.Int("pages", task.Pages),
		logging.Duration("elapsed", elapsed),
	)
}

func (p *Pool) markFailed(ctx context.Context, task *store.Task, logger *slog.Logger, cause error, elapsed time.Duration) {
	task.Status = store.TaskFailed
	task.DurationMS = elapsed.Milliseconds()
	if cause != nil {
		task.ErrorKind = string(faults.KindOf(cause))
		task.ErrorMessage = cause.Error()
	} else {
		task.ErrorKind = string(faults.KindUnknown)
		task.ErrorMessage = "processing aborted"
	}
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.setLastError(err)
	}
	p.audit(ctx, task.JobID, task.ID, store.EventTaskFailed, task.ErrorMessage)
	p.metric(ctx, &store.MetricSample{JobID: task.JobID, TaskID: task.ID, Name: store.MetricTaskDuration, Value: float64(task.DurationMS), Unit: "ms"})
	logger.Error("task failed",
		logging.Int(logging.FieldAttempt, task.Attempts),
		logging.String(logging.FieldErrorKind, task.ErrorKind),
	)

	if cause != nil && faults.Retryable(cause) {
		if err := p.notifier.NotifyTaskExhausted(ctx, task.JobID, task.SourcePath, task.ErrorMessage); err != nil {
			p.logger.Warn("notification delivery failed",
				logging.String(logging.FieldJobID, task.JobID),
				logging.Error(err),
			)
		}
	}
}

// taskOutputDir builds the per-file artifact directory beneath the
// configured output root: <root>/<mode>/<stem>_<timestamp>_<task prefix>.
func (p *Pool) taskOutputDir(job *store.Job, task *store.Task) string {
	base := filepath.Base(task.SourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	suffix := task.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	dirName := fmt.Sprintf("%s_%s_%s", stem, time.Now().UTC().Format("20060102_150405"), suffix)
	return filepath.Join(p.cfg.Paths.OutputDir, job.Mode, dirName)
}
