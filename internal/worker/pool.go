package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"docket/internal/config"
	"docket/internal/engine"
	"docket/internal/faults"
	"docket/internal/logging"
	"docket/internal/notifications"
	"docket/internal/store"
)

// Pool coordinates job scheduling and bounded-concurrency task processing.
type Pool struct {
	cfg      *config.Config
	store    *store.Store
	eng      engine.Engine
	logger   *slog.Logger
	notifier notifications.Service

	pollInterval time.Duration
	retryDelay   func(attempt int) time.Duration

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	trackers map[string]*jobTracker

	tasks chan dispatch
}

type dispatch struct {
	tracker *jobTracker
	task    *store.Task
}

// jobTracker follows one running job until its last task settles.
type jobTracker struct {
	job       *store.Job
	remaining atomic.Int64
	cancelled atomic.Bool
	startedAt time.Time
}

// Option configures optional Pool behaviour.
type Option func(*Pool)

// WithRetryDelay overrides the backoff schedule (used in tests).
func WithRetryDelay(delay func(attempt int) time.Duration) Option {
	return func(p *Pool) {
		if delay != nil {
			p.retryDelay = delay
		}
	}
}

// NewPool constructs a worker pool.
func NewPool(cfg *config.Config, st *store.Store, eng engine.Engine, logger *slog.Logger, notifier notifications.Service, opts ...Option) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	pool := &Pool{
		cfg:          cfg,
		store:        st,
		eng:          eng,
		logger:       logging.WithComponent(logger, "worker"),
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryDelay:   defaultRetryDelay,
		trackers:     make(map[string]*jobTracker),
		tasks:        make(chan dispatch),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

// Start begins background processing.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("worker pool already running")
	}
	workers := p.cfg.Processing.MaxConcurrentTasks
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(workers + 1)
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		go p.runWorker(runCtx)
	}
	go p.runScheduler(runCtx)

	p.logger.Info("worker pool started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for in-flight tasks.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Running reports whether the pool is processing.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// LastError returns the most recent scheduling error, if any.
func (p *Pool) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// RequestCancel flags a running job so workers stop picking up its
// remaining tasks. Returns false when the job is not currently tracked.
func (p *Pool) RequestCancel(jobID string) bool {
	p.mu.RLock()
	tracker := p.trackers[jobID]
	p.mu.RUnlock()
	if tracker == nil {
		return false
	}
	tracker.cancelled.Store(true)
	return true
}

func (p *Pool) setLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Pool) runScheduler(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.store.NextQueuedJob(ctx)
		if err != nil {
			p.setLastError(err)
			p.logger.Error("failed to fetch next queued job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
			)
			p.sleep(ctx, time.Duration(p.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if job == nil {
			p.sleep(ctx, p.pollInterval)
			continue
		}

		if err := p.dispatchJob(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.setLastError(err)
			p.logger.Error("failed to dispatch job",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
			)
			p.sleep(ctx, time.Duration(p.cfg.Workflow.ErrorRetryInterval)*time.Second)
		}
	}
}

// dispatchJob marks a job running and feeds its pending tasks to the
// worker channel. It returns once every task is handed off, so the next
// queued job cannot start dispatching ahead of this one.
func (p *Pool) dispatchJob(ctx context.Context, job *store.Job) error {
	now := time.Now().UTC()
	job.Status = store.JobRunning
	job.StartedAt = &now
	if err := p.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	p.audit(ctx, job.ID, "", store.EventJobStarted, "")
	p.metric(ctx, &store.MetricSample{
		JobID: job.ID,
		Name:  store.MetricQueueWaitTime,
		Value: float64(now.Sub(job.CreatedAt).Milliseconds()),
		Unit:  "ms",
	})
	p.logger.Info("job started",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldMode, job.Mode),
		logging.String(logging.FieldSource, job.SourcePath),
	)

	tasks, err := p.store.PendingTasksForJob(ctx, job.ID)
	if err != nil {
		return err
	}

	tracker := &jobTracker{job: job, startedAt: now}
	tracker.remaining.Store(int64(len(tasks)))
	p.mu.Lock()
	p.trackers[job.ID] = tracker
	p.mu.Unlock()

	if len(tasks) == 0 {
		p.finalizeJob(ctx, tracker)
		return nil
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.tasks <- dispatch{tracker: tracker, task: task}:
		}
	}
	return nil
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.tasks:
			p.handleTask(ctx, item.tracker, item.task)
			if item.tracker.remaining.Add(-1) == 0 {
				p.finalizeJob(ctx, item.tracker)
			}
		}
	}
}

func (p *Pool) finalizeJob(ctx context.Context, tracker *jobTracker) {
	job := tracker.job
	counts, err := p.finalCounts(ctx, job.ID)
	if err != nil {
		// Settling on counts we never saw would corrupt the outcome.
		// The tracker stays registered and the job stays running; the
		// startup reclaim requeues it if the store never recovers.
		p.setLastError(err)
		p.logger.Error("failed to load task counts, deferring finalization",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
		return
	}

	now := time.Now().UTC()
	var status store.JobStatus
	var eventType string
	switch {
	case tracker.cancelled.Load():
		status = store.JobCancelled
		eventType = store.EventJobCancelled
	case counts.Total > 0 && counts.Failed == counts.Total:
		status = store.JobFailed
		eventType = store.EventJobFailed
		job.ErrorMessage = "all files failed"
	case counts.Failed > 0:
		status = store.JobCompletedWithErrors
		eventType = store.EventJobCompleted
	default:
		status = store.JobCompleted
		eventType = store.EventJobCompleted
	}
	job.Status = status
	job.FinishedAt = &now
	if err := p.store.UpdateJob(ctx, job); err != nil {
		p.setLastError(err)
		p.logger.Error("failed to finalize job",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}

	p.mu.Lock()
	delete(p.trackers, job.ID)
	p.mu.Unlock()

	duration := now.Sub(tracker.startedAt)
	p.audit(ctx, job.ID, "", eventType, string(status))
	p.metric(ctx, &store.MetricSample{JobID: job.ID, Name: store.MetricJobDuration, Value: float64(duration.Milliseconds()), Unit: "ms"})
	p.metric(ctx, &store.MetricSample{JobID: job.ID, Name: store.MetricJobFiles, Value: float64(counts.Total), Unit: "files"})
	p.logger.Info("job finished",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("status", string(status)),
		logging.Int("completed", counts.Completed),
		logging.Int("failed", counts.Failed),
		logging.Int("skipped", counts.Skipped),
		logging.Duration("duration", duration),
	)

	summary := notifications.JobSummary{
		JobID:      job.ID,
		SourcePath: job.SourcePath,
		Mode:       job.Mode,
		Completed:  counts.Completed,
		Failed:     counts.Failed,
		Skipped:    counts.Skipped,
		Duration:   duration,
	}
	var notifyErr error
	switch status {
	case store.JobFailed:
		notifyErr = p.notifier.NotifyJobFailed(ctx, summary, job.ErrorMessage)
	case store.JobCompleted, store.JobCompletedWithErrors:
		notifyErr = p.notifier.NotifyJobCompleted(ctx, summary)
	}
	if notifyErr != nil {
		p.logger.Warn("notification delivery failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(notifyErr),
		)
	}
}

// finalCounts reads the settled task counts, retrying transient store
// failures before giving up.
func (p *Pool) finalCounts(ctx context.Context, jobID string) (store.TaskCounts, error) {
	var lastErr error
	for attempt := 1; attempt <= faults.DefaultMaxAttempts; attempt++ {
		counts, err := p.store.TaskCountsForJob(ctx, jobID)
		if err == nil {
			return counts, nil
		}
		lastErr = err
		if attempt < faults.DefaultMaxAttempts {
			p.sleep(ctx, p.retryDelay(attempt))
		}
	}
	return store.TaskCounts{}, lastErr
}

func (p *Pool) audit(ctx context.Context, jobID, taskID, eventType, detail string) {
	event := &store.AuditEvent{JobID: jobID, TaskID: taskID, EventType: eventType, Detail: detail}
	if err := p.store.AppendAudit(ctx, event); err != nil {
		p.logger.Warn("failed to append audit event",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldEventType, eventType),
			logging.Error(err),
		)
	}
}

func (p *Pool) metric(ctx context.Context, sample *store.MetricSample) {
	if err := p.store.RecordMetric(ctx, sample); err != nil {
		p.logger.Warn("failed to record metric",
			logging.String(logging.FieldJobID, sample.JobID),
			logging.String("metric", sample.Name),
			logging.Error(err),
		)
	}
}

func (p *Pool) sleep(ctx context.Context, duration time.Duration) {
	if duration <= 0 {
		duration = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}
}

func defaultRetryDelay(attempt int) time.Duration {
	return faults.Backoff(attempt)
}
