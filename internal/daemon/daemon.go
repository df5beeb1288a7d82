package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"docket/internal/config"
	"docket/internal/jobs"
	"docket/internal/logging"
	"docket/internal/notifications"
	"docket/internal/store"
	"docket/internal/worker"
)

// Daemon coordinates the worker pool, the HTTP API, and periodic
// maintenance, and enforces single-instance execution via a lock file.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	pool    *worker.Pool
	manager *jobs.Manager

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Workers      int
	Jobs         store.HealthSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, pool *worker.Pool, manager *jobs.Manager) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || pool == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, logger, pool, and job manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "docketd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    st,
		pool:     pool,
		manager:  manager,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, reclaims work interrupted by an
// unclean shutdown, and launches the worker pool and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docket daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.reclaim(d.ctx); err != nil {
		d.releaseStart()
		return err
	}
	if err := d.pool.Start(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("start worker pool: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.pool.Stop()
		d.releaseStart()
		return err
	}

	d.wg.Add(1)
	go d.runCleanup(d.ctx)

	d.running.Store(true)
	d.appendAudit(d.ctx, store.EventDaemonStarted, fmt.Sprintf("pid %d", os.Getpid()))
	d.logger.Info("docket daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.cfg.Processing.MaxConcurrentTasks),
	)
	return nil
}

func (d *Daemon) releaseStart() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// reclaim returns work orphaned by an unclean shutdown to a runnable
// state: processing tasks back to pending, running jobs back to queued,
// and cancelling jobs finalized as cancelled.
func (d *Daemon) reclaim(ctx context.Context) error {
	tasks, err := d.store.ReclaimProcessingTasks(ctx)
	if err != nil {
		return fmt.Errorf("reclaim tasks: %w", err)
	}
	jobCount, err := d.store.ReclaimRunningJobs(ctx)
	if err != nil {
		return fmt.Errorf("reclaim jobs: %w", err)
	}
	if tasks > 0 || jobCount > 0 {
		d.logger.Info("reclaimed interrupted work",
			logging.Int64("tasks", tasks),
			logging.Int64("jobs", jobCount),
		)
	}
	return nil
}

// runCleanup sweeps expired terminal jobs on the configured interval.
func (d *Daemon) runCleanup(ctx context.Context) {
	defer d.wg.Done()
	interval := time.Duration(d.cfg.Workflow.CleanupIntervalHours) * time.Hour
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Daemon) sweep(ctx context.Context) {
	retention := time.Duration(d.cfg.Workflow.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		return
	}
	result, err := d.store.Cleanup(ctx, retention)
	if err != nil {
		d.logger.Warn("retention sweep failed", logging.Error(err))
		return
	}
	if result.Jobs > 0 || result.Audit > 0 || result.Metrics > 0 {
		d.appendAudit(ctx, store.EventCleanupRun,
			fmt.Sprintf("removed %d jobs, %d audit events, %d metric samples", result.Jobs, result.Audit, result.Metrics))
		d.logger.Info("retention sweep",
			logging.Int64("jobs", result.Jobs),
			logging.Int64("audit", result.Audit),
			logging.Int64("metrics", result.Metrics),
		)
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.appendAudit(context.Background(), store.EventDaemonStopped, "")
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pool.Stop()
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("docket daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Manager exposes the job control surface backing the API.
func (d *Daemon) Manager() *jobs.Manager {
	return d.manager
}

// APIAddr returns the bound API address, or empty when the API is
// disabled or not yet listening.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("job stats unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Workers:      d.cfg.Processing.MaxConcurrentTasks,
		Jobs:         health,
	}
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (store.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// Metrics aggregates metric samples recorded since the cutoff.
func (d *Daemon) Metrics(ctx context.Context, since time.Time) ([]store.MetricSummary, error) {
	return d.store.SummarizeMetrics(ctx, since)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return notifications.NewService(d.cfg).TestNotification(ctx)
}

func (d *Daemon) appendAudit(ctx context.Context, eventType, detail string) {
	event := &store.AuditEvent{EventType: eventType, Detail: detail}
	if err := d.store.AppendAudit(ctx, event); err != nil {
		d.logger.Warn("failed to append audit event",
			logging.String(logging.FieldEventType, eventType),
			logging.Error(err),
		)
	}
}
