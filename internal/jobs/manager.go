package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docket/internal/config"
	"docket/internal/faults"
	"docket/internal/logging"
	"docket/internal/store"
)

// Canceller flags a running job so its remaining tasks are not picked
// up. Implemented by the worker pool.
type Canceller interface {
	RequestCancel(jobID string) bool
}

// Manager is the submission and control surface for jobs.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	logger    *slog.Logger
	canceller Canceller
}

// NewManager constructs a job manager. The canceller may be nil when no
// worker pool is running (CLI-only operation against the database).
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger, canceller Canceller) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		store:     st,
		logger:    logging.WithComponent(logger, "jobs"),
		canceller: canceller,
	}
}

// Cancel requests cancellation of a job. Queued jobs are finalized
// immediately; running jobs transition to cancelling and settle once
// in-flight tasks drain. Cancelling a job that already reached a
// terminal state is a no-op that returns the job as it stands, so
// callers polling after settlement see the outcome instead of an error.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*store.Job, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, "jobs", "cancel", "load job", err)
	}
	if job == nil {
		return nil, faults.Wrap(faults.ErrNotFound, "jobs", "cancel", fmt.Sprintf("job %s not found", jobID), nil)
	}

	switch job.Status {
	case store.JobQueued:
		now := time.Now().UTC()
		job.Status = store.JobCancelled
		job.FinishedAt = &now
		if err := m.store.UpdateJob(ctx, job); err != nil {
			return nil, faults.Wrap(faults.ErrPersistence, "jobs", "cancel", "finalize queued job", err)
		}
		m.audit(ctx, job.ID, store.EventJobCancelled, "cancelled while queued")
	case store.JobRunning:
		job.Status = store.JobCancelling
		if err := m.store.UpdateJob(ctx, job); err != nil {
			return nil, faults.Wrap(faults.ErrPersistence, "jobs", "cancel", "mark job cancelling", err)
		}
		if m.canceller != nil {
			m.canceller.RequestCancel(job.ID)
		}
		m.audit(ctx, job.ID, store.EventCancelRequest, "")
	default:
		// Already draining or settled, nothing to do.
		return job, nil
	}

	m.logger.Info("cancel requested",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("status", string(job.Status)),
	)
	return job, nil
}

// Query returns a job together with its tasks and progress counts.
func (m *Manager) Query(ctx context.Context, jobID string) (*store.Snapshot, error) {
	snapshot, err := m.store.JobSnapshot(ctx, jobID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, "jobs", "query", "load snapshot", err)
	}
	if snapshot == nil {
		return nil, faults.Wrap(faults.ErrNotFound, "jobs", "query", fmt.Sprintf("job %s not found", jobID), nil)
	}
	return snapshot, nil
}

// List returns jobs filtered by the given statuses, or all jobs.
func (m *Manager) List(ctx context.Context, statuses ...store.JobStatus) ([]*store.Job, error) {
	jobs, err := m.store.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, "jobs", "list", "list jobs", err)
	}
	return jobs, nil
}

// History returns a job's audit trail in chronological order.
func (m *Manager) History(ctx context.Context, jobID string) ([]*store.AuditEvent, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, "jobs", "history", "load job", err)
	}
	if job == nil {
		return nil, faults.Wrap(faults.ErrNotFound, "jobs", "history", fmt.Sprintf("job %s not found", jobID), nil)
	}
	events, err := m.store.AuditForJob(ctx, jobID)
	if err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, "jobs", "history", "load audit trail", err)
	}
	return events, nil
}

func (m *Manager) audit(ctx context.Context, jobID, eventType, detail string) {
	event := &store.AuditEvent{JobID: jobID, EventType: eventType, Detail: detail}
	if err := m.store.AppendAudit(ctx, event); err != nil {
		m.logger.Warn("failed to append audit event",
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldEventType, eventType),
			logging.Error(err),
		)
	}
}
