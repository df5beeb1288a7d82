package worker

import (
	"context"
	"testing"
	"time"

	"docket/internal/logging"
	"docket/internal/notifications"
	"docket/internal/store"
	"docket/internal/testsupport"
)

// A job whose final counts cannot be read must stay running instead of
// settling on zero-value counts.
func TestFinalizationDeferredWhenCountsUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SeedJob(t, st, "/in", "fast", "/in/a.pdf")
	job.Status = store.JobRunning
	if err := st.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	pool := NewPool(cfg, st, nil, logging.NewNop(), notifications.NewService(cfg),
		WithRetryDelay(func(int) time.Duration { return 0 }))
	tracker := &jobTracker{job: job, startedAt: time.Now().UTC()}
	pool.trackers[job.ID] = tracker

	// A cancelled context makes every store read fail.
	deadCtx, cancel := context.WithCancel(ctx)
	cancel()
	pool.finalizeJob(deadCtx, tracker)

	reloaded, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if reloaded.Status != store.JobRunning {
		t.Fatalf("status = %s, want the job left running", reloaded.Status)
	}
	if reloaded.FinishedAt != nil {
		t.Error("finished timestamp set without counts")
	}
	if pool.trackers[job.ID] == nil {
		t.Fatal("tracker dropped before the job settled")
	}
	if pool.LastError() == nil {
		t.Error("expected the counts failure surfaced via LastError")
	}

	// Once the store is reachable again the same job finalizes.
	pool.finalizeJob(ctx, tracker)
	reloaded, err = st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !reloaded.Status.Terminal() {
		t.Fatalf("status = %s, want terminal after recovery", reloaded.Status)
	}
	if pool.trackers[job.ID] != nil {
		t.Error("tracker still registered after finalization")
	}
}
