package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"docket/internal/store"
	"docket/internal/testsupport"
)

func TestInsertAndGetJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := &store.Job{
		ID:         uuid.NewString(),
		SourcePath: "/in/docs",
		Mode:       "fast",
		Languages:  []string{"heb", "eng"},
	}
	if err := st.InsertJob(ctx, job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	got, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil {
		t.Fatal("expected job, got nil")
	}
	if got.Status != store.JobQueued {
		t.Errorf("Status = %q, want queued", got.Status)
	}
	if len(got.Languages) != 2 || got.Languages[0] != "heb" || got.Languages[1] != "eng" {
		t.Errorf("Languages = %v", got.Languages)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	missing, err := st.GetJob(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("GetJob(missing): %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing job")
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := &store.Job{
		ID:         uuid.NewString(),
		SourcePath: "/in/docs",
		Mode:       "forced",
		Languages:  []string{"eng"},
	}
	if err := st.UpsertJob(ctx, job); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	created := job.CreatedAt
	if err := st.UpsertJob(ctx, job); err != nil {
		t.Fatalf("UpsertJob again: %v", err)
	}

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1 after repeated upsert", len(jobs))
	}
	if !jobs[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on upsert: %v -> %v", created, jobs[0].CreatedAt)
	}

	task := &store.Task{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		SourcePath: "/in/docs/a.pdf",
	}
	if err := st.UpsertTask(ctx, task); err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}
	task.Status = store.TaskCompleted
	task.Pages = 2
	if err := st.UpsertTask(ctx, task); err != nil {
		t.Fatalf("UpsertTask update: %v", err)
	}
	if err := st.UpsertTask(ctx, task); err != nil {
		t.Fatalf("UpsertTask repeat: %v", err)
	}

	tasks, err := st.TasksForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1 after repeated upsert", len(tasks))
	}
	if tasks[0].Status != store.TaskCompleted || tasks[0].Pages != 2 {
		t.Errorf("task = %+v", tasks[0])
	}
}

func TestTaskLifecycleAndCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SeedJob(t, st, "/in/docs", "fast", "/in/docs/a.pdf", "/in/docs/b.pdf", "/in/docs/c.pdf")

	tasks, err := st.TasksForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("len(tasks) = %d, want 3", len(tasks))
	}

	tasks[0].Status = store.TaskCompleted
	tasks[0].Attempts = 1
	tasks[0].OutputPDF = "/out/a/ocr_output.pdf"
	tasks[0].DurationMS = 1200
	if err := st.UpdateTask(ctx, tasks[0]); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	tasks[1].Status = store.TaskFailed
	tasks[1].Attempts = 3
	tasks[1].ErrorKind = "engine_transient"
	tasks[1].ErrorMessage = "engine exited with status 1"
	if err := st.UpdateTask(ctx, tasks[1]); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	counts, err := st.TaskCountsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("TaskCountsForJob: %v", err)
	}
	if counts.Total != 3 || counts.Completed != 1 || counts.Failed != 1 || counts.Pending != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	if counts.Done() != 2 {
		t.Errorf("Done() = %d, want 2", counts.Done())
	}

	reloaded, err := st.GetTask(ctx, tasks[1].ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if reloaded.ErrorKind != "engine_transient" || reloaded.Attempts != 3 {
		t.Errorf("task = %+v", reloaded)
	}
}

func TestTasksForJobPreservesSubmissionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SeedJob(t, st, "/in/docs", "fast")

	// Identifiers sort against submission order and the whole batch
	// shares one created_at, so only the sequence column can keep the
	// files in order.
	batch := []*store.Task{
		{ID: "zz-" + uuid.NewString(), JobID: job.ID, SourcePath: "/in/docs/a.pdf"},
		{ID: "mm-" + uuid.NewString(), JobID: job.ID, SourcePath: "/in/docs/b.pdf"},
		{ID: "aa-" + uuid.NewString(), JobID: job.ID, SourcePath: "/in/docs/c.pdf"},
	}
	if err := st.InsertTasks(ctx, batch); err != nil {
		t.Fatalf("InsertTasks: %v", err)
	}

	want := []string{"/in/docs/a.pdf", "/in/docs/b.pdf", "/in/docs/c.pdf"}

	tasks, err := st.TasksForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	for i, task := range tasks {
		if task.SourcePath != want[i] {
			t.Errorf("tasks[%d] = %s, want %s", i, task.SourcePath, want[i])
		}
		if task.Seq != i {
			t.Errorf("tasks[%d].Seq = %d, want %d", i, task.Seq, i)
		}
	}

	pending, err := st.PendingTasksForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("PendingTasksForJob: %v", err)
	}
	for i, task := range pending {
		if task.SourcePath != want[i] {
			t.Errorf("pending[%d] = %s, want %s", i, task.SourcePath, want[i])
		}
	}
}

func TestJobSnapshotProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SeedJob(t, st, "/in/docs", "forced", "/in/docs/a.pdf", "/in/docs/b.pdf")

	snap, err := st.JobSnapshot(ctx, job.ID)
	if err != nil {
		t.Fatalf("JobSnapshot: %v", err)
	}
	if snap == nil || snap.Job.ID != job.ID {
		t.Fatal("snapshot missing job")
	}
	if got := snap.Counts.Progress(); got != 0 {
		t.Errorf("Progress = %v, want 0", got)
	}

	snap.Tasks[0].Status = store.TaskSkipped
	if err := st.UpdateTask(ctx, snap.Tasks[0]); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	snap, err = st.JobSnapshot(ctx, job.ID)
	if err != nil {
		t.Fatalf("JobSnapshot: %v", err)
	}
	if got := snap.Counts.Progress(); got != 0.5 {
		t.Errorf("Progress = %v, want 0.5", got)
	}
}

func TestListJobsFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	queued := testsupport.SeedJob(t, st, "/in/a", "fast")
	done := testsupport.SeedJob(t, st, "/in/b", "fast")
	done.Status = store.JobCompleted
	if err := st.UpdateJob(ctx, done); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	active, err := st.ActiveJobs(ctx)
	if err != nil {
		t.Fatalf("ActiveJobs: %v", err)
	}
	if len(active) != 1 || active[0].ID != queued.ID {
		t.Fatalf("active = %v", active)
	}

	all, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
}

func TestNextQueuedJobReturnsOldest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.SeedJob(t, st, "/in/first", "fast")
	testsupport.SeedJob(t, st, "/in/second", "fast")

	next, err := st.NextQueuedJob(ctx)
	if err != nil {
		t.Fatalf("NextQueuedJob: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("next = %v, want first job", next)
	}
}

func TestReclaimAfterUncleanShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SeedJob(t, st, "/in/docs", "fast", "/in/docs/a.pdf")
	job.Status = store.JobRunning
	if err := st.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	tasks, err := st.TasksForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	tasks[0].Status = store.TaskProcessing
	if err := st.UpdateTask(ctx, tasks[0]); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	cancelling := testsupport.SeedJob(t, st, "/in/other", "fast")
	cancelling.Status = store.JobCancelling
	if err := st.UpdateJob(ctx, cancelling); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	if _, err := st.ReclaimProcessingTasks(ctx); err != nil {
		t.Fatalf("ReclaimProcessingTasks: %v", err)
	}
	if _, err := st.ReclaimRunningJobs(ctx); err != nil {
		t.Fatalf("ReclaimRunningJobs: %v", err)
	}

	reloaded, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if reloaded.Status != store.JobQueued {
		t.Errorf("running job status = %q, want queued", reloaded.Status)
	}
	task, err := st.GetTask(ctx, tasks[0].ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskPending {
		t.Errorf("task status = %q, want pending", task.Status)
	}
	finalized, err := st.GetJob(ctx, cancelling.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if finalized.Status != store.JobCancelled {
		t.Errorf("cancelling job status = %q, want cancelled", finalized.Status)
	}
}

func TestAuditAppendAndQuery(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SeedJob(t, st, "/in/docs", "fast")
	events := []string{store.EventJobSubmitted, store.EventJobStarted, store.EventJobCompleted}
	for _, eventType := range events {
		if err := st.AppendAudit(ctx, &store.AuditEvent{JobID: job.ID, EventType: eventType}); err != nil {
			t.Fatalf("AppendAudit(%s): %v", eventType, err)
		}
	}

	trail, err := st.AuditForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("AuditForJob: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("len(trail) = %d, want 3", len(trail))
	}
	for i, eventType := range events {
		if trail[i].EventType != eventType {
			t.Errorf("trail[%d] = %q, want %q", i, trail[i].EventType, eventType)
		}
	}

	recent, err := st.RecentAudit(ctx, 2)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(recent) != 2 || recent[0].EventType != store.EventJobCompleted {
		t.Fatalf("recent = %v", recent)
	}
}

func TestMetricsSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SeedJob(t, st, "/in/docs", "fast")
	for _, value := range []float64{100, 200, 300} {
		sample := &store.MetricSample{JobID: job.ID, Name: store.MetricTaskDuration, Value: value, Unit: "ms"}
		if err := st.RecordMetric(ctx, sample); err != nil {
			t.Fatalf("RecordMetric: %v", err)
		}
	}

	summaries, err := st.SummarizeMetrics(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SummarizeMetrics: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("len(summaries) = %d, want 1", len(summaries))
	}
	got := summaries[0]
	if got.Count != 3 || got.Sum != 600 || got.Min != 100 || got.Max != 300 || got.Avg != 200 {
		t.Errorf("summary = %+v", got)
	}

	old, err := st.SummarizeMetrics(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SummarizeMetrics: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("expected no summaries after future cutoff, got %v", old)
	}
}

func TestCleanupRemovesOnlyOldTerminalJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	oldDone := testsupport.SeedJob(t, st, "/in/old", "fast", "/in/old/a.pdf")
	oldDone.Status = store.JobCompleted
	if err := st.UpdateJob(ctx, oldDone); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	active := testsupport.SeedJob(t, st, "/in/active", "fast")

	// Retention of zero treats every terminal job as expired.
	result, err := st.Cleanup(ctx, 0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Jobs != 1 {
		t.Fatalf("result.Jobs = %d, want 1", result.Jobs)
	}

	if gone, err := st.GetJob(ctx, oldDone.ID); err != nil || gone != nil {
		t.Fatalf("expected old job removed, got %v err %v", gone, err)
	}
	if kept, err := st.GetJob(ctx, active.ID); err != nil || kept == nil {
		t.Fatalf("expected active job kept, err %v", err)
	}
	tasks, err := st.TasksForJob(ctx, oldDone.ID)
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected cascade delete of tasks, got %d", len(tasks))
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Errorf("health = %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Errorf("missing tables: %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Error("integrity check failed")
	}
}
