package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docket/internal/engine"
	"docket/internal/faults"
	"docket/internal/logging"
	"docket/internal/notifications"
	"docket/internal/store"
	"docket/internal/testsupport"
	"docket/internal/worker"
)

type fakeEngine struct {
	mu       sync.Mutex
	attempts map[string]int
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration

	process func(path string, attempt int) (*engine.Result, error)
}

func newFakeEngine(process func(path string, attempt int) (*engine.Result, error)) *fakeEngine {
	return &fakeEngine{attempts: make(map[string]int), process: process}
}

func (f *fakeEngine) Process(ctx context.Context, req engine.Request) (*engine.Result, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	f.attempts[req.InputPath]++
	attempt := f.attempts[req.InputPath]
	f.mu.Unlock()

	return f.process(req.InputPath, attempt)
}

func (f *fakeEngine) attemptCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[path]
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []notifications.JobSummary
	failed    []notifications.JobSummary
	exhausted []string
}

func (r *recordingNotifier) NotifyJobCompleted(_ context.Context, summary notifications.JobSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, summary)
	return nil
}

func (r *recordingNotifier) NotifyJobFailed(_ context.Context, summary notifications.JobSummary, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, summary)
	return nil
}

func (r *recordingNotifier) NotifyTaskExhausted(_ context.Context, _, filePath, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted = append(r.exhausted, filePath)
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func okResult(path string) (*engine.Result, error) {
	return &engine.Result{OutputPDF: path + ".out.pdf", OutputText: path + ".out.txt", Pages: 2}, nil
}

func startPool(t *testing.T, eng engine.Engine, notifier notifications.Service, opts ...testsupport.ConfigOption) (*worker.Pool, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	if notifier == nil {
		notifier = &recordingNotifier{}
	}
	pool := worker.NewPool(cfg, st, eng, logging.NewNop(), notifier,
		worker.WithRetryDelay(func(int) time.Duration { return time.Millisecond }))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("pool.Start: %v", err)
	}
	t.Cleanup(pool.Stop)
	return pool, st
}

func waitForJobStatus(t *testing.T, st *store.Store, jobID string, want store.JobStatus) *store.Job {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := st.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	job, _ := st.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached %s (now %+v)", jobID, want, job)
	return nil
}

func TestJobCompletesWhenAllTasksSucceed(t *testing.T) {
	eng := newFakeEngine(func(path string, _ int) (*engine.Result, error) { return okResult(path) })
	notifier := &recordingNotifier{}
	_, st := startPool(t, eng, notifier)

	job := testsupport.SeedJob(t, st, "/in", "forced", "/in/a.pdf", "/in/b.pdf")
	done := waitForJobStatus(t, st, job.ID, store.JobCompleted)

	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Error("expected started/finished timestamps")
	}
	tasks, err := st.TasksForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	for _, task := range tasks {
		if task.Status != store.TaskCompleted {
			t.Errorf("task %s status = %s", task.SourcePath, task.Status)
		}
		if task.OutputPDF == "" || task.Pages != 2 {
			t.Errorf("task %s outputs not recorded: %+v", task.SourcePath, task)
		}
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.completed) != 1 {
		t.Errorf("completed notifications = %d, want 1", len(notifier.completed))
	}
}

func TestJobCompletedWithErrorsWhenSomeTasksFail(t *testing.T) {
	eng := newFakeEngine(func(path string, _ int) (*engine.Result, error) {
		if path == "/in/bad.pdf" {
			return nil, faults.Wrap(faults.ErrEngineTerminal, "engine", "process", "corrupt file", nil)
		}
		return okResult(path)
	})
	_, st := startPool(t, eng, nil)

	job := testsupport.SeedJob(t, st, "/in", "forced", "/in/good.pdf", "/in/bad.pdf")
	waitForJobStatus(t, st, job.ID, store.JobCompletedWithErrors)

	counts, err := st.TaskCountsForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TaskCountsForJob: %v", err)
	}
	if counts.Completed != 1 || counts.Failed != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	if got := eng.attemptCount("/in/bad.pdf"); got != 1 {
		t.Errorf("terminal failure retried %d times, want 1 attempt", got)
	}
}

func TestJobFailsWhenEveryTaskFails(t *testing.T) {
	eng := newFakeEngine(func(string, int) (*engine.Result, error) {
		return nil, faults.Wrap(faults.ErrEngineTerminal, "engine", "process", "binary missing", nil)
	})
	notifier := &recordingNotifier{}
	_, st := startPool(t, eng, notifier)

	job := testsupport.SeedJob(t, st, "/in", "forced", "/in/a.pdf", "/in/b.pdf")
	done := waitForJobStatus(t, st, job.ID, store.JobFailed)
	if done.ErrorMessage == "" {
		t.Error("expected job error message")
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.failed) != 1 {
		t.Errorf("failed notifications = %d, want 1", len(notifier.failed))
	}
}

func TestTransientFailureIsRetriedUntilSuccess(t *testing.T) {
	eng := newFakeEngine(func(path string, attempt int) (*engine.Result, error) {
		if attempt < 3 {
			return nil, faults.Wrap(faults.ErrEngineTransient, "engine", "process", "flaky", nil)
		}
		return okResult(path)
	})
	_, st := startPool(t, eng, nil)

	job := testsupport.SeedJob(t, st, "/in", "forced", "/in/a.pdf")
	waitForJobStatus(t, st, job.ID, store.JobCompleted)

	tasks, err := st.TasksForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if tasks[0].Attempts != 3 {
		t.Errorf("attempts = %d, want 3", tasks[0].Attempts)
	}
}

func TestAttemptsAreCappedAndExhaustionNotified(t *testing.T) {
	eng := newFakeEngine(func(string, int) (*engine.Result, error) {
		return nil, faults.Wrap(faults.ErrEngineTransient, "engine", "process", "always flaky", nil)
	})
	notifier := &recordingNotifier{}
	_, st := startPool(t, eng, notifier)

	job := testsupport.SeedJob(t, st, "/in", "forced", "/in/a.pdf")
	waitForJobStatus(t, st, job.ID, store.JobFailed)

	if got := eng.attemptCount("/in/a.pdf"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	tasks, err := st.TasksForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if tasks[0].Status != store.TaskFailed || tasks[0].ErrorKind != string(faults.KindEngineTransient) {
		t.Errorf("task = %+v", tasks[0])
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.exhausted) != 1 {
		t.Errorf("exhausted notifications = %d, want 1", len(notifier.exhausted))
	}
}

func TestPriorTextResultMarksTaskSkipped(t *testing.T) {
	eng := newFakeEngine(func(string, int) (*engine.Result, error) {
		return &engine.Result{PriorTextFound: true}, nil
	})
	_, st := startPool(t, eng, nil)

	job := testsupport.SeedJob(t, st, "/in", "fast", "/in/already.pdf")
	waitForJobStatus(t, st, job.ID, store.JobCompleted)

	counts, err := st.TaskCountsForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TaskCountsForJob: %v", err)
	}
	if counts.Skipped != 1 {
		t.Fatalf("counts = %+v, want 1 skipped", counts)
	}
}

func TestZeroFileJobCompletesImmediately(t *testing.T) {
	eng := newFakeEngine(func(path string, _ int) (*engine.Result, error) { return okResult(path) })
	_, st := startPool(t, eng, nil)

	job := testsupport.SeedJob(t, st, "/in/empty", "fast")
	waitForJobStatus(t, st, job.ID, store.JobCompleted)
}

func TestConcurrencyBoundIsRespected(t *testing.T) {
	eng := newFakeEngine(func(path string, _ int) (*engine.Result, error) { return okResult(path) })
	eng.delay = 50 * time.Millisecond
	_, st := startPool(t, eng, nil, testsupport.WithMaxConcurrentTasks(2))

	files := []string{"/in/a.pdf", "/in/b.pdf", "/in/c.pdf", "/in/d.pdf", "/in/e.pdf", "/in/f.pdf"}
	job := testsupport.SeedJob(t, st, "/in", "forced", files...)
	waitForJobStatus(t, st, job.ID, store.JobCompleted)

	if got := eng.maxSeen.Load(); got > 2 {
		t.Errorf("max concurrent engine calls = %d, want <= 2", got)
	}
}

func TestCancelStopsRemainingTasks(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	eng := newFakeEngine(func(path string, _ int) (*engine.Result, error) {
		<-release
		return okResult(path)
	})
	notifier := &recordingNotifier{}
	pool, st := startPool(t, eng, notifier, testsupport.WithMaxConcurrentTasks(1))

	files := []string{"/in/a.pdf", "/in/b.pdf", "/in/c.pdf"}
	job := testsupport.SeedJob(t, st, "/in", "forced", files...)

	// Wait until the first task is in flight, then request cancel.
	deadline := time.Now().Add(10 * time.Second)
	for eng.inFlight.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first task never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !pool.RequestCancel(job.ID) {
		t.Fatal("RequestCancel returned false for running job")
	}
	once.Do(func() { close(release) })

	waitForJobStatus(t, st, job.ID, store.JobCancelled)
	counts, err := st.TaskCountsForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TaskCountsForJob: %v", err)
	}
	if counts.Pending == 0 {
		t.Errorf("expected some tasks left pending after cancel, counts = %+v", counts)
	}
	if counts.Completed+counts.Pending+counts.Processing != counts.Total {
		t.Errorf("unexpected task states after cancel: %+v", counts)
	}
}

func TestRequestCancelUnknownJob(t *testing.T) {
	eng := newFakeEngine(func(path string, _ int) (*engine.Result, error) { return okResult(path) })
	pool, _ := startPool(t, eng, nil)
	if pool.RequestCancel("missing") {
		t.Fatal("RequestCancel should return false for untracked job")
	}
}

func TestStartTwiceFails(t *testing.T) {
	eng := newFakeEngine(func(path string, _ int) (*engine.Result, error) { return okResult(path) })
	pool, _ := startPool(t, eng, nil)
	if err := pool.Start(context.Background()); err == nil {
		t.Fatal("expected error starting a running pool")
	}
}

func TestAuditTrailRecordsLifecycle(t *testing.T) {
	eng := newFakeEngine(func(path string, _ int) (*engine.Result, error) { return okResult(path) })
	_, st := startPool(t, eng, nil)

	job := testsupport.SeedJob(t, st, "/in", "forced", "/in/a.pdf")
	waitForJobStatus(t, st, job.ID, store.JobCompleted)

	trail, err := st.AuditForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("AuditForJob: %v", err)
	}
	seen := make(map[string]bool, len(trail))
	for _, event := range trail {
		seen[event.EventType] = true
	}
	for _, want := range []string{store.EventJobStarted, store.EventTaskStarted, store.EventTaskCompleted, store.EventJobCompleted} {
		if !seen[want] {
			t.Errorf("audit trail missing %s (got %v)", want, trail)
		}
	}
}
