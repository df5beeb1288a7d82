package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"docket/internal/config"
	"docket/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedJob inserts a queued job with tasks for the given file paths.
func SeedJob(t testing.TB, st *store.Store, sourcePath, mode string, filePaths ...string) *store.Job {
	t.Helper()

	job := &store.Job{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		Mode:       mode,
		Languages:  []string{"heb", "eng"},
		Status:     store.JobQueued,
	}
	if err := st.InsertJob(context.Background(), job); err != nil {
		t.Fatalf("store.InsertJob: %v", err)
	}

	tasks := make([]*store.Task, 0, len(filePaths))
	for _, path := range filePaths {
		tasks = append(tasks, &store.Task{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			SourcePath: path,
			Status:     store.TaskPending,
		})
	}
	if err := st.InsertTasks(context.Background(), tasks); err != nil {
		t.Fatalf("store.InsertTasks: %v", err)
	}
	return job
}
