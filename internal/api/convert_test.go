package api_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"docket/internal/api"
	"docket/internal/store"
)

func TestFromJob(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	started := created.Add(2 * time.Second)
	job := &store.Job{
		ID:         "job-1",
		SourcePath: "/in/scans",
		Mode:       "fast",
		Languages:  []string{"heb", "eng"},
		Status:     store.JobRunning,
		CreatedAt:  created,
		UpdatedAt:  started,
		StartedAt:  &started,
	}

	view := api.FromJob(job)
	if view.Status != "running" {
		t.Errorf("status = %q", view.Status)
	}
	if view.CreatedAt != "2026-03-14T09:26:53.589Z" {
		t.Errorf("createdAt = %q", view.CreatedAt)
	}
	if view.FinishedAt != "" {
		t.Errorf("finishedAt should be empty, got %q", view.FinishedAt)
	}

	payload, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(payload), "finishedAt") {
		t.Errorf("unset timestamp serialized: %s", payload)
	}
	if !strings.Contains(string(payload), `"sourcePath":"/in/scans"`) {
		t.Errorf("payload = %s", payload)
	}
}

func TestFromSnapshotCountsAndTasks(t *testing.T) {
	now := time.Now().UTC()
	snapshot := &store.Snapshot{
		Job: &store.Job{ID: "job-1", Status: store.JobRunning, CreatedAt: now, UpdatedAt: now},
		Counts: store.TaskCounts{
			Total:     4,
			Completed: 1,
			Skipped:   1,
			Pending:   2,
		},
		Tasks: []*store.Task{
			{ID: "t1", SourcePath: "/in/a.pdf", Status: store.TaskCompleted, Pages: 3},
			{ID: "t2", SourcePath: "/in/b.pdf", Status: store.TaskPending},
		},
	}

	view := api.FromSnapshot(snapshot)
	if view.Counts.Progress != 0.5 {
		t.Errorf("progress = %v", view.Counts.Progress)
	}
	if len(view.Tasks) != 2 || view.Tasks[0].Pages != 3 {
		t.Errorf("tasks = %+v", view.Tasks)
	}
}

func TestFromMetricSummaries(t *testing.T) {
	views := api.FromMetricSummaries([]store.MetricSummary{
		{Name: store.MetricTaskDuration, Count: 2, Sum: 300, Min: 100, Max: 200, Avg: 150},
	})
	if len(views) != 1 || views[0].Avg != 150 {
		t.Fatalf("views = %+v", views)
	}
}

func TestFromJobsPreservesOrder(t *testing.T) {
	jobs := []*store.Job{
		{ID: "a", Status: store.JobQueued},
		{ID: "b", Status: store.JobCompleted},
	}
	views := api.FromJobs(jobs)
	if len(views) != 2 || views[0].ID != "a" || views[1].ID != "b" {
		t.Fatalf("views = %+v", views)
	}
}
