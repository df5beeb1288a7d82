package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docket/internal/api"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func newFakeDaemon(t *testing.T) (*httptest.Server, *fakeDaemonState) {
	t.Helper()
	state := &fakeDaemonState{
		jobs: []api.JobView{
			{ID: "aaaa1111-0000-0000-0000-000000000000", Status: "completed", Mode: "fast", Languages: []string{"heb", "eng"}, SourcePath: "/in/a.pdf", CreatedAt: "2026-08-01T10:00:00.000Z"},
			{ID: "bbbb2222-0000-0000-0000-000000000000", Status: "running", Mode: "forced", Languages: []string{"eng"}, SourcePath: "/in/b", CreatedAt: "2026-08-01T11:00:00.000Z"},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeTestJSON(w, http.StatusOK, api.JobListResponse{Jobs: state.jobs})
		case http.MethodPost:
			state.lastAuth = r.Header.Get("Authorization")
			var payload api.SubmitPayload
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if payload.Path == "/missing.pdf" {
				writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "path does not exist: /missing.pdf"})
				return
			}
			state.submitted = append(state.submitted, payload)
			writeTestJSON(w, http.StatusCreated, api.JobResponse{Job: api.JobView{ID: "cccc3333", Status: "queued", Mode: "fast", SourcePath: payload.Path}})
		}
	})
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		jobID, action, _ := strings.Cut(rest, "/")
		switch {
		case action == "cancel":
			state.cancelled = append(state.cancelled, jobID)
			writeTestJSON(w, http.StatusOK, api.JobResponse{Job: api.JobView{ID: jobID, Status: "cancelling"}})
		case action == "history":
			writeTestJSON(w, http.StatusOK, api.HistoryResponse{Events: []api.AuditEventView{
				{ID: 1, JobID: jobID, EventType: "job_submitted", Detail: "1 files", CreatedAt: "2026-08-01T10:00:00.000Z"},
			}})
		default:
			for _, job := range state.jobs {
				if job.ID == jobID {
					writeTestJSON(w, http.StatusOK, api.SnapshotResponse{Snapshot: api.SnapshotView{
						Job:    job,
						Counts: api.TaskCountsView{Total: 2, Completed: 1, Failed: 1, Progress: 1},
						Tasks: []api.TaskView{
							{ID: "task-1", SourcePath: "/in/a.pdf", Status: "completed", Attempts: 1, Pages: 4, OutputPDF: "/out/ocr_output.pdf"},
							{ID: "task-2", SourcePath: "/in/b.pdf", Status: "failed", Attempts: 3, Error: "engine exited with status 3"},
						},
					}})
					return
				}
			}
			writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		}
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, api.StatusResponse{
			Running: true, PID: 42, Workers: 4,
			Jobs: api.JobStatsView{Total: 2, Queued: 0, Running: 1, Completed: 1},
		})
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", DatabaseExists: true, IntegrityCheck: true, TotalJobs: 2})
	})
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		state.metricsWindow = r.URL.Query().Get("window")
		writeTestJSON(w, http.StatusOK, api.MetricsResponse{
			Since:   "2026-08-01T00:00:00Z",
			Metrics: []api.MetricSummaryView{{Name: "task_duration_ms", Count: 3, Sum: 900, Min: 200, Max: 400, Avg: 300}},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, state
}

type fakeDaemonState struct {
	jobs          []api.JobView
	submitted     []api.SubmitPayload
	cancelled     []string
	lastAuth      string
	metricsWindow string
}

func writeTestJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func serverAddr(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://")
}

func TestJobsCommandRendersTable(t *testing.T) {
	server, _ := newFakeDaemon(t)

	out, err := executeCommand(t, "jobs", "--addr", serverAddr(server))
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	if !strings.Contains(out, "aaaa1111") || !strings.Contains(out, "completed") {
		t.Errorf("output missing job row:\n%s", out)
	}
	if !strings.Contains(out, "heb+eng") {
		t.Errorf("output missing languages:\n%s", out)
	}
}

func TestJobsCommandJSON(t *testing.T) {
	server, _ := newFakeDaemon(t)

	out, err := executeCommand(t, "jobs", "--addr", serverAddr(server), "--json")
	if err != nil {
		t.Fatalf("jobs --json: %v", err)
	}
	var decoded api.JobListResponse
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(decoded.Jobs) != 2 {
		t.Errorf("jobs = %+v", decoded.Jobs)
	}
}

func TestSubmitCommand(t *testing.T) {
	server, state := newFakeDaemon(t)

	out, err := executeCommand(t, "submit", "/in/new.pdf", "--mode", "forced", "--lang", "heb", "--recursive", "--addr", serverAddr(server), "--token", "sekrit")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(out, "queued") {
		t.Errorf("output = %q", out)
	}
	if len(state.submitted) != 1 || state.submitted[0].Mode != "forced" || state.submitted[0].Languages[0] != "heb" {
		t.Errorf("submitted = %+v", state.submitted)
	}
	if !state.submitted[0].Recursive {
		t.Error("recursive flag not forwarded in payload")
	}
	if state.lastAuth != "Bearer sekrit" {
		t.Errorf("auth header = %q", state.lastAuth)
	}
}

func TestSubmitCommandSurfacesDaemonError(t *testing.T) {
	server, _ := newFakeDaemon(t)

	_, err := executeCommand(t, "submit", "/missing.pdf", "--addr", serverAddr(server))
	if err == nil || !strings.Contains(err.Error(), "path does not exist") {
		t.Fatalf("err = %v", err)
	}
}

func TestShowCommandResolvesPrefix(t *testing.T) {
	server, _ := newFakeDaemon(t)

	out, err := executeCommand(t, "show", "aaaa", "--addr", serverAddr(server))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "aaaa1111-0000-0000-0000-000000000000") {
		t.Errorf("output missing full job id:\n%s", out)
	}
	if !strings.Contains(out, "2/2 done (1 failed, 0 skipped)") {
		t.Errorf("output missing progress:\n%s", out)
	}
	if !strings.Contains(out, "engine exited with status 3") {
		t.Errorf("output missing task error:\n%s", out)
	}
}

func TestCancelCommand(t *testing.T) {
	server, state := newFakeDaemon(t)

	out, err := executeCommand(t, "cancel", "bbbb", "--addr", serverAddr(server))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(out, "draining") {
		t.Errorf("output = %q", out)
	}
	if len(state.cancelled) != 1 || state.cancelled[0] != "bbbb2222-0000-0000-0000-000000000000" {
		t.Errorf("cancelled = %v", state.cancelled)
	}
}

func TestStatusCommand(t *testing.T) {
	server, _ := newFakeDaemon(t)

	out, err := executeCommand(t, "status", "--addr", serverAddr(server))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "running (pid 42, 4 workers)") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "healthy (2 jobs)") {
		t.Errorf("output = %q", out)
	}
}

func TestMetricsCommandPassesWindow(t *testing.T) {
	server, state := newFakeDaemon(t)

	out, err := executeCommand(t, "metrics", "--window", "2h", "--addr", serverAddr(server))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if state.metricsWindow != "2h" {
		t.Errorf("window = %q", state.metricsWindow)
	}
	if !strings.Contains(out, "task_duration_ms") {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryCommand(t *testing.T) {
	server, _ := newFakeDaemon(t)

	out, err := executeCommand(t, "history", "aaaa", "--addr", serverAddr(server))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "job_submitted") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := executeCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[processing]") {
		t.Errorf("sample config missing sections")
	}

	// A second init against the same path must refuse to overwrite.
	if _, err := executeCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected overwrite refusal")
	}
}

func TestConfigShowCommand(t *testing.T) {
	out, err := executeCommand(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "[processing]") || !strings.Contains(out, "max_concurrent_tasks") {
		t.Errorf("output missing sections:\n%s", out)
	}
}

func TestResolveJobIDAmbiguous(t *testing.T) {
	server, state := newFakeDaemon(t)
	state.jobs = append(state.jobs, api.JobView{ID: "aaaa9999-0000-0000-0000-000000000000", Status: "queued"})

	_, err := executeCommand(t, "show", "aaaa", "--addr", serverAddr(server))
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderHelpers(t *testing.T) {
	if got := shortID("aaaa1111-0000"); got != "aaaa1111" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("ab"); got != "ab" {
		t.Errorf("shortID = %q", got)
	}
	line := renderStatusLine("Daemon", statusOK, "running", false)
	if !strings.Contains(line, "[OK] running") {
		t.Errorf("line = %q", line)
	}
	colored := renderStatusLine("Daemon", statusError, "down", true)
	if !strings.HasPrefix(colored, ansiRed) {
		t.Errorf("colored = %q", colored)
	}
	if kind := jobStatusKind("failed"); kind != statusError {
		t.Errorf("kind = %v", kind)
	}
}
