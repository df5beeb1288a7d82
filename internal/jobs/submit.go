package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docket/internal/engine"
	"docket/internal/faults"
	"docket/internal/fileutil"
	"docket/internal/language"
	"docket/internal/logging"
	"docket/internal/store"
)

// SubmitRequest describes a new submission. Mode and Languages fall
// back to the configured defaults when empty. Recursive controls
// whether a directory submission descends into subdirectories; when
// false only the directory's own files are considered.
type SubmitRequest struct {
	Path      string
	Mode      string
	Languages []string
	Recursive bool
}

// Submit validates a submission, expands directories into file tasks,
// archives originals when an archive directory is configured, and
// enqueues the job.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*store.Job, error) {
	sourcePath, err := filepath.Abs(strings.TrimSpace(req.Path))
	if err != nil || strings.TrimSpace(req.Path) == "" {
		return nil, faults.Wrap(faults.ErrInvalidInput, "jobs", "submit", "submission path required", err)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "jobs", "submit",
				fmt.Sprintf("path does not exist: %s", sourcePath), err)
		}
		return nil, faults.Wrap(faults.ErrInvalidInput, "jobs", "submit", "stat submission path", err)
	}

	modeValue := strings.TrimSpace(req.Mode)
	if modeValue == "" {
		modeValue = m.cfg.Processing.DefaultMode
	}
	mode, ok := engine.ParseMode(modeValue)
	if !ok {
		return nil, faults.Wrap(faults.ErrInvalidInput, "jobs", "submit",
			fmt.Sprintf("unknown mode %q", req.Mode), nil)
	}

	languages := language.NormalizeSet(req.Languages)
	if len(languages) == 0 {
		languages = m.cfg.Processing.DefaultLanguages
	}

	var files []string
	var excluded int
	if info.IsDir() {
		files, excluded, err = m.discoverFiles(sourcePath, req.Recursive)
		if err != nil {
			return nil, err
		}
	} else {
		if err := m.validateFile(sourcePath, info.Size()); err != nil {
			return nil, err
		}
		files = []string{sourcePath}
	}

	archived, err := m.archiveFiles(files)
	if err != nil {
		return nil, err
	}

	job := &store.Job{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		Mode:       string(mode),
		Languages:  languages,
		Status:     store.JobQueued,
	}
	if err := m.store.UpsertJob(ctx, job); err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, "jobs", "submit", "insert job", err)
	}

	tasks := make([]*store.Task, 0, len(files))
	for _, file := range files {
		tasks = append(tasks, &store.Task{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			SourcePath: file,
			Status:     store.TaskPending,
		})
	}
	if err := m.store.InsertTasks(ctx, tasks); err != nil {
		return nil, faults.Wrap(faults.ErrPersistence, "jobs", "submit", "insert tasks", err)
	}

	detail := fmt.Sprintf("%d files", len(files))
	if excluded > 0 {
		detail = fmt.Sprintf("%d files (%d excluded)", len(files), excluded)
	}
	m.audit(ctx, job.ID, store.EventJobSubmitted, detail)
	if archived > 0 {
		m.audit(ctx, job.ID, store.EventFileArchived, fmt.Sprintf("%d files archived", archived))
	}
	m.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldMode, job.Mode),
		logging.String(logging.FieldSource, sourcePath),
		logging.Int("files", len(files)),
		logging.Int("excluded", excluded),
	)
	return job, nil
}

// discoverFiles walks a directory and keeps files matching the allowed
// extensions and size limit. Walk order is lexical, so task order is
// deterministic. Files excluded by the filters are counted, not errors.
// Without recursive, subdirectories are pruned from the walk.
func (m *Manager) discoverFiles(root string, recursive bool) ([]string, int, error) {
	var files []string
	excluded := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if !recursive && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !m.extensionAllowed(path) {
			excluded++
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.Size() > m.cfg.MaxFileSizeBytes() {
			excluded++
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, 0, faults.Wrap(faults.ErrInvalidInput, "jobs", "submit", "scan directory", err)
	}
	return files, excluded, nil
}

func (m *Manager) validateFile(path string, size int64) error {
	if !m.extensionAllowed(path) {
		return faults.Wrap(faults.ErrInvalidInput, "jobs", "submit",
			fmt.Sprintf("extension not allowed: %s", filepath.Ext(path)), nil)
	}
	if size > m.cfg.MaxFileSizeBytes() {
		return faults.Wrap(faults.ErrInvalidInput, "jobs", "submit",
			fmt.Sprintf("file exceeds size limit of %d MiB", m.cfg.Processing.MaxFileSizeMiB), nil)
	}
	return nil
}

func (m *Manager) extensionAllowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range m.cfg.Processing.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// archiveFiles copies originals into the archive directory before any
// processing touches them. An existing archive copy with identical
// bytes is reused; a name collision with different bytes gets a unique
// suffix.
func (m *Manager) archiveFiles(files []string) (int, error) {
	archiveDir := strings.TrimSpace(m.cfg.Paths.ArchiveDir)
	if archiveDir == "" || len(files) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, faults.Wrap(faults.ErrInvalidInput, "jobs", "submit", "create archive directory", err)
	}

	archived := 0
	for _, file := range files {
		target := filepath.Join(archiveDir, filepath.Base(file))
		if _, err := os.Stat(target); err == nil {
			same, err := fileutil.SameContents(file, target)
			if err != nil {
				return archived, faults.Wrap(faults.ErrInvalidInput, "jobs", "submit", "compare archive copy", err)
			}
			if same {
				continue
			}
			base := filepath.Base(file)
			ext := filepath.Ext(base)
			stem := strings.TrimSuffix(base, ext)
			target = filepath.Join(archiveDir, fmt.Sprintf("%s_%s%s", stem, uuid.NewString()[:8], ext))
		}
		if err := fileutil.CopyFileVerified(file, target); err != nil {
			return archived, faults.Wrap(faults.ErrInvalidInput, "jobs", "submit",
				fmt.Sprintf("archive %s", file), err)
		}
		archived++
	}
	return archived, nil
}
