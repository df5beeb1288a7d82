package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docket/internal/language"
)

// querier abstracts *sql.DB and *sql.Tx for read helpers, so snapshot
// queries can run inside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const jobColumns = "id, source_path, mode, languages, status, output_dir, error_message, created_at, updated_at, started_at, finished_at"

const taskColumns = "id, job_id, seq, source_path, status, attempts, error_kind, error_message, output_pdf, output_text, output_hocr, pages, duration_ms, created_at, updated_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		id           string
		sourcePath   string
		mode         string
		languages    string
		statusStr    string
		outputDir    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&mode,
		&languages,
		&statusStr,
		&outputDir,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		SourcePath:   sourcePath,
		Mode:         mode,
		Languages:    language.ParseSet(languages),
		Status:       JobStatus(statusStr),
		OutputDir:    outputDir.String,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	return job, nil
}

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		id           string
		jobID        string
		seq          int
		sourcePath   string
		statusStr    string
		attempts     int
		errorKind    sql.NullString
		errorMessage sql.NullString
		outputPDF    sql.NullString
		outputText   sql.NullString
		outputHOCR   sql.NullString
		pages        sql.NullInt64
		durationMS   sql.NullInt64
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&seq,
		&sourcePath,
		&statusStr,
		&attempts,
		&errorKind,
		&errorMessage,
		&outputPDF,
		&outputText,
		&outputHOCR,
		&pages,
		&durationMS,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		JobID:        jobID,
		Seq:          seq,
		SourcePath:   sourcePath,
		Status:       TaskStatus(statusStr),
		Attempts:     attempts,
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
		OutputPDF:    outputPDF.String,
		OutputText:   outputText.String,
		OutputHOCR:   outputHOCR.String,
		Pages:        int(pages.Int64),
		DurationMS:   durationMS.Int64,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
