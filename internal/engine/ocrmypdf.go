package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"docket/internal/faults"
	"docket/internal/language"
)

var commandContext = exec.CommandContext

// Output file names inside a task's output directory.
const (
	OutputPDFName  = "ocr_output.pdf"
	OutputTextName = "ocr_output.txt"
	OutputHOCRName = "ocr_output.hocr"
)

// ocrmypdf exit codes that need distinct handling.
const (
	exitBadArgs       = 1
	exitInputFile     = 2
	exitMissingDep    = 3
	exitAlreadyHasOCR = 6
	exitEncrypted     = 8
	exitBadConfig     = 9
)

// Option configures the CLI engine.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithTimeout sets the per-file processing timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// CLI wraps the ocrmypdf command-line recognizer.
type CLI struct {
	binary  string
	timeout time.Duration
}

// NewCLI constructs a CLI engine using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ocrmypdf", timeout: 10 * time.Minute}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Process runs the recognizer on one file and collects its artifacts.
func (c *CLI) Process(ctx context.Context, req Request) (*Result, error) {
	if req.InputPath == "" {
		return nil, faults.Wrap(faults.ErrInvalidInput, "engine", "process", "input path required", nil)
	}
	if req.OutputDir == "" {
		return nil, faults.Wrap(faults.ErrInvalidInput, "engine", "process", "output directory required", nil)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrEngineTerminal, "engine", "process", "create output directory", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	outputPDF := filepath.Join(req.OutputDir, OutputPDFName)
	outputText := filepath.Join(req.OutputDir, OutputTextName)

	cmd := commandContext(runCtx, c.binary, buildArgs(req, outputPDF, outputText)...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, faults.Wrap(faults.ErrTimeout, "engine", "process",
			fmt.Sprintf("recognition exceeded %s", c.timeout), runCtx.Err())
	}
	if err != nil {
		return c.classifyFailure(err, stderr.String())
	}

	result := &Result{OutputPDF: outputPDF, OutputText: outputText}
	if hocr := filepath.Join(req.OutputDir, OutputHOCRName); fileExists(hocr) {
		result.OutputHOCR = hocr
	}
	if pages, err := PageCount(outputPDF); err == nil {
		result.Pages = pages
	}
	return result, nil
}

func buildArgs(req Request, outputPDF, outputText string) []string {
	args := []string{
		"--language", language.JoinSet(req.Languages),
		"--sidecar", outputText,
		"--output-type", "pdf",
	}
	switch req.Mode {
	case ModeForced:
		args = append(args, "--force-ocr")
	case ModeVisual:
		args = append(args, "--redo-ocr")
	default:
		args = append(args, "--skip-text")
	}
	return append(args, req.InputPath, outputPDF)
}

func (c *CLI) classifyFailure(err error, stderr string) (*Result, error) {
	detail := tail(stderr, 500)
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, faults.Wrap(faults.ErrEngineTerminal, "engine", "process",
			fmt.Sprintf("launch %s", c.binary), err)
	}

	switch exitErr.ExitCode() {
	case exitAlreadyHasOCR:
		// Not a failure: the file already carries a text layer.
		return &Result{PriorTextFound: true}, nil
	case exitBadArgs, exitInputFile, exitEncrypted, exitMissingDep, exitBadConfig:
		// Corrupt, encrypted, or otherwise unprocessable files fail
		// terminally; retrying cannot change the outcome.
		return nil, faults.Wrap(faults.ErrEngineTerminal, "engine", "process", detail, err)
	default:
		return nil, faults.Wrap(faults.ErrEngineTransient, "engine", "process", detail, err)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

var _ Engine = (*CLI)(nil)
