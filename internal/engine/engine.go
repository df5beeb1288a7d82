// Package engine wraps the external recognition binary behind a small
// interface so the worker pool can be tested without shelling out.
package engine

import (
	"context"
	"strings"
)

// Mode selects how the engine treats pages that already carry a text layer.
type Mode string

const (
	// ModeFast skips files and pages that already have extractable text.
	ModeFast Mode = "fast"
	// ModeForced rasterizes and re-recognizes every page.
	ModeForced Mode = "forced"
	// ModeVisual redoes recognition while preserving the page images.
	ModeVisual Mode = "visual"
)

// ParseMode converts a string into a known Mode.
func ParseMode(value string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeFast:
		return ModeFast, true
	case ModeForced:
		return ModeForced, true
	case ModeVisual:
		return ModeVisual, true
	}
	return "", false
}

// Request describes one file to process.
type Request struct {
	InputPath string
	OutputDir string
	Mode      Mode
	Languages []string
}

// Result captures the artifacts produced for one file.
type Result struct {
	OutputPDF  string
	OutputText string
	OutputHOCR string
	Pages      int
	// PriorTextFound is set when the engine declined to process the
	// file because it already carries a text layer.
	PriorTextFound bool
}

// Engine defines recognition behaviour.
type Engine interface {
	Process(ctx context.Context, req Request) (*Result, error)
}
