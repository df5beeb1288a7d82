package engine

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// HasText reports whether a document already contains at least minChars
// extractable text characters. Fast mode uses this to skip files that
// were recognized before.
func HasText(path string, minChars int) (bool, error) {
	if minChars <= 0 {
		minChars = 1
	}
	f, reader, err := pdf.Open(path)
	if err != nil {
		return false, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	plain, err := reader.GetPlainText()
	if err != nil {
		return false, fmt.Errorf("extract text: %w", err)
	}
	if _, err := buf.ReadFrom(plain); err != nil {
		return false, fmt.Errorf("read text: %w", err)
	}

	count := 0
	for _, r := range buf.String() {
		if strings.ContainsRune(" \t\r\n\f\v", r) {
			continue
		}
		count++
		if count >= minChars {
			return true, nil
		}
	}
	return false, nil
}

// PageCount returns the number of pages in a document.
func PageCount(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}
