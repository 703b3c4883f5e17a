// Package pdfinfo inspects PDF structure cheaply, without full extraction.
package pdfinfo

import (
	"fmt"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount determines a PDF's page count using a cheap structural parse.
// pdfcpu is tried first; if it cannot read the file, the ledongthuc reader is
// tried as a second opinion. An error from both means the count is unknown —
// callers treat the guard as best-effort and proceed.
func PageCount(path string) (int, error) {
	if n, err := api.PageCountFile(path); err == nil && n > 0 {
		return n, nil
	}

	f, r, err := ledongthuc.Open(path)
	if err != nil {
		return 0, fmt.Errorf("page count unavailable: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("page count unavailable: reader reported %d pages", n)
	}
	return n, nil
}
