package pdfinfo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPageCountRejectsGarbage(t *testing.T) {
	// WHAT: Non-PDF bytes yield an error, not a bogus count.
	// WHY: The guard must be best-effort; unknown counts let the pipeline proceed.
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a.pdf")
	if err := os.WriteFile(path, []byte("<html>this is not a pdf</html>"), 0o600); err != nil {
		t.Fatal(err)
	}

	if n, err := PageCount(path); err == nil {
		t.Errorf("expected error for non-PDF input, got count %d", n)
	}
}

func TestPageCountMissingFile(t *testing.T) {
	if _, err := PageCount(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}
