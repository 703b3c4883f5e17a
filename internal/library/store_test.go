package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sourcelens/ingestion-service/internal/types"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult() types.ExtractionResult {
	return types.ExtractionResult{
		Content:          "extracted body text",
		Filename:         "report.pdf",
		Type:             "application/pdf",
		ProcessingMethod: types.MethodPDFToText,
		PageCount:        3,
		FileSize:         1024,
		ThumbnailURL:     "data:image/jpeg;base64,AAAA",
	}
}

func TestSaveAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID == "" {
		t.Fatal("saved source has no id")
	}
	if saved.CreatedAt.IsZero() {
		t.Fatal("saved source has no timestamp")
	}

	got, err := s.Get(ctx, saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "report.pdf" || got.Content != "extracted body text" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.PageCount != 3 || got.FileSize != 1024 {
		t.Errorf("metadata mismatch: %+v", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	first := sampleResult()
	first.Filename = "first.pdf"
	second := sampleResult()
	second.Filename = "second.pdf"

	if _, err := s.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, second); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("listed %d sources, want 2", len(all))
	}
	if all[0].Filename != "second.pdf" {
		t.Errorf("first listed = %q, want newest first", all[0].Filename)
	}
}

func TestGetMissing(t *testing.T) {
	s := setupStore(t)
	if _, err := s.Get(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, saved.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted source still present: %v", err)
	}
	if err := s.Delete(ctx, saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestListEmpty(t *testing.T) {
	s := setupStore(t)
	all, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if all == nil || len(all) != 0 {
		t.Errorf("empty list = %#v, want non-nil empty slice", all)
	}
}
