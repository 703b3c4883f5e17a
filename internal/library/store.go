// Package library persists ingested sources so callers can rebuild their
// document collection after a restart.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sourcelens/ingestion-service/internal/types"
)

// ErrNotFound is returned when a source id does not exist.
var ErrNotFound = errors.New("source not found")

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id                TEXT PRIMARY KEY,
	filename          TEXT NOT NULL,
	type              TEXT NOT NULL,
	content           TEXT NOT NULL,
	processing_method TEXT NOT NULL,
	page_count        INTEGER NOT NULL DEFAULT 0,
	file_size         INTEGER NOT NULL DEFAULT 0,
	thumbnail_url     TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_created_at ON sources(created_at);
`

// Source is a stored extraction result plus identity and timestamp.
type Source struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	types.ExtractionResult
}

// Store wraps the sqlite database holding the source library.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the library database and applies the
// schema. WAL mode keeps concurrent reads cheap while one writer runs.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save stores an extraction result and returns it with its new identity.
func (s *Store) Save(ctx context.Context, res types.ExtractionResult) (Source, error) {
	src := Source{
		ID:               uuid.NewString(),
		CreatedAt:        time.Now().UTC(),
		ExtractionResult: res,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, filename, type, content, processing_method,
			page_count, file_size, thumbnail_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Filename, src.Type, src.Content, src.ProcessingMethod,
		src.PageCount, src.FileSize, src.ThumbnailURL,
		src.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Source{}, fmt.Errorf("save source: %w", err)
	}
	return src, nil
}

// List returns all sources, newest first. Content is included; callers that
// only need metadata can ignore it.
func (s *Store) List(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, type, content, processing_method,
			page_count, file_size, thumbnail_url, created_at
		FROM sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := []Source{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// Get returns one source by id.
func (s *Store) Get(ctx context.Context, id string) (Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, type, content, processing_method,
			page_count, file_size, thumbnail_url, created_at
		FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, ErrNotFound
	}
	return src, err
}

// Delete removes one source by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (Source, error) {
	var src Source
	var createdAt string
	err := row.Scan(&src.ID, &src.Filename, &src.Type, &src.Content,
		&src.ProcessingMethod, &src.PageCount, &src.FileSize,
		&src.ThumbnailURL, &createdAt)
	if err != nil {
		return Source{}, err
	}
	if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
		src.CreatedAt = ts
	}
	return src, nil
}
