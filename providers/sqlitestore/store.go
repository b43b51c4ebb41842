// Package sqlitestore keeps settings documents in a SQLite database. Every
// save adds a revision; Load returns the latest one.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/settings"
)

const schema = `
	CREATE TABLE IF NOT EXISTS settings_revisions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (name, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_settings_revisions_name ON settings_revisions(name, seq DESC);
`

// Revision describes one saved version of a document.
type Revision struct {
	ID        string
	Name      string
	Seq       int
	Size      int
	CreatedAt time.Time
}

// Store implements settings.Store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ settings.Store = (*Store)(nil)

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory '%s': %w", filepath.Dir(path), err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at '%s': %w", path, err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection test failed for '%s': %w", path, err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a Store on an open database, creating the schema if needed.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, classify.NewInvalidConfigurationError("database cannot be nil")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize settings schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Kind() string { return "sqlite" }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, name string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM settings_revisions
		WHERE name = ?
		ORDER BY seq DESC
		LIMIT 1
	`, name)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settings.NewNotFoundError(name)
		}
		return nil, fmt.Errorf("failed to load settings '%s': %w", name, err)
	}
	return data, nil
}

// Save records data as the newest revision of name.
func (s *Store) Save(ctx context.Context, name string, data []byte) error {
	_, err := s.SaveRevision(ctx, name, data)
	return err
}

// SaveRevision is Save returning the revision it created.
func (s *Store) SaveRevision(ctx context.Context, name string, data []byte) (Revision, error) {
	if data == nil {
		data = []byte{}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Revision{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM settings_revisions WHERE name = ?
	`, name).Scan(&seq)
	if err != nil {
		return Revision{}, fmt.Errorf("failed to get next revision of '%s': %w", name, err)
	}

	rev := Revision{
		ID:        uuid.NewString(),
		Name:      name,
		Seq:       seq,
		Size:      len(data),
		CreatedAt: s.now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings_revisions (id, name, seq, data, created_at) VALUES (?, ?, ?, ?, ?)
	`, rev.ID, rev.Name, rev.Seq, data, rev.CreatedAt.UnixNano())
	if err != nil {
		return Revision{}, fmt.Errorf("failed to record revision of '%s': %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return Revision{}, fmt.Errorf("failed to commit revision of '%s': %w", name, err)
	}
	return rev, nil
}

// Delete removes every revision of name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings_revisions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete settings '%s': %w", name, err)
	}
	return nil
}

// Revisions lists the revisions of name, newest first.
func (s *Store) Revisions(ctx context.Context, name string) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, seq, LENGTH(data), created_at FROM settings_revisions
		WHERE name = ?
		ORDER BY seq DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions of '%s': %w", name, err)
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var rev Revision
		var created int64
		if err := rows.Scan(&rev.ID, &rev.Name, &rev.Seq, &rev.Size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		rev.CreatedAt = time.Unix(0, created).UTC()
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

// LoadRevision returns the document saved by the revision id.
func (s *Store) LoadRevision(ctx context.Context, id string) ([]byte, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid revision id '%s'", classify.ErrInvalidConfiguration, id)
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings_revisions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, settings.NewNotFoundError("revision " + id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load revision '%s': %w", id, err)
	}
	return data, nil
}

// Prune deletes all but the keep newest revisions of name and returns how
// many were deleted.
func (s *Store) Prune(ctx context.Context, name string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("%w: keep must be at least 1, got %d", classify.ErrInvalidConfiguration, keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM settings_revisions
		WHERE name = ? AND seq <= (SELECT COALESCE(MAX(seq), 0) FROM settings_revisions WHERE name = ?) - ?
	`, name, name, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune settings '%s': %w", name, err)
	}
	return res.RowsAffected()
}
