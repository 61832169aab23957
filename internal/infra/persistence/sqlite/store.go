// Package sqlite provides a snapshotting entry store backed by a single
// SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"timelines/internal/infra/persistence/memory"
	"timelines/pkg/domain"
)

var _ domain.EntryStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "timelines.db"

// Store keeps the working set in memory and writes the affected subject's
// entries to SQLite as a JSON blob after every successful Apply.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS subject_state (
		subject TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT subject, payload FROM subject_state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{}
	for rows.Next() {
		var subject string
		var payload []byte
		if err := rows.Scan(&subject, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var entries []domain.Entry
		if err := json.Unmarshal(payload, &entries); err != nil {
			return fmt.Errorf("decode %s: %w", subject, err)
		}
		snapshot[subject] = entries
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// Apply commits changes in memory, then persists the subject. When the write
// fails the in-memory subject is restored.
func (s *Store) Apply(ctx context.Context, subject string, changes domain.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.Entries(subject)
	if err := s.Store.Apply(ctx, subject, changes); err != nil {
		return err
	}
	if changes.IsEmpty() {
		return nil
	}
	if err := s.persist(ctx, subject); err != nil {
		s.ReplaceSubject(subject, prev)
		return err
	}
	return nil
}

func (s *Store) persist(ctx context.Context, subject string) (retErr error) {
	entries := s.Entries(subject)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if len(entries) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subject_state WHERE subject = ?`, subject); err != nil {
			return fmt.Errorf("delete %s: %w", subject, err)
		}
	} else {
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO subject_state(subject,payload) VALUES(?,?) ON CONFLICT(subject) DO UPDATE SET payload=excluded.payload`, subject, data); err != nil {
			return fmt.Errorf("upsert %s: %w", subject, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
