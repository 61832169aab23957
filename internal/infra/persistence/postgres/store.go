// Package postgres provides a Postgres-backed entry store that mirrors the
// in-memory semantics and writes one JSONB row per subject.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"timelines/internal/infra/persistence/memory"
	"timelines/pkg/domain"
)

var _ domain.EntryStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/timelines?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists subjects to Postgres while reusing the in-memory store as
// the working set.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to
// defaultDSN), ensures the state table exists and hydrates from it.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// Apply commits changes in memory and then upserts the subject row. A failed
// write restores the previous in-memory entries.
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

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS subject_state (
		subject TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT subject, payload FROM subject_state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{}
	for rows.Next() {
		var subject string
		var payload []byte
		if err := rows.Scan(&subject, &payload); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var entries []domain.Entry
		if err := json.Unmarshal(payload, &entries); err != nil {
			return nil, fmt.Errorf("decode %s: %w", subject, err)
		}
		snapshot[subject] = entries
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, subject string) error {
	entries := s.Entries(subject)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if len(entries) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subject_state WHERE subject = $1`, subject); err != nil {
			return fmt.Errorf("delete %s: %w", subject, err)
		}
	} else {
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO subject_state(subject,payload) VALUES($1,$2) ON CONFLICT(subject) DO UPDATE SET payload=EXCLUDED.payload`, subject, data); err != nil {
			return fmt.Errorf("upsert %s: %w", subject, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
