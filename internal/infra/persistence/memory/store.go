// Package memory provides an in-memory entry store used for tests, ephemeral
// environments and as the working set of the snapshotting SQL stores.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"timelines/pkg/domain"
)

var _ domain.EntryStore = (*Store)(nil)

// Snapshot is the full store content keyed by subject.
type Snapshot map[string][]domain.Entry

// Store keeps entries per subject, indexed by identity.
type Store struct {
	mu       sync.RWMutex
	subjects map[string]map[string]domain.Entry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{subjects: make(map[string]map[string]domain.Entry)}
}

// Load returns the subject's entries ordered by timeline key then start.
// An unknown subject yields no entries.
func (s *Store) Load(_ context.Context, subject string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEntries(s.subjects[subject]), nil
}

// Subjects lists subjects holding at least one entry, sorted.
func (s *Store) Subjects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.subjects)), nil
}

// Apply validates every change against the current state before touching
// it, so a failing change set leaves the subject unchanged. Inserting a known
// identity fails with domain.ErrConflict; updating or deleting an unknown one
// fails with domain.ErrNotFound.
func (s *Store) Apply(_ context.Context, subject string, changes domain.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.subjects[subject]
	if err := validateRows(rows, changes); err != nil {
		return fmt.Errorf("apply %s: %w", subject, err)
	}
	if changes.IsEmpty() {
		return nil
	}
	if rows == nil {
		rows = make(map[string]domain.Entry)
		s.subjects[subject] = rows
	}
	for _, id := range changes.Deleted {
		delete(rows, id)
	}
	for _, e := range changes.Updated {
		rows[e.Identity()] = e.Copy()
	}
	for _, e := range changes.Inserted {
		rows[e.Identity()] = e.Copy()
	}
	if len(rows) == 0 {
		delete(s.subjects, subject)
	}
	return nil
}

// Validate checks changes against a subject's current entries using the same
// rules as Apply.
func Validate(current []domain.Entry, changes domain.ChangeSet) error {
	rows := make(map[string]domain.Entry, len(current))
	for _, e := range current {
		rows[e.Identity()] = e
	}
	return validateRows(rows, changes)
}

func validateRows(rows map[string]domain.Entry, changes domain.ChangeSet) error {
	seen := make(map[string]struct{}, changes.Len())
	claim := func(id string) error {
		if id == "" {
			return fmt.Errorf("entry without identity")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("identity %s changed twice: %w", id, domain.ErrConflict)
		}
		seen[id] = struct{}{}
		return nil
	}
	for _, id := range changes.Deleted {
		if err := claim(id); err != nil {
			return err
		}
		if _, ok := rows[id]; !ok {
			return fmt.Errorf("delete %s: %w", id, domain.ErrNotFound)
		}
	}
	for _, e := range changes.Updated {
		if err := claim(e.Identity()); err != nil {
			return err
		}
		if _, ok := rows[e.Identity()]; !ok {
			return fmt.Errorf("update %s: %w", e.Identity(), domain.ErrNotFound)
		}
	}
	for _, e := range changes.Inserted {
		if err := claim(e.Identity()); err != nil {
			return err
		}
		if _, ok := rows[e.Identity()]; ok {
			return fmt.Errorf("insert %s: %w", e.Identity(), domain.ErrConflict)
		}
	}
	return nil
}

// Entries is Load without a context, for persistence layers wrapping the
// store.
func (s *Store) Entries(subject string) []domain.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEntries(s.subjects[subject])
}

// ReplaceSubject swaps the subject's entries wholesale. An empty slice
// removes the subject.
func (s *Store) ReplaceSubject(subject string, entries []domain.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(subject, entries)
}

func (s *Store) replace(subject string, entries []domain.Entry) {
	if len(entries) == 0 {
		delete(s.subjects, subject)
		return
	}
	rows := make(map[string]domain.Entry, len(entries))
	for _, e := range entries {
		rows[e.Identity()] = e.Copy()
	}
	s.subjects[subject] = rows
}

// ExportState clones the current content for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.subjects))
	for subject, rows := range s.subjects {
		out[subject] = sortedEntries(rows)
	}
	return out
}

// ImportState replaces the whole content with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = make(map[string]map[string]domain.Entry, len(snapshot))
	for subject, entries := range snapshot {
		s.replace(subject, entries)
	}
}

func sortedEntries(rows map[string]domain.Entry) []domain.Entry {
	out := make([]domain.Entry, 0, len(rows))
	for _, e := range rows {
		out = append(out, e.Copy())
	}
	SortEntries(out)
	return out
}

// SortEntries orders entries by timeline key, start and identity.
func SortEntries(out []domain.Entry) {
	slices.SortFunc(out, func(a, b domain.Entry) int {
		return cmp.Or(
			cmp.Compare(a.TimelineKey(), b.TimelineKey()),
			a.Period().Start.Compare(b.Period().Start),
			cmp.Compare(a.Identity(), b.Identity()),
		)
	})
}
