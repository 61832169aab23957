// Package storetest holds the behavioural contract every domain.EntryStore
// backend must satisfy.
package storetest

import (
	"context"
	"errors"
	"testing"

	"timelines/pkg/domain"
	"timelines/pkg/period"
)

// Entry builds a stored entry with identity id.
func Entry(id, key, start, end string, attrs map[string]string) domain.Entry {
	e := domain.NewEntry(key, period.MustParse(start, end), attrs)
	e.SetIdentity(id)
	return *e
}

// Run exercises store, which must start empty.
func Run(t *testing.T, store domain.EntryStore) {
	t.Helper()
	ctx := context.Background()

	entries, err := store.Load(ctx, "nobody")
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty load, got %v err=%v", entries, err)
	}

	a := Entry("id-a", "home", "2008-01-01", "2008-05-10", map[string]string{"number": "444-5555"})
	b := Entry("id-b", "home", "2008-06-04", "2008-07-22", map[string]string{"number": "555-6666"})
	c := Entry("id-c", "work", "2008-01-01", "", map[string]string{"number": "222-3333"})
	if err := store.Apply(ctx, "bill", domain.ChangeSet{Inserted: []domain.Entry{b, a, c}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Apply(ctx, "sue", domain.ChangeSet{Inserted: []domain.Entry{Entry("id-s", "home", "2001-01-01", "", nil)}}); err != nil {
		t.Fatalf("insert sue: %v", err)
	}

	entries, err = store.Load(ctx, "bill")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 3 || entries[0].Identity() != "id-a" || entries[1].Identity() != "id-b" || entries[2].Identity() != "id-c" {
		t.Fatalf("expected entries ordered by key and start, got %v", entries)
	}
	if entries[0].Attributes["number"] != "444-5555" || !entries[0].Period().Equal(a.Period()) {
		t.Fatalf("round trip lost data: %v", entries[0])
	}

	subjects, err := store.Subjects(ctx)
	if err != nil || len(subjects) != 2 || subjects[0] != "bill" || subjects[1] != "sue" {
		t.Fatalf("unexpected subjects %v err=%v", subjects, err)
	}

	if err := store.Apply(ctx, "bill", domain.ChangeSet{Inserted: []domain.Entry{a}}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}
	ghost := Entry("id-ghost", "home", "2009-01-01", "", nil)
	if err := store.Apply(ctx, "bill", domain.ChangeSet{Updated: []domain.Entry{ghost}}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	failing := domain.ChangeSet{
		Deleted:  []string{"id-b"},
		Inserted: []domain.Entry{Entry("id-d", "home", "2010-01-01", "", nil)},
		Updated:  []domain.Entry{ghost},
	}
	if err := store.Apply(ctx, "bill", failing); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if entries, _ := store.Load(ctx, "bill"); len(entries) != 3 {
		t.Fatalf("failed change set must not apply partially, got %v", entries)
	}

	a.SetPeriod(period.MustParse("2008-01-01", "2008-05-06"))
	if err := store.Apply(ctx, "bill", domain.ChangeSet{
		Updated: []domain.Entry{a},
		Deleted: []string{"id-b", "id-c"},
	}); err != nil {
		t.Fatalf("update/delete: %v", err)
	}
	entries, _ = store.Load(ctx, "bill")
	if len(entries) != 1 || !entries[0].Period().Equal(a.Period()) {
		t.Fatalf("expected single updated entry, got %v", entries)
	}

	if err := store.Apply(ctx, "bill", domain.ChangeSet{Deleted: []string{"id-a"}}); err != nil {
		t.Fatalf("delete last: %v", err)
	}
	subjects, _ = store.Subjects(ctx)
	if len(subjects) != 1 || subjects[0] != "sue" {
		t.Fatalf("emptied subject should disappear, got %v", subjects)
	}
	if err := store.Apply(ctx, "bill", domain.ChangeSet{}); err != nil {
		t.Fatalf("empty change set: %v", err)
	}
}
