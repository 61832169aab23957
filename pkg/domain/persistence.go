package domain

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a store has no row for an identity.
	ErrNotFound = errors.New("domain: not found")
	// ErrConflict is returned when an insert collides with an existing identity.
	ErrConflict = errors.New("domain: identity conflict")
)

// ChangeSet describes how one subject's entries moved between two persisted
// states. Inserted and Updated entries always carry an identity.
type ChangeSet struct {
	Inserted []Entry  `json:"inserted,omitempty"`
	Updated  []Entry  `json:"updated,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
}

// IsEmpty reports whether the change set carries no work.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Inserted) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Len counts every row touched.
func (c ChangeSet) Len() int {
	return len(c.Inserted) + len(c.Updated) + len(c.Deleted)
}

// EntryStore persists the entries of each subject. A subject is the
// aggregate owning one denormalized timeline.
type EntryStore interface {
	// Load returns every entry of subject, in no particular order.
	Load(ctx context.Context, subject string) ([]Entry, error)
	// Apply commits changes for subject atomically.
	Apply(ctx context.Context, subject string, changes ChangeSet) error
	// Subjects lists every subject with at least one entry.
	Subjects(ctx context.Context) ([]string, error)
}

// Snapshot is the archived form of one subject's timelines.
type Snapshot struct {
	Subject string    `json:"subject"`
	Policy  string    `json:"policy"`
	TakenAt time.Time `json:"taken_at"`
	Entries []Entry   `json:"entries"`
}

// ArchiveObject describes an object held by a SnapshotArchive.
type ArchiveObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// SnapshotArchive stores serialized snapshots under string keys.
type SnapshotArchive interface {
	Put(ctx context.Context, key string, r io.Reader) (ArchiveObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ArchiveObject, error)
	Driver() string
}
