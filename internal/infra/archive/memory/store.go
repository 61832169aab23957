// Package memory implements an in-process snapshot archive for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"timelines/pkg/domain"
)

var _ domain.SnapshotArchive = (*Store)(nil)

// Driver is the identifier reported by Store.
const Driver = "memory"

type object struct {
	info domain.ArchiveObject
	data []byte
}

// Store implements domain.SnapshotArchive backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]object
	now  func() time.Time
}

// New returns an empty in-memory archive.
func New() *Store {
	return &Store{objs: make(map[string]object), now: func() time.Time { return time.Now().UTC() }}
}

// Driver returns the archive driver identifier.
func (s *Store) Driver() string { return Driver }

// Put stores a new object; it fails with domain.ErrConflict if key exists.
func (s *Store) Put(_ context.Context, key string, r io.Reader) (domain.ArchiveObject, error) {
	if strings.TrimSpace(key) == "" {
		return domain.ArchiveObject{}, fmt.Errorf("archive: empty key")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return domain.ArchiveObject{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return domain.ArchiveObject{}, fmt.Errorf("archive object %s: %w", key, domain.ErrConflict)
	}
	info := domain.ArchiveObject{Key: key, Size: int64(len(b)), LastModified: s.now()}
	s.objs[key] = object{info: info, data: b}
	return info, nil
}

// Get returns a reader over a copy of the object's content.
func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("archive object %s: %w", key, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// List returns the objects whose key starts with prefix, ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]domain.ArchiveObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ArchiveObject, 0, len(s.objs))
	for k, v := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, v.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
