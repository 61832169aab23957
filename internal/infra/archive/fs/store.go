// Package fs implements a snapshot archive on the local filesystem.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"timelines/pkg/domain"
)

var _ domain.SnapshotArchive = (*Store)(nil)

// Driver is the identifier reported by Store.
const Driver = "fs"

const metaSuffix = ".meta"

// Store maps archive keys to files under a root directory. Each object has a
// JSON sidecar (key + ".meta") holding its size, digest and timestamps.
type Store struct {
	root string
}

// New returns an archive rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./snapshots"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Store{root: root}, nil
}

// Driver returns the archive driver identifier.
func (s *Store) Driver() string { return Driver }

// Root returns the directory holding the archive.
func (s *Store) Root() string { return s.root }

// sanitizeKey rejects keys that would escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	if strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("invalid key suffix %s", metaSuffix)
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (s *Store) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(k))
	return dataPath, dataPath + metaSuffix, nil
}

type metaFile struct {
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Put writes r to a temp file and hard-links it to key, so concurrent Puts of
// one key leave exactly one winner. The rest fail with domain.ErrConflict.
// The sidecar is written after the link, so List never sees a partial object.
func (s *Store) Put(_ context.Context, key string, r io.Reader) (domain.ArchiveObject, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return domain.ArchiveObject{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return domain.ArchiveObject{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return domain.ArchiveObject{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return domain.ArchiveObject{}, err
	}
	if err := os.Link(tmp.Name(), dataPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return domain.ArchiveObject{}, fmt.Errorf("archive object %s: %w", key, domain.ErrConflict)
		}
		return domain.ArchiveObject{}, err
	}
	mf := metaFile{SHA256: hex.EncodeToString(h.Sum(nil)), Size: size, CreatedAt: time.Now().UTC()}
	if err := writeMeta(metaPath, mf); err != nil {
		return domain.ArchiveObject{}, err
	}
	return domain.ArchiveObject{Key: key, Size: size, LastModified: mf.CreatedAt}, nil
}

// Get opens the object stored under key.
func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	dataPath, _, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- dataPath is sanitized and confined to the archive root
	file, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("archive object %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// List walks the root for sidecars and returns the objects whose key starts
// with prefix, ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]domain.ArchiveObject, error) {
	var out []domain.ArchiveObject
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		mf, err := readMeta(path)
		if err != nil {
			return err
		}
		out = append(out, domain.ArchiveObject{Key: key, Size: mf.Size, LastModified: mf.CreatedAt})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func writeMeta(path string, mf metaFile) error {
	b, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func readMeta(path string) (metaFile, error) {
	// #nosec G304 -- path comes from walking the archive root
	b, err := os.ReadFile(path)
	if err != nil {
		return metaFile{}, err
	}
	var mf metaFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return metaFile{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return mf, nil
}
