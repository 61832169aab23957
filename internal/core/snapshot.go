package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"timelines/pkg/domain"
	"timelines/pkg/timeline"
)

const (
	snapshotPrefix     = "snapshots/"
	snapshotTimeLayout = "20060102T150405.000000000Z"
	defaultExportLimit = 4
)

// SnapshotKey returns the archive key of subject's snapshot taken at t.
// Keys of one subject sort chronologically.
func SnapshotKey(subject string, t time.Time) string {
	return snapshotPrefix + subject + "/" + t.UTC().Format(snapshotTimeLayout) + ".json"
}

func snapshotSubjectPrefix(subject string) string {
	return snapshotPrefix + subject + "/"
}

// Snapshot captures the subject's current entries.
func (s *Service) Snapshot(ctx context.Context, subject string) (domain.Snapshot, error) {
	entries, err := s.Entries(ctx, subject)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		Subject: subject,
		Policy:  s.policy.String(),
		TakenAt: s.clock.Now(),
		Entries: entries,
	}, nil
}

// Export writes the subject's snapshot to archive as JSON.
func (s *Service) Export(ctx context.Context, subject string, archive domain.SnapshotArchive) (obj domain.ArchiveObject, err error) {
	err = s.run(ctx, "export", func(ctx context.Context) error {
		if strings.TrimSpace(subject) == "" || strings.Contains(subject, "/") {
			return fmt.Errorf("export: invalid subject %q", subject)
		}
		snap, serr := s.Snapshot(ctx, subject)
		if serr != nil {
			return serr
		}
		payload, merr := json.MarshalIndent(snap, "", "  ")
		if merr != nil {
			return fmt.Errorf("encode snapshot %s: %w", subject, merr)
		}
		key := SnapshotKey(subject, snap.TakenAt)
		var perr error
		obj, perr = archive.Put(ctx, key, bytes.NewReader(payload))
		if perr != nil {
			return fmt.Errorf("archive %s via %s: %w", key, archive.Driver(), perr)
		}
		s.logger.Info("snapshot exported", "subject", subject, "key", key, "entries", len(snap.Entries), "driver", archive.Driver())
		return nil
	})
	return obj, err
}

// ExportAll exports every subject of the store, at most limit at a time
// (limit <= 0 selects a small default). Objects are returned in subject
// order.
func (s *Service) ExportAll(ctx context.Context, archive domain.SnapshotArchive, limit int) ([]domain.ArchiveObject, error) {
	subjects, err := s.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultExportLimit
	}
	out := make([]domain.ArchiveObject, len(subjects))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, subject := range subjects {
		g.Go(func() error {
			obj, err := s.Export(gctx, subject, archive)
			if err != nil {
				return err
			}
			mu.Lock()
			out[i] = obj
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Restore replaces the subject's entries with the snapshot stored under key
// and returns it. Entry identities are kept.
func (s *Service) Restore(ctx context.Context, archive domain.SnapshotArchive, key string) (snap domain.Snapshot, err error) {
	err = s.run(ctx, "restore", func(ctx context.Context) error {
		rc, gerr := archive.Get(ctx, key)
		if gerr != nil {
			return fmt.Errorf("fetch %s: %w", key, gerr)
		}
		defer func() { _ = rc.Close() }()
		if derr := json.NewDecoder(rc).Decode(&snap); derr != nil {
			return fmt.Errorf("decode snapshot %s: %w", key, derr)
		}
		if snap.Subject == "" {
			return fmt.Errorf("snapshot %s has no subject", key)
		}
		if p, perr := timeline.ParsePolicy(snap.Policy); perr != nil || p != s.policy {
			s.logger.Warn("snapshot policy differs", "key", key, "snapshot_policy", snap.Policy, "policy", s.policy.String())
		}
		return s.mutate(ctx, "restore", snap.Subject, func(lines *timeline.Denormalized[*domain.Entry]) error {
			lines.Reset()
			for _, e := range snap.Entries {
				live := e.Copy()
				lines.Add(&live)
			}
			return nil
		})
	})
	return snap, err
}

// LatestSnapshot returns the key of the subject's most recent snapshot, or
// an error wrapping domain.ErrNotFound.
func (s *Service) LatestSnapshot(ctx context.Context, archive domain.SnapshotArchive, subject string) (key string, err error) {
	err = s.run(ctx, "latest_snapshot", func(ctx context.Context) error {
		objs, lerr := archive.List(ctx, snapshotSubjectPrefix(subject))
		if lerr != nil {
			return lerr
		}
		for _, o := range objs {
			if path.Ext(o.Key) == ".json" && o.Key > key {
				key = o.Key
			}
		}
		if key == "" {
			return fmt.Errorf("snapshot of %s: %w", subject, domain.ErrNotFound)
		}
		return nil
	})
	return key, err
}
