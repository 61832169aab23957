package core

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archivememory "timelines/internal/infra/archive/memory"
	"timelines/internal/infra/persistence/memory"
	"timelines/pkg/domain"
	"timelines/pkg/period"
)

// tickingClock advances one second per reading.
func tickingClock(start time.Time) ClockFunc {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := start.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

func seededService(t *testing.T, opts ...Option) (*Service, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, append([]Option{WithIDGenerator(sequentialIDs())}, opts...)...)
	_, err := svc.Add(ctx, "bill", entry("home", "2008-01-01", "2008-05-31", "444-5555"))
	require.NoError(t, err)
	_, err = svc.Add(ctx, "bill", entry("work", "2008-01-01", "", "222-3333"))
	require.NoError(t, err)
	_, err = svc.Add(ctx, "sue", entry("home", "2001-01-01", "", "111-2222"))
	require.NoError(t, err)
	return svc, store
}

func TestSnapshotKeyOrdersChronologically(t *testing.T) {
	a := SnapshotKey("bill", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	b := SnapshotKey("bill", time.Date(2024, 1, 2, 3, 4, 5, 1, time.UTC))
	assert.Equal(t, "snapshots/bill/20240102T030405.000000000Z.json", a)
	assert.Less(t, a, b)
}

func TestExportWritesSnapshotDocument(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := seededService(t, WithClock(ClockFunc(func() time.Time { return fixed })))
	archive := archivememory.New()

	obj, err := svc.Export(ctx, "bill", archive)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/bill/20240101T000000.000000000Z.json", obj.Key)
	assert.Positive(t, obj.Size)

	rc, err := archive.Get(ctx, obj.Key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "bill", snap.Subject)
	assert.Equal(t, "period-of-existence", snap.Policy)
	assert.True(t, snap.TakenAt.Equal(fixed))
	assert.Equal(t, []string{
		"id-1 home [2008-01-01, 2008-05-31] 444-5555",
		"id-2 work [2008-01-01, undefined] 222-3333",
	}, spans(snap.Entries))

	_, err = svc.Export(ctx, "bill", archive)
	require.ErrorIs(t, err, domain.ErrConflict, "snapshots are never overwritten")

	_, err = svc.Export(ctx, "a/b", archive)
	require.Error(t, err)
}

func TestExportAllCoversEverySubject(t *testing.T) {
	ctx := context.Background()
	svc, _ := seededService(t, WithClock(tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	archive := archivememory.New()

	objs, err := svc.ExportAll(ctx, archive, 0)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Contains(t, objs[0].Key, "snapshots/bill/")
	assert.Contains(t, objs[1].Key, "snapshots/sue/")

	listed, err := archive.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestLatestSnapshotAndRestore(t *testing.T) {
	ctx := context.Background()
	svc, store := seededService(t, WithClock(tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	archive := archivememory.New()

	_, err := svc.LatestSnapshot(ctx, archive, "bill")
	require.ErrorIs(t, err, domain.ErrNotFound)

	first, err := svc.Export(ctx, "bill", archive)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "bill", period.MustParse("2008-03-01", "")))
	second, err := svc.Export(ctx, "bill", archive)
	require.NoError(t, err)

	latest, err := svc.LatestSnapshot(ctx, archive, "bill")
	require.NoError(t, err)
	assert.Equal(t, second.Key, latest)

	snap, err := svc.Restore(ctx, archive, first.Key)
	require.NoError(t, err)
	assert.Equal(t, "bill", snap.Subject)
	assert.Equal(t, []string{
		"id-1 home [2008-01-01, 2008-05-31] 444-5555",
		"id-2 work [2008-01-01, undefined] 222-3333",
	}, stored(t, store, "bill"))
}

func TestRestoreIntoFreshStoreKeepsIdentities(t *testing.T) {
	ctx := context.Background()
	svc, _ := seededService(t)
	archive := archivememory.New()
	obj, err := svc.Export(ctx, "sue", archive)
	require.NoError(t, err)

	fresh := memory.NewStore()
	log := &captureLogger{}
	other := NewService(fresh, WithLogger(log), WithPolicy(svc.Policy()))
	_, err = other.Restore(ctx, archive, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"id-3 home [2001-01-01, undefined] 111-2222"}, stored(t, fresh, "sue"))
	assert.False(t, log.has("w:"))
}

func TestRestoreErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())
	archive := archivememory.New()

	_, err := svc.Restore(ctx, archive, "snapshots/missing.json")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = archive.Put(ctx, "snapshots/bad.json", strings.NewReader("{"))
	require.NoError(t, err)
	_, err = svc.Restore(ctx, archive, "snapshots/bad.json")
	require.Error(t, err)

	_, err = archive.Put(ctx, "snapshots/anon.json", strings.NewReader(`{"entries":[]}`))
	require.NoError(t, err)
	_, err = svc.Restore(ctx, archive, "snapshots/anon.json")
	require.ErrorContains(t, err, "no subject")
}
