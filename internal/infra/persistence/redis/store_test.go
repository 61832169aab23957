package redis

import (
	"context"
	"os"
	"testing"

	"timelines/internal/infra/persistence/storetest"
	"timelines/pkg/domain"
)

// openTestStore connects to TIMELINES_REDIS_ADDR and flushes the selected
// database. Tests skip when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("TIMELINES_REDIS_ADDR")
	if addr == "" {
		t.Skip("TIMELINES_REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := Open(ctx, addr)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	if err := store.client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStoreContract(t *testing.T) {
	storetest.Run(t, openTestStore(t))
}

func TestRedisStoreLayout(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	e := storetest.Entry("id-1", "home", "2008-01-01", "", nil)
	if err := store.Apply(ctx, "bill", domain.ChangeSet{Inserted: []domain.Entry{e}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n, err := store.client.HLen(ctx, "timelines:subject:bill").Result(); err != nil || n != 1 {
		t.Fatalf("expected one hash field, got %d err=%v", n, err)
	}
	if ok, err := store.client.SIsMember(ctx, "timelines:subjects", "bill").Result(); err != nil || !ok {
		t.Fatalf("expected subject registered, err=%v", err)
	}
	if err := store.Apply(ctx, "bill", domain.ChangeSet{Deleted: []string{"id-1"}}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := store.client.Exists(ctx, "timelines:subject:bill").Result(); n != 0 {
		t.Fatalf("hash should be removed with its last entry")
	}
}

func TestOpenRejectsBadURL(t *testing.T) {
	if _, err := Open(context.Background(), "redis://localhost:6379/notadb"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSubjectKey(t *testing.T) {
	if got := subjectKey("bill"); got != "timelines:subject:bill" {
		t.Fatalf("unexpected key %s", got)
	}
}
