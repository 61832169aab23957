// Package redis stores each subject's entries in a Redis hash keyed by
// entry identity.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"timelines/internal/infra/persistence/memory"
	"timelines/pkg/domain"
)

var _ domain.EntryStore = (*Store)(nil)

const (
	subjectKeyPrefix = "timelines:subject:"
	subjectsKey      = "timelines:subjects"
	maxRetries       = 5
)

// ErrContention is returned when a subject kept changing under Apply.
var ErrContention = errors.New("redis: subject modified concurrently")

// Store is a Redis-backed entry store. Apply runs as an optimistic
// transaction watching the subject's hash.
type Store struct {
	client *redis.Client
}

// Open connects to addr, which is either host:port or a redis:// URL, and
// pings the server.
func Open(ctx context.Context, addr string) (*Store, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client. The caller keeps ownership of its lifecycle
// unless Close is called.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func subjectKey(subject string) string { return subjectKeyPrefix + subject }

// Load returns the subject's entries ordered by timeline key then start.
func (s *Store) Load(ctx context.Context, subject string) ([]domain.Entry, error) {
	return load(ctx, s.client, subject)
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func load(ctx context.Context, c hashReader, subject string) ([]domain.Entry, error) {
	fields, err := c.HGetAll(ctx, subjectKey(subject)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", subject, err)
	}
	out := make([]domain.Entry, 0, len(fields))
	for id, raw := range fields {
		var e domain.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", subject, id, err)
		}
		out = append(out, e)
	}
	memory.SortEntries(out)
	return out, nil
}

// Subjects lists subjects holding at least one entry, sorted.
func (s *Store) Subjects(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, subjectsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	slices.Sort(members)
	return members, nil
}

// Apply validates changes against the stored hash and writes them in a
// MULTI/EXEC block. A concurrent writer touching the subject causes a retry.
func (s *Store) Apply(ctx context.Context, subject string, changes domain.ChangeSet) error {
	key := subjectKey(subject)
	txf := func(tx *redis.Tx) error {
		current, err := load(ctx, tx, subject)
		if err != nil {
			return err
		}
		if err := memory.Validate(current, changes); err != nil {
			return fmt.Errorf("apply %s: %w", subject, err)
		}
		if changes.IsEmpty() {
			return nil
		}
		writes := make(map[string]any, len(changes.Inserted)+len(changes.Updated))
		for _, e := range slices.Concat(changes.Updated, changes.Inserted) {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			writes[e.Identity()] = data
		}
		remaining := len(current) - len(changes.Deleted) + len(changes.Inserted)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(changes.Deleted) > 0 {
				pipe.HDel(ctx, key, changes.Deleted...)
			}
			if len(writes) > 0 {
				pipe.HSet(ctx, key, writes)
			}
			if remaining == 0 {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, subjectsKey, subject)
			} else {
				pipe.SAdd(ctx, subjectsKey, subject)
			}
			return nil
		})
		return err
	}
	for range maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("apply %s: %w", subject, ErrContention)
}
