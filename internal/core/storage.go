package core

import (
	"context"
	"errors"
	"fmt"

	"timelines/internal/config"
	archivefs "timelines/internal/infra/archive/fs"
	archivememory "timelines/internal/infra/archive/memory"
	archives3 "timelines/internal/infra/archive/s3"
	"timelines/internal/infra/persistence/memory"
	"timelines/internal/infra/persistence/postgres"
	"timelines/internal/infra/persistence/redis"
	"timelines/internal/infra/persistence/sqlite"
	"timelines/pkg/domain"
)

// StorageDriver identifies a concrete entry store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRedis    StorageDriver = "redis"    // Redis server, one hash per subject
)

// ErrUnsupportedDriver is returned for an unknown storage or archive driver.
var ErrUnsupportedDriver = errors.New("core: unsupported driver")

// OpenEntryStore builds the entry store selected by cfg. Stores holding
// connections implement io.Closer.
func OpenEntryStore(ctx context.Context, cfg config.Storage) (domain.EntryStore, error) {
	switch StorageDriver(cfg.Driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite, "":
		return wrapStore(sqlite.NewStore(cfg.SQLitePath))
	case StoragePostgres:
		return wrapStore(postgres.NewStore(ctx, cfg.PostgresDSN))
	case StorageRedis:
		return wrapStore(redis.Open(ctx, cfg.RedisAddr))
	default:
		return nil, fmt.Errorf("storage %q: %w", cfg.Driver, ErrUnsupportedDriver)
	}
}

// OpenArchive builds the snapshot archive selected by cfg.
func OpenArchive(ctx context.Context, cfg config.Archive) (domain.SnapshotArchive, error) {
	switch cfg.Driver {
	case archivememory.Driver:
		return archivememory.New(), nil
	case archivefs.Driver, "":
		return wrapArchive(archivefs.New(cfg.Dir))
	case archives3.Driver:
		return wrapArchive(archives3.New(ctx, archives3.Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		}))
	default:
		return nil, fmt.Errorf("archive %q: %w", cfg.Driver, ErrUnsupportedDriver)
	}
}

// wrapStore keeps a failed constructor's typed nil out of the interface.
func wrapStore[S domain.EntryStore](s S, err error) (domain.EntryStore, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func wrapArchive[A domain.SnapshotArchive](a A, err error) (domain.SnapshotArchive, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}
