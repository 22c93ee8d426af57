package core

import (
	"context"
	"fmt"
	"io"

	"usergrid/internal/blob"
	"usergrid/internal/config"
	"usergrid/internal/infra/persistence/blobstate"
	"usergrid/internal/infra/persistence/memory"
	"usergrid/internal/infra/persistence/postgres"
	"usergrid/internal/infra/persistence/sqlite"
)

// OpenPersistentStore builds the backend selected by opts.Driver (default sqlite).
//
//	memory:   in-memory only (tests / ephemeral)
//	sqlite:   embedded sqlite file at opts.SQLitePath
//	postgres: PostgreSQL server at opts.PostgresDSN
//	blob:     zstd snapshots in the blob store named by opts.Blob
func OpenPersistentStore(ctx context.Context, opts config.StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = config.StorageSQLite
	}
	switch driver {
	case config.StorageMemory:
		return memory.NewStore(engine), nil
	case config.StorageSQLite:
		store, err := sqlite.NewStore(opts.SQLitePath, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageBlob:
		blobs, err := blob.Open(ctx, blob.Options{
			Driver: blob.Driver(opts.Blob.Driver),
			FSRoot: opts.Blob.FSRoot,
			S3: blob.S3Config{
				Bucket:    opts.Blob.S3.Bucket,
				Region:    opts.Blob.S3.Region,
				Endpoint:  opts.Blob.S3.Endpoint,
				PathStyle: opts.Blob.S3.PathStyle,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		store, err := blobstate.NewStore(ctx, blobs, opts.Blob.Prefix, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// CloseStore releases backends holding a connection or file handle.
func CloseStore(store PersistentStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
