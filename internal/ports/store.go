package ports

import (
	"context"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

// KeyFetcher reads primary keys of an entity collection in ascending order.
type KeyFetcher interface {
	// FetchKeys returns up to limit keys strictly greater than after.
	// It returns a *domain.NotFoundError when the entity does not exist.
	FetchKeys(ctx context.Context, entity, after string, limit int) ([]string, error)

	// CountKeys returns the current number of rows of entity.
	CountKeys(ctx context.Context, entity string) (int, error)
}

// RecordLoader bulk-loads entity rows.
type RecordLoader interface {
	// Load returns the rows found for ids under snap. Ids that do not exist
	// are simply absent from the result.
	Load(ctx context.Context, entity string, ids []string, snap domain.Snapshot) ([]domain.Record, error)
}

// RecordStore is the primary store as seen by the indexing pipeline.
type RecordStore interface {
	KeyFetcher
	RecordLoader
}

// KVStore is a small persisted key-value store for pipeline state.
type KVStore interface {
	// Get returns nil, nil when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
