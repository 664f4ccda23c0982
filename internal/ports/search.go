package ports

import (
	"context"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

// SearchBackend defines the system boundary for the secondary search index.
type SearchBackend interface {
	// PutMapping pushes the declared mapping of index. It returns an error
	// wrapping domain.ErrIndexNotFound when the index is absent and a
	// *domain.MappingConflictError when a stored field type cannot change.
	PutMapping(ctx context.Context, index string, mapping domain.Mapping) error

	// BulkUpsert replaces the given documents. It must be idempotent.
	BulkUpsert(ctx context.Context, index string, docs []domain.Document) error

	// Delete removes ids from index. Missing ids are not an error.
	Delete(ctx context.Context, index string, ids []string) error

	// Search runs a query and returns the raw decoded response.
	Search(ctx context.Context, index string, query map[string]any) (map[string]any, error)
}

// IndexManager creates and drops search indices. Used by operator commands only.
type IndexManager interface {
	EnsureIndex(ctx context.Context, index string, mapping domain.Mapping) (created bool, err error)
	DeleteIndex(ctx context.Context, index string) error
}
