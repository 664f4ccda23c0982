// Package indexer implements the per-entity indexing contract and the
// registry that fans writes out to indexers and chains full reindexes.
package indexer

import (
	"context"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

// Batch is one step of a full-corpus walk.
type Batch struct {
	IDs    []string
	Offset *domain.Offset
	// Last is set when the cursor returned a short batch, so the next
	// iteration is known to be empty.
	Last bool
}

// HandleResult reports what a handled message did to the search index.
type HandleResult struct {
	Upserted int
	Deleted  int
}

// EntityIndexer keeps one search index in sync with one entity collection.
// Implementations are stateless between calls: all progress lives in messages.
// Only Handle talks to the search backend.
type EntityIndexer interface {
	// Name identifies the indexer in messages and in the registry.
	Name() string
	// Entity is the entity collection the indexer reads from.
	Entity() string
	// Index is the target search index.
	Index() string
	// Mapping is the declared field mapping of Index.
	Mapping() domain.Mapping
	// Languages lists the languages the index is kept in, or nil when its
	// documents are not per language.
	Languages() []string

	// Iterate reads the batch following offset (nil for the start).
	// It returns nil once the collection is exhausted.
	Iterate(ctx context.Context, offset *domain.Offset) (*Batch, error)
	// Update returns the messages re-indexing the rows touched by event, one
	// per indexed language, or nil when none of the tracked fields changed.
	Update(event domain.WriteEvent) []domain.IndexingMessage
	// Handle loads fresh rows for msg.IDs, upserts their documents and removes
	// the documents of rows that no longer exist.
	Handle(ctx context.Context, msg domain.IndexingMessage) (HandleResult, error)
	// Total returns the current size of the entity collection.
	Total(ctx context.Context) (int, error)
}
