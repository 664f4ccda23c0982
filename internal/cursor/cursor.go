// Package cursor walks the primary keys of an entity collection in stable,
// resumable batches.
package cursor

import (
	"context"
	"fmt"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// DefaultBatchSize is used when a non-positive batch size is requested.
const DefaultBatchSize = 1000

// Iterator hands out primary keys in ascending order, batchSize at a time.
// Its position is fully described by Offset, so a new Iterator created from
// a saved offset resumes with exactly the unvisited remainder. Keys deleted
// in between are skipped.
type Iterator struct {
	fetcher   ports.KeyFetcher
	entity    string
	batchSize int
	offset    *domain.Offset
	exhausted bool
	total     int
}

// New creates an iterator over entity positioned at offset (nil for the start)
// and records the collection size at creation.
func New(ctx context.Context, fetcher ports.KeyFetcher, entity string, offset *domain.Offset, batchSize int) (*Iterator, error) {
	total, err := fetcher.CountKeys(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", entity, err)
	}
	it := Resume(fetcher, entity, offset, batchSize)
	it.total = total
	return it, nil
}

// Resume creates an iterator positioned at offset without counting the
// collection. Its FetchCount is -1.
func Resume(fetcher ports.KeyFetcher, entity string, offset *domain.Offset, batchSize int) *Iterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	it := &Iterator{
		fetcher:   fetcher,
		entity:    entity,
		batchSize: batchSize,
		total:     -1,
		offset:    &domain.Offset{},
	}
	if offset != nil {
		o := *offset
		it.offset = &o
	}
	return it
}

// Fetch returns the next batch of keys. An empty batch means the collection is
// exhausted; afterwards Offset returns nil.
func (it *Iterator) Fetch(ctx context.Context) ([]string, error) {
	if it.exhausted {
		return nil, nil
	}

	keys, err := it.fetcher.FetchKeys(ctx, it.entity, it.offset.LastKey, it.batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch %s after %q: %w", it.entity, it.offset.LastKey, err)
	}
	if len(keys) == 0 {
		it.exhausted = true
		it.offset = nil
		return nil, nil
	}

	it.offset = &domain.Offset{
		LastKey: keys[len(keys)-1],
		Seen:    it.offset.Seen + len(keys),
	}
	return keys, nil
}

// Offset returns a copy of the current position, or nil once exhausted.
func (it *Iterator) Offset() *domain.Offset {
	if it.offset == nil {
		return nil
	}
	o := *it.offset
	return &o
}

// FetchCount returns the number of rows at the time the iterator was created,
// or -1 for an iterator made by Resume.
func (it *Iterator) FetchCount() int {
	return it.total
}

// BatchSize returns the configured batch size.
func (it *Iterator) BatchSize() int {
	return it.batchSize
}
