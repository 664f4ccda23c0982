package indexer

import (
	"context"
	"fmt"
	"slices"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

// Registry holds the ordered list of indexers. Its order is the order in which
// a full reindex walks them.
type Registry struct {
	indexers []EntityIndexer
	byName   map[string]EntityIndexer
}

// NewRegistry constructs a registry. Indexer names must be unique.
func NewRegistry(indexers ...EntityIndexer) (*Registry, error) {
	r := &Registry{byName: make(map[string]EntityIndexer, len(indexers))}
	for _, idx := range indexers {
		if idx == nil {
			return nil, fmt.Errorf("indexer must not be nil")
		}
		if _, dup := r.byName[idx.Name()]; dup {
			return nil, fmt.Errorf("duplicate indexer %q", idx.Name())
		}
		r.byName[idx.Name()] = idx
		r.indexers = append(r.indexers, idx)
	}
	return r, nil
}

// Indexers returns the registered indexers in order.
func (r *Registry) Indexers() []EntityIndexer {
	return slices.Clone(r.indexers)
}

// Names returns the registered indexer names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.indexers))
	for _, idx := range r.indexers {
		names = append(names, idx.Name())
	}
	return names
}

// Get resolves an indexer by name.
func (r *Registry) Get(name string) (EntityIndexer, error) {
	idx, ok := r.byName[name]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "indexer", Name: name}
	}
	return idx, nil
}

// Seed builds the first message of a full reindex. With only empty every
// registered indexer is walked; otherwise only the named ones, in the order
// they are given.
func (r *Registry) Seed(snap domain.Snapshot, only, skip []string, runID string) (domain.IndexingMessage, error) {
	names := r.Names()
	if len(only) > 0 {
		names = names[:0]
		for _, name := range only {
			if _, err := r.Get(name); err != nil {
				return domain.IndexingMessage{}, err
			}
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	names = slices.DeleteFunc(names, func(n string) bool { return slices.Contains(skip, n) })
	if len(names) == 0 {
		return domain.IndexingMessage{}, fmt.Errorf("no indexer left to run")
	}
	for _, name := range names {
		langs := r.byName[name].Languages()
		if langs != nil && !slices.Contains(langs, snap.LanguageID) {
			return domain.IndexingMessage{}, fmt.Errorf("indexer %s is not kept in language %q (indexed: %q)", name, snap.LanguageID, langs)
		}
	}
	return domain.NewFullReindex(names, snap, skip, runID), nil
}

// Next computes the successor of a handled full-reindex message. It returns
// nil when the chain is complete. The successor either carries the next batch
// of the same indexer or moves to the next indexer with a fresh cursor.
func (r *Registry) Next(ctx context.Context, msg domain.IndexingMessage) (*domain.IndexingMessage, error) {
	if msg.Kind != domain.KindFull {
		return nil, nil
	}
	if msg.IsLast {
		return nil, nil
	}

	idx, err := r.Get(msg.Indexer)
	if err != nil {
		return nil, err
	}

	batch, err := idx.Iterate(ctx, msg.Offset)
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", msg.Indexer, err)
	}
	if batch != nil {
		last := batch.Last && len(msg.Remaining) == 1
		next := msg.WithBatch(idx.Index(), batch.IDs, batch.Offset, last)
		return &next, nil
	}

	next, ok := msg.Advance()
	if !ok {
		return nil, nil
	}
	return &next, nil
}

// Update asks every indexer for the message needed after event. Indexers named
// in skip are not asked, and skip travels with every produced message.
func (r *Registry) Update(event domain.WriteEvent, skip []string) []domain.IndexingMessage {
	var out []domain.IndexingMessage
	for _, idx := range r.indexers {
		if slices.Contains(skip, idx.Name()) {
			continue
		}
		for _, msg := range idx.Update(event) {
			msg.Skip = slices.Clone(skip)
			out = append(out, msg)
		}
	}
	return out
}

// Handle dispatches msg to its indexer.
func (r *Registry) Handle(ctx context.Context, msg domain.IndexingMessage) (HandleResult, error) {
	idx, err := r.Get(msg.Indexer)
	if err != nil {
		return HandleResult{}, err
	}
	return idx.Handle(ctx, msg)
}
