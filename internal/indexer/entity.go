package indexer

import (
	"context"
	"fmt"
	"slices"

	"github.com/nimafallahian/go-indexer/internal/cursor"
	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// Enricher is an optional build step. It is skipped for messages whose skip
// set names it.
type Enricher struct {
	Name  string
	Apply func(doc *domain.Document, rec domain.Record, snap domain.Snapshot)
}

// Definition declares how one entity collection is indexed.
type Definition struct {
	Name   string
	Entity string
	Index  string
	// Fields are the entity fields whose change requires re-indexing.
	Fields  []string
	Mapping domain.Mapping
	// Languages, when set, are the languages the index holds one document per
	// row for. A write re-indexes its rows under each of them, and a full
	// reindex must run under one of them.
	Languages []string
	// DocumentKey maps a row id to its document key. Defaults to the row id.
	DocumentKey func(id string, snap domain.Snapshot) domain.Key
	Build       func(rec domain.Record, snap domain.Snapshot) map[string]any
	Enrichers   []Enricher
}

// Entity is the definition-driven EntityIndexer.
type Entity struct {
	def       Definition
	store     ports.RecordStore
	backend   ports.SearchBackend
	batchSize int
}

var _ EntityIndexer = (*Entity)(nil)

// NewEntity constructs an indexer for def.
func NewEntity(def Definition, store ports.RecordStore, backend ports.SearchBackend, batchSize int) (*Entity, error) {
	if def.Name == "" || def.Entity == "" || def.Index == "" {
		return nil, fmt.Errorf("definition must name indexer, entity and index")
	}
	if def.Build == nil {
		return nil, fmt.Errorf("definition %q has no document builder", def.Name)
	}
	if store == nil || backend == nil {
		return nil, fmt.Errorf("store and backend must not be nil")
	}
	if def.DocumentKey == nil {
		def.DocumentKey = func(id string, _ domain.Snapshot) domain.Key { return domain.Key{id} }
	}
	if batchSize <= 0 {
		batchSize = cursor.DefaultBatchSize
	}
	return &Entity{def: def, store: store, backend: backend, batchSize: batchSize}, nil
}

func (e *Entity) Name() string            { return e.def.Name }
func (e *Entity) Entity() string          { return e.def.Entity }
func (e *Entity) Index() string           { return e.def.Index }
func (e *Entity) Mapping() domain.Mapping { return e.def.Mapping }
func (e *Entity) Languages() []string     { return slices.Clone(e.def.Languages) }

// Iterate implements EntityIndexer.
func (e *Entity) Iterate(ctx context.Context, offset *domain.Offset) (*Batch, error) {
	it := cursor.Resume(e.store, e.def.Entity, offset, e.batchSize)
	ids, err := it.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &Batch{IDs: ids, Offset: it.Offset(), Last: len(ids) < it.BatchSize()}, nil
}

// Update implements EntityIndexer.
func (e *Entity) Update(event domain.WriteEvent) []domain.IndexingMessage {
	if event.Entity != e.def.Entity {
		return nil
	}

	var ids []string
	for _, ch := range event.Changes {
		if ch.Deleted || e.tracks(ch.Fields) {
			if !slices.Contains(ids, ch.ID) {
				ids = append(ids, ch.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if e.def.Languages == nil {
		return []domain.IndexingMessage{domain.NewIncremental(e.def.Name, e.def.Index, ids, event.Context, nil)}
	}

	out := make([]domain.IndexingMessage, 0, len(e.def.Languages))
	for _, lang := range e.def.Languages {
		snap := event.Context
		snap.LanguageID = lang
		out = append(out, domain.NewIncremental(e.def.Name, e.def.Index, ids, snap, nil))
	}
	return out
}

func (e *Entity) tracks(fields []string) bool {
	for _, f := range fields {
		if slices.Contains(e.def.Fields, f) {
			return true
		}
	}
	return false
}

// Handle implements EntityIndexer.
func (e *Entity) Handle(ctx context.Context, msg domain.IndexingMessage) (HandleResult, error) {
	var res HandleResult
	if len(msg.IDs) == 0 {
		return res, nil
	}

	index := msg.Index
	if index == "" {
		index = e.def.Index
	}

	records, err := e.store.Load(ctx, e.def.Entity, msg.IDs, msg.Context)
	if err != nil {
		return res, fmt.Errorf("load %s: %w", e.def.Entity, err)
	}

	found := make(map[string]struct{}, len(records))
	docs := make([]domain.Document, 0, len(records))
	for _, rec := range records {
		found[rec.ID] = struct{}{}
		docs = append(docs, e.document(rec, msg))
	}

	var gone []string
	for _, id := range msg.IDs {
		if _, ok := found[id]; !ok {
			gone = append(gone, e.def.DocumentKey(id, msg.Context).String())
		}
	}

	if len(docs) > 0 {
		if err := e.backend.BulkUpsert(ctx, index, docs); err != nil {
			return res, fmt.Errorf("upsert %d documents into %s: %w", len(docs), index, err)
		}
		res.Upserted = len(docs)
	}
	if len(gone) > 0 {
		if err := e.backend.Delete(ctx, index, gone); err != nil {
			return res, fmt.Errorf("delete %d documents from %s: %w", len(gone), index, err)
		}
		res.Deleted = len(gone)
	}
	return res, nil
}

func (e *Entity) document(rec domain.Record, msg domain.IndexingMessage) domain.Document {
	doc := domain.Document{
		ID:     e.def.DocumentKey(rec.ID, msg.Context).String(),
		Source: e.def.Build(rec, msg.Context),
	}
	if doc.Source == nil {
		doc.Source = map[string]any{}
	}
	for _, en := range e.def.Enrichers {
		if msg.Skips(en.Name) {
			continue
		}
		en.Apply(&doc, rec, msg.Context)
	}
	return doc
}

// Total implements EntityIndexer.
func (e *Entity) Total(ctx context.Context) (int, error) {
	return e.store.CountKeys(ctx, e.def.Entity)
}
