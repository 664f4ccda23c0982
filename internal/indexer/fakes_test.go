package indexer

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	rows   map[string]map[string]map[string]any
	counts atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]map[string]map[string]any{}}
}

func (s *memStore) put(entity, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[entity] == nil {
		s.rows[entity] = map[string]map[string]any{}
	}
	s.rows[entity][id] = fields
}

func (s *memStore) remove(entity, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[entity], id)
}

func (s *memStore) FetchKeys(_ context.Context, entity, after string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.rows[entity]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "entity", Name: entity}
	}
	keys := slices.Collect(maps.Keys(rows))
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		if k > after {
			out = append(out, k)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) CountKeys(_ context.Context, entity string) (int, error) {
	s.counts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.rows[entity]
	if !ok {
		return 0, &domain.NotFoundError{Kind: "entity", Name: entity}
	}
	return len(rows), nil
}

func (s *memStore) Load(_ context.Context, entity string, ids []string, _ domain.Snapshot) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Record
	for _, id := range ids {
		if f, ok := s.rows[entity][id]; ok {
			out = append(out, domain.Record{ID: id, Fields: f})
		}
	}
	return out, nil
}

type memBackend struct {
	mu       sync.Mutex
	docs     map[string]map[string]map[string]any
	upserts  int
	deletes  int
	mappings map[string]domain.Mapping
}

func newMemBackend() *memBackend {
	return &memBackend{docs: map[string]map[string]map[string]any{}, mappings: map[string]domain.Mapping{}}
}

func (b *memBackend) PutMapping(_ context.Context, index string, m domain.Mapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mappings[index] = m
	return nil
}

func (b *memBackend) BulkUpsert(_ context.Context, index string, docs []domain.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upserts++
	if b.docs[index] == nil {
		b.docs[index] = map[string]map[string]any{}
	}
	for _, d := range docs {
		b.docs[index][d.ID] = d.Source
	}
	return nil
}

func (b *memBackend) Delete(_ context.Context, index string, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	for _, id := range ids {
		delete(b.docs[index], id)
	}
	return nil
}

func (b *memBackend) Search(context.Context, string, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func (b *memBackend) snapshot(index string) map[string]map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.docs[index])
}
