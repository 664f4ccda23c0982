package service

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/indexer"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

type mockMessageConsumer struct {
	mock.Mock
}

func (m *mockMessageConsumer) Consume(ctx context.Context) (<-chan ports.QueueMessage, <-chan error) {
	args := m.Called(ctx)
	return args.Get(0).(<-chan ports.QueueMessage), args.Get(1).(<-chan error)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, msg domain.IndexingMessage) error {
	return m.Called(ctx, msg).Error(0)
}

type mockDeadLetterer struct {
	mock.Mock
}

func (m *mockDeadLetterer) DeadLetter(ctx context.Context, msg domain.IndexingMessage, cause error) error {
	return m.Called(ctx, msg, cause).Error(0)
}

type memStore struct {
	mu   sync.Mutex
	rows map[string]map[string]map[string]any
}

func newMemStore(entities ...string) *memStore {
	s := &memStore{rows: map[string]map[string]map[string]any{}}
	for _, e := range entities {
		s.rows[e] = map[string]map[string]any{}
	}
	return s
}

func (s *memStore) put(entity, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[entity][id] = fields
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
		if k > after && len(out) < limit {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memStore) CountKeys(_ context.Context, entity string) (int, error) {
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

// memBackend stores documents per index. upsertErr, when set, decides the
// outcome of the n-th BulkUpsert call (starting at 1).
type memBackend struct {
	mu        sync.Mutex
	docs      map[string]map[string]map[string]any
	calls     int
	upsertErr func(n int) error
}

func newMemBackend() *memBackend {
	return &memBackend{docs: map[string]map[string]map[string]any{}}
}

func (b *memBackend) PutMapping(context.Context, string, domain.Mapping) error { return nil }

func (b *memBackend) BulkUpsert(_ context.Context, index string, docs []domain.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.upsertErr != nil {
		if err := b.upsertErr(b.calls); err != nil {
			return err
		}
	}
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
	for _, id := range ids {
		delete(b.docs[index], id)
	}
	return nil
}

func (b *memBackend) Search(context.Context, string, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func (b *memBackend) count(index string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs[index])
}

func (b *memBackend) upsertCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (kv *memKV) Get(_ context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return slices.Clone(kv.data[key]), nil
}

func (kv *memKV) Set(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = slices.Clone(value)
	return nil
}

func (kv *memKV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}

// loopDispatcher feeds dispatched messages back to the consumer side, the
// way the queue does between a producer and its consumer group.
type loopDispatcher struct {
	mu         sync.Mutex
	ch         chan ports.QueueMessage
	dispatched []domain.IndexingMessage
	commits    int
}

func newLoopDispatcher() *loopDispatcher {
	return &loopDispatcher{ch: make(chan ports.QueueMessage, 64)}
}

func (d *loopDispatcher) Dispatch(_ context.Context, msg domain.IndexingMessage) error {
	d.mu.Lock()
	d.dispatched = append(d.dispatched, msg)
	d.mu.Unlock()
	d.ch <- ports.QueueMessage{Message: msg, Commit: func(context.Context) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.commits++
		return nil
	}}
	return nil
}

func (d *loopDispatcher) Consume(context.Context) (<-chan ports.QueueMessage, <-chan error) {
	return d.ch, make(chan error)
}

func (d *loopDispatcher) snapshot() ([]domain.IndexingMessage, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.dispatched), d.commits
}

func shopRegistry(t *testing.T, store ports.RecordStore, backend ports.SearchBackend, batch int) *indexer.Registry {
	t.Helper()
	var idx []indexer.EntityIndexer
	for _, def := range indexer.Definitions("shop") {
		e, err := indexer.NewEntity(def, store, backend, batch)
		require.NoError(t, err)
		idx = append(idx, e)
	}
	r, err := indexer.NewRegistry(idx...)
	require.NoError(t, err)
	return r
}
