package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/nimafallahian/go-indexer/internal/ports"
)

// DriftKey is the state key holding the set of drifted entity types.
const DriftKey = "search.indexing.mapping_drift"

// DriftStore persists the set of entity types whose search mapping could not
// be updated in place. Writes are read-modify-write on a single key; the last
// writer wins.
type DriftStore struct {
	kv ports.KVStore
}

// NewDriftStore constructs a DriftStore backed by kv.
func NewDriftStore(kv ports.KVStore) *DriftStore {
	return &DriftStore{kv: kv}
}

// Load returns the drifted entity types, sorted.
func (s *DriftStore) Load(ctx context.Context) ([]string, error) {
	raw, err := s.kv.Get(ctx, DriftKey)
	if err != nil {
		return nil, fmt.Errorf("load drift record: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode drift record: %w", err)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Add merges names into the persisted set and returns the new set.
func (s *DriftStore) Add(ctx context.Context, names ...string) ([]string, error) {
	current, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return current, nil
	}
	return s.save(ctx, append(current, names...))
}

// Remove drops names from the persisted set and returns the new set.
func (s *DriftStore) Remove(ctx context.Context, names ...string) ([]string, error) {
	current, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	kept := slices.DeleteFunc(current, func(n string) bool { return slices.Contains(names, n) })
	return s.save(ctx, kept)
}

// Clear forgets every drifted entity type.
func (s *DriftStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, DriftKey); err != nil {
		return fmt.Errorf("clear drift record: %w", err)
	}
	return nil
}

func (s *DriftStore) save(ctx context.Context, names []string) ([]string, error) {
	slices.Sort(names)
	names = slices.Compact(names)
	if len(names) == 0 {
		return nil, s.Clear(ctx)
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("encode drift record: %w", err)
	}
	if err := s.kv.Set(ctx, DriftKey, raw); err != nil {
		return nil, fmt.Errorf("save drift record: %w", err)
	}
	return names, nil
}
