package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nimafallahian/go-indexer/internal/ports"
)

// RunKey is the state key holding the id of the current full reindex run.
const RunKey = "search.indexing.run_id"

// RunState tracks the current full reindex generation. Chains stamped with
// another run id are stale and stop at their next message.
type RunState struct {
	kv ports.KVStore
}

// NewRunState constructs a RunState backed by kv.
func NewRunState(kv ports.KVStore) *RunState {
	return &RunState{kv: kv}
}

// Current returns the active run id, or "" when none was started.
func (r *RunState) Current(ctx context.Context) (string, error) {
	raw, err := r.kv.Get(ctx, RunKey)
	if err != nil {
		return "", fmt.Errorf("load run id: %w", err)
	}
	return string(raw), nil
}

// Begin starts a new generation and returns its id.
func (r *RunState) Begin(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := r.kv.Set(ctx, RunKey, []byte(id)); err != nil {
		return "", fmt.Errorf("save run id: %w", err)
	}
	return id, nil
}

// Stale reports whether runID belongs to an abandoned generation. Messages
// without a run id, and any message while no run was recorded, are current.
func (r *RunState) Stale(ctx context.Context, runID string) (bool, error) {
	if runID == "" {
		return false, nil
	}
	current, err := r.Current(ctx)
	if err != nil {
		return false, err
	}
	return current != "" && current != runID, nil
}
