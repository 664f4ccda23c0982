package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/indexer"
	"github.com/nimafallahian/go-indexer/internal/mapping"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// StartOptions selects what a full reindex walks.
type StartOptions struct {
	// Only restricts the run to the named indexers, in that order.
	Only []string
	// Skip names indexers left out and enrichers not applied.
	Skip    []string
	Context domain.Snapshot
	// PrioritizeDrift moves indexers of drifted entities to the front.
	PrioritizeDrift bool
}

// Reindexer starts and abandons full reindex runs.
type Reindexer struct {
	registry   *indexer.Registry
	dispatcher ports.MessageDispatcher
	runs       *RunState
	drift      *mapping.DriftStore
	indices    ports.IndexManager
	logger     *slog.Logger
}

// NewReindexer constructs a Reindexer. indices may be nil when indices are
// never recreated.
func NewReindexer(registry *indexer.Registry, dispatcher ports.MessageDispatcher, runs *RunState, drift *mapping.DriftStore, indices ports.IndexManager, logger *slog.Logger) *Reindexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindexer{
		registry:   registry,
		dispatcher: dispatcher,
		runs:       runs,
		drift:      drift,
		indices:    indices,
		logger:     logger,
	}
}

// Start begins a new run and enqueues its seed message. Chains of earlier
// runs become stale.
func (r *Reindexer) Start(ctx context.Context, opts StartOptions) (domain.IndexingMessage, error) {
	names := opts.Only
	if len(names) == 0 {
		names = r.registry.Names()
	}
	if opts.PrioritizeDrift {
		drifted, err := r.drift.Load(ctx)
		if err != nil {
			return domain.IndexingMessage{}, err
		}
		names = r.prioritize(names, drifted)
	}

	// Validate before abandoning the current run.
	if _, err := r.registry.Seed(opts.Context, names, opts.Skip, ""); err != nil {
		return domain.IndexingMessage{}, err
	}

	runID, err := r.runs.Begin(ctx)
	if err != nil {
		return domain.IndexingMessage{}, err
	}
	seed, err := r.registry.Seed(opts.Context, names, opts.Skip, runID)
	if err != nil {
		return domain.IndexingMessage{}, err
	}
	if err := r.dispatcher.Dispatch(ctx, seed); err != nil {
		return domain.IndexingMessage{}, fmt.Errorf("dispatch seed: %w", err)
	}

	r.logger.Info("full reindex started",
		"run_id", runID,
		"indexers", seed.Remaining,
		"trace_id", seed.TraceID,
	)
	return seed, nil
}

func (r *Reindexer) prioritize(names, drifted []string) []string {
	var first, rest []string
	for _, name := range names {
		idx, err := r.registry.Get(name)
		if err == nil && slices.Contains(drifted, idx.Entity()) {
			first = append(first, name)
			continue
		}
		rest = append(rest, name)
	}
	return append(first, rest...)
}

// Reset abandons any in-flight run and forgets the drift record. With
// recreate every index is dropped and created again with its mapping.
func (r *Reindexer) Reset(ctx context.Context, recreate bool) error {
	runID, err := r.runs.Begin(ctx)
	if err != nil {
		return err
	}
	if err := r.drift.Clear(ctx); err != nil {
		return err
	}

	if recreate {
		if r.indices == nil {
			return fmt.Errorf("no index manager configured")
		}
		for _, idx := range r.registry.Indexers() {
			if err := r.indices.DeleteIndex(ctx, idx.Index()); err != nil {
				return fmt.Errorf("drop %s: %w", idx.Index(), err)
			}
			if _, err := r.indices.EnsureIndex(ctx, idx.Index(), idx.Mapping()); err != nil {
				return fmt.Errorf("create %s: %w", idx.Index(), err)
			}
		}
	}

	r.logger.Info("indexing state reset", "run_id", runID, "recreated", recreate)
	return nil
}
