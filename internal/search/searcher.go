// Package search runs criteria against the search backend and hydrates the
// raw response.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/hydrator"
	"github.com/nimafallahian/go-indexer/internal/metrics"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// Searcher is the read path facade.
type Searcher struct {
	backend ports.SearchBackend
	timeout time.Duration
	logger  *slog.Logger
}

// NewSearcher constructs a Searcher. A non-positive timeout disables the
// per-request deadline.
func NewSearcher(backend ports.SearchBackend, timeout time.Duration, logger *slog.Logger) (*Searcher, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{backend: backend, timeout: timeout, logger: logger}, nil
}

// Search queries index for criteria.
func (s *Searcher) Search(ctx context.Context, index string, criteria domain.Criteria) (*domain.HydratedResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.backend.Search(ctx, index, BuildQuery(criteria))
	if err != nil {
		metrics.SearchRequests.WithLabelValues(index, metrics.ResultError).Inc()
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	metrics.SearchRequests.WithLabelValues(index, metrics.ResultOK).Inc()

	if _, ok := raw["hits"]; !ok {
		s.logger.Warn("search response without hits", "index", index)
	}
	return hydrator.Hydrate(criteria, raw), nil
}
