// Package mapping pushes declared field mappings to the search backend and
// records the entity types whose stored mapping can no longer evolve.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/indexer"
	"github.com/nimafallahian/go-indexer/internal/metrics"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// Report summarises one mapping push pass.
type Report struct {
	Pushed    []string
	Conflicts []*domain.MappingConflictError
	// Drift is the persisted drift set after the pass.
	Drift []string
}

// Updater pushes the mapping of every registered indexer.
type Updater struct {
	indexers []indexer.EntityIndexer
	backend  ports.SearchBackend
	drift    *DriftStore
	logger   *slog.Logger
}

// NewUpdater constructs an Updater.
func NewUpdater(indexers []indexer.EntityIndexer, backend ports.SearchBackend, drift *DriftStore, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{indexers: indexers, backend: backend, drift: drift, logger: logger}
}

// Update runs one pass. A type conflict is recorded in the drift set and the
// pass continues with the next indexer. A missing index aborts the pass with
// an error wrapping domain.ErrIndexNotFound, as does any other backend error.
// Conflicts recorded before an abort are still persisted.
func (u *Updater) Update(ctx context.Context) (Report, error) {
	var (
		report  Report
		drifted []string
		fatal   error
	)

	for _, idx := range u.indexers {
		err := u.backend.PutMapping(ctx, idx.Index(), idx.Mapping())
		if err == nil {
			report.Pushed = append(report.Pushed, idx.Name())
			metrics.MappingPushes.WithLabelValues(idx.Name(), metrics.ResultOK).Inc()
			continue
		}

		var conflict *domain.MappingConflictError
		if errors.As(err, &conflict) {
			conflict.Indexer = idx.Name()
			if conflict.Index == "" {
				conflict.Index = idx.Index()
			}
			report.Conflicts = append(report.Conflicts, conflict)
			drifted = append(drifted, idx.Entity())
			metrics.MappingPushes.WithLabelValues(idx.Name(), metrics.ResultConflict).Inc()
			u.logger.Warn("mapping drift recorded",
				"indexer", idx.Name(),
				"entity", idx.Entity(),
				"index", idx.Index(),
				"error", conflict,
			)
			continue
		}

		metrics.MappingPushes.WithLabelValues(idx.Name(), metrics.ResultError).Inc()
		fatal = fmt.Errorf("push mapping of %s to %s: %w", idx.Name(), idx.Index(), err)
		u.logger.Error("mapping push aborted", "indexer", idx.Name(), "index", idx.Index(), "error", err)
		break
	}

	set, err := u.drift.Add(ctx, drifted...)
	if err != nil {
		return report, multierror.Append(fatal, err).ErrorOrNil()
	}
	report.Drift = set
	metrics.DriftedEntities.Set(float64(len(set)))
	return report, fatal
}
