// Package app assembles the pipeline components from configuration. Both the
// consumer daemon and the operator CLI build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/hashicorp/go-multierror"

	boltadapter "github.com/nimafallahian/go-indexer/internal/adapters/bolt"
	esadapter "github.com/nimafallahian/go-indexer/internal/adapters/es"
	kafkaadapter "github.com/nimafallahian/go-indexer/internal/adapters/kafka"
	sqliteadapter "github.com/nimafallahian/go-indexer/internal/adapters/sqlite"
	"github.com/nimafallahian/go-indexer/internal/config"
	"github.com/nimafallahian/go-indexer/internal/indexer"
	"github.com/nimafallahian/go-indexer/internal/mapping"
	"github.com/nimafallahian/go-indexer/internal/search"
	"github.com/nimafallahian/go-indexer/internal/service"
)

// App holds the opened adapters and the services built on them.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *sqliteadapter.Store
	State    *boltadapter.KV
	Backend  *esadapter.Backend
	Producer *kafkaadapter.Producer
	Registry *indexer.Registry
	Drift    *mapping.DriftStore
	Runs     *service.RunState
}

// Open opens the record store, the state file, the search client and the
// queue producer, and builds the indexer registry. Close releases them.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	defs := indexer.Definitions(cfg.ElasticIndexPrefix, cfg.IndexLanguages...)
	entities := make([]string, 0, len(defs))
	for _, def := range defs {
		entities = append(entities, def.Entity)
	}

	for _, path := range []string{cfg.StorePath, cfg.StatePath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	if a.Store, err = sqliteadapter.Open(ctx, cfg.StorePath, entities...); err != nil {
		return nil, err
	}
	if a.State, err = boltadapter.Open(cfg.StatePath, cfg.StateLockTimeout); err != nil {
		return nil, err
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.ElasticURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	if a.Backend, err = esadapter.NewBackend(client); err != nil {
		return nil, err
	}

	a.Producer, err = kafkaadapter.NewProducer(kafkaadapter.ProducerConfig{
		Brokers:         cfg.KafkaBrokers,
		Topic:           cfg.KafkaTopic,
		DeadLetterTopic: cfg.KafkaDeadLetterTopic,
		DedupWindow:     cfg.DedupWindow,
		DedupCapacity:   cfg.DedupCapacity,
	}, logger)
	if err != nil {
		return nil, err
	}

	idx := make([]indexer.EntityIndexer, 0, len(defs))
	for _, def := range defs {
		e, err := indexer.NewEntity(def, a.Store, a.Backend, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		idx = append(idx, e)
	}
	if a.Registry, err = indexer.NewRegistry(idx...); err != nil {
		return nil, err
	}

	a.Drift = mapping.NewDriftStore(a.State)
	a.Runs = service.NewRunState(a.State)
	return a, nil
}

// Reindexer builds the full reindex entry point.
func (a *App) Reindexer() *service.Reindexer {
	return service.NewReindexer(a.Registry, a.Producer, a.Runs, a.Drift, a.Backend, a.Logger)
}

// Publisher builds the write-event publisher.
func (a *App) Publisher() *service.Publisher {
	return service.NewPublisher(a.Registry, a.Producer, a.Logger)
}

// Updater builds the mapping updater over every registered indexer.
func (a *App) Updater() *mapping.Updater {
	return mapping.NewUpdater(a.Registry.Indexers(), a.Backend, a.Drift, a.Logger)
}

// Searcher builds the read path.
func (a *App) Searcher() (*search.Searcher, error) {
	return search.NewSearcher(a.Backend, a.Config.SearchTimeout, a.Logger)
}

// Close releases every opened adapter.
func (a *App) Close() error {
	var result *multierror.Error
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close producer: %w", err))
		}
	}
	if a.State != nil {
		if err := a.State.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close state: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
	}
	return result.ErrorOrNil()
}
