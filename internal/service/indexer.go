// Package service wires the indexing pipeline: the queue consumer, the
// write-event publisher and the full reindex entry points.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/indexer"
	"github.com/nimafallahian/go-indexer/internal/mapping"
	"github.com/nimafallahian/go-indexer/internal/metrics"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// IndexerService orchestrates reading indexing messages from the queue,
// handing them to their indexer, chaining full reindexes and acknowledging
// messages once their outcome is settled.
type IndexerService struct {
	consumer   ports.MessageConsumer
	registry   *indexer.Registry
	dispatcher ports.MessageDispatcher

	deadLetter    ports.DeadLetterer
	runs          *RunState
	drift         *mapping.DriftStore
	logger        *slog.Logger
	workerCount   int
	maxAttempts   int
	retryBackoff  time.Duration
	storeTimeout  time.Duration
	searchTimeout time.Duration
}

// Option configures an IndexerService.
type Option func(*IndexerService)

// WithWorkerCount sets the number of concurrent workers.
func WithWorkerCount(n int) Option {
	return func(s *IndexerService) { s.workerCount = n }
}

// WithRetry sets the number of attempts per message and the initial backoff,
// doubled after every failed attempt.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(s *IndexerService) {
		s.maxAttempts = maxAttempts
		s.retryBackoff = backoff
	}
}

// WithTimeouts bounds calls to the primary store (successor computation) and
// to the search backend (handle).
func WithTimeouts(store, search time.Duration) Option {
	return func(s *IndexerService) {
		s.storeTimeout = store
		s.searchTimeout = search
	}
}

// WithDeadLetterer parks messages that exhausted their attempts. Without it
// such messages stay uncommitted and are redelivered.
func WithDeadLetterer(d ports.DeadLetterer) Option {
	return func(s *IndexerService) { s.deadLetter = d }
}

// WithRunState drops full reindex messages of abandoned runs.
func WithRunState(r *RunState) Option {
	return func(s *IndexerService) { s.runs = r }
}

// WithDrift clears drifted entities once a chain has walked their indexer.
func WithDrift(d *mapping.DriftStore) Option {
	return func(s *IndexerService) { s.drift = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *IndexerService) { s.logger = l }
}

// NewIndexerService constructs a new IndexerService.
func NewIndexerService(consumer ports.MessageConsumer, registry *indexer.Registry, dispatcher ports.MessageDispatcher, opts ...Option) (*IndexerService, error) {
	if consumer == nil || registry == nil || dispatcher == nil {
		return nil, fmt.Errorf("consumer, registry and dispatcher must not be nil")
	}
	s := &IndexerService{
		consumer:    consumer,
		registry:    registry,
		dispatcher:  dispatcher,
		logger:      slog.Default(),
		workerCount: 1,
		maxAttempts: 1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.workerCount <= 0 {
		s.workerCount = 1
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 1
	}
	return s, nil
}

// Start begins consuming messages and processing them with a worker pool.
// It blocks until the context is cancelled or the consumer stops, and
// returns the consumer's terminal error if any.
func (s *IndexerService) Start(ctx context.Context) error {
	msgCh, errCh := s.consumer.Consume(ctx)

	var wg sync.WaitGroup
	wg.Add(s.workerCount)

	for i := 0; i < s.workerCount; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgCh:
					if !ok {
						return
					}
					s.handleMessage(ctx, msg)
				}
			}
		}()
	}

	var consumeErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			consumeErr = fmt.Errorf("consume: %w", err)
			s.logger.Error("consumer stopped", "error", err)
		}
	}

	wg.Wait()
	return consumeErr
}

func (s *IndexerService) handleMessage(ctx context.Context, qm ports.QueueMessage) {
	msg := qm.Message
	log := s.logger.With(
		"indexer", msg.Indexer,
		"kind", msg.Kind,
		"trace_id", msg.TraceID,
	)

	// Consumed: an identical message may be dispatched again.
	if t, ok := s.dispatcher.(ports.PendingTracker); ok {
		t.Release(msg.DeduplicationID())
	}

	if msg.Kind == domain.KindFull && s.runs != nil {
		stale, err := s.runs.Stale(ctx, msg.RunID)
		if err != nil {
			log.Error("failed to check run id", "error", err)
			return
		}
		if stale {
			log.Info("dropping message of abandoned run", "run_id", msg.RunID)
			metrics.MessagesHandled.WithLabelValues(msg.Indexer, string(msg.Kind), metrics.ResultStale).Inc()
			s.commit(ctx, qm, log)
			return
		}
	}

	start := time.Now()
	next, err := s.process(ctx, msg, log)
	metrics.HandleDuration.WithLabelValues(msg.Indexer, string(msg.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; leave the message for redelivery.
			return
		}
		log.Error("indexing failed",
			"ids", msg.IDs,
			"offset", msg.Offset,
			"run_id", msg.RunID,
			"error", err,
		)
		if s.deadLetter == nil {
			metrics.MessagesHandled.WithLabelValues(msg.Indexer, string(msg.Kind), metrics.ResultError).Inc()
			return
		}
		if dlErr := s.deadLetter.DeadLetter(ctx, msg, err); dlErr != nil {
			log.Error("failed to dead letter message", "error", dlErr)
			metrics.MessagesHandled.WithLabelValues(msg.Indexer, string(msg.Kind), metrics.ResultError).Inc()
			return
		}
		// A dead-lettered full message has no successor: the chain stalls
		// here until the message is replayed.
		metrics.MessagesHandled.WithLabelValues(msg.Indexer, string(msg.Kind), metrics.ResultDeadLetter).Inc()
		s.commit(ctx, qm, log)
		return
	}

	if next != nil {
		if err := s.dispatcher.Dispatch(ctx, *next); err != nil {
			// Not committed: redelivery handles the batch again and retries
			// the successor.
			log.Error("failed to dispatch successor",
				"next_indexer", next.Indexer,
				"offset", next.Offset,
				"error", err,
			)
			metrics.MessagesHandled.WithLabelValues(msg.Indexer, string(msg.Kind), metrics.ResultError).Inc()
			return
		}
	}
	if msg.Kind == domain.KindFull && (next == nil || next.Indexer != msg.Indexer) {
		s.finishIndexer(ctx, msg, log)
	}

	metrics.MessagesHandled.WithLabelValues(msg.Indexer, string(msg.Kind), metrics.ResultOK).Inc()
	s.commit(ctx, qm, log)
}

// process handles msg and computes its successor, retrying transient
// failures with exponential backoff.
func (s *IndexerService) process(ctx context.Context, msg domain.IndexingMessage, log *slog.Logger) (*domain.IndexingMessage, error) {
	backoff := s.retryBackoff
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		next, err := s.attempt(ctx, msg)
		if err == nil {
			return next, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) || attempt == s.maxAttempts {
			return nil, fmt.Errorf("attempt %d/%d: %w", attempt, s.maxAttempts, err)
		}

		metrics.MessagesHandled.WithLabelValues(msg.Indexer, string(msg.Kind), metrics.ResultRetry).Inc()
		log.Warn("retrying message", "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (s *IndexerService) attempt(ctx context.Context, msg domain.IndexingMessage) (*domain.IndexingMessage, error) {
	hctx, cancel := withTimeout(ctx, s.searchTimeout)
	res, err := s.registry.Handle(hctx, msg)
	cancel()
	if err != nil {
		return nil, err
	}
	if res.Upserted > 0 {
		metrics.DocumentsWritten.WithLabelValues(msg.Indexer, "upsert").Add(float64(res.Upserted))
	}
	if res.Deleted > 0 {
		metrics.DocumentsWritten.WithLabelValues(msg.Indexer, "delete").Add(float64(res.Deleted))
	}

	if msg.Kind != domain.KindFull {
		return nil, nil
	}
	nctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.registry.Next(nctx, msg)
}

// finishIndexer runs once a chain has walked every batch of msg.Indexer.
func (s *IndexerService) finishIndexer(ctx context.Context, msg domain.IndexingMessage, log *slog.Logger) {
	log.Info("indexer reindexed", "run_id", msg.RunID, "chain_done", len(msg.Remaining) <= 1)
	if s.drift == nil {
		return
	}
	idx, err := s.registry.Get(msg.Indexer)
	if err != nil {
		return
	}
	set, err := s.drift.Remove(ctx, idx.Entity())
	if err != nil {
		log.Error("failed to clear mapping drift", "entity", idx.Entity(), "error", err)
		return
	}
	metrics.DriftedEntities.Set(float64(len(set)))
}

func (s *IndexerService) commit(ctx context.Context, qm ports.QueueMessage, log *slog.Logger) {
	if qm.Commit == nil {
		return
	}
	if err := qm.Commit(ctx); err != nil {
		log.Error("failed to commit message", "error", err)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
