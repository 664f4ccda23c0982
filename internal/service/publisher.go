package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/indexer"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// Publisher turns primary-store writes into incremental indexing messages.
type Publisher struct {
	registry   *indexer.Registry
	dispatcher ports.MessageDispatcher
	logger     *slog.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(registry *indexer.Registry, dispatcher ports.MessageDispatcher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{registry: registry, dispatcher: dispatcher, logger: logger}
}

// Publish asks every indexer not named in skip for the message event
// requires and dispatches each one independently. It returns the number of
// messages dispatched; a failed dispatch does not prevent the others.
func (p *Publisher) Publish(ctx context.Context, event domain.WriteEvent, skip []string) (int, error) {
	var (
		result     *multierror.Error
		dispatched int
	)
	for _, msg := range p.registry.Update(event, skip) {
		if err := p.dispatcher.Dispatch(ctx, msg); err != nil {
			result = multierror.Append(result, fmt.Errorf("dispatch %s: %w", msg.Indexer, err))
			continue
		}
		dispatched++
		p.logger.Debug("dispatched incremental message",
			"indexer", msg.Indexer,
			"ids", msg.IDs,
			"trace_id", msg.TraceID,
		)
	}
	return dispatched, result.ErrorOrNil()
}
