package ports

import (
	"context"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

// QueueMessage represents a unit of work received from the queue along with
// a mechanism to commit it once processing has completed.
type QueueMessage struct {
	Message domain.IndexingMessage

	// Commit acknowledges the message after successful processing.
	Commit func(ctx context.Context) error
}

// MessageConsumer exposes a streaming interface for consuming indexing messages.
// Implementations must be goroutine-safe and compatible with select-based loops.
type MessageConsumer interface {
	// Consume returns a read-only channel of QueueMessage instances and a channel
	// for terminal errors from the consumer loop. Both channels must be closed
	// when the provided context is cancelled or the consumer shuts down.
	Consume(ctx context.Context) (<-chan QueueMessage, <-chan error)
}

// MessageDispatcher places messages on the queue.
type MessageDispatcher interface {
	// Dispatch enqueues msg. Implementations may drop a message whose
	// deduplication id is already pending; handlers stay idempotent regardless.
	Dispatch(ctx context.Context, msg domain.IndexingMessage) error
}

// DeadLetterer parks messages that exhausted their retries.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg domain.IndexingMessage, cause error) error
}

// PendingTracker is implemented by dispatchers that drop messages whose
// deduplication id is still pending. Release marks id as consumed.
type PendingTracker interface {
	Release(dedupID string)
}
