// Package kafka carries indexing messages over Kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer implements ports.MessageConsumer using segmentio/kafka-go.
type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	offsets *offsetTracker
}

var _ ports.MessageConsumer = (*Consumer)(nil)

// NewConsumer constructs a new Consumer configured for manual offset commits.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers must not be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic must not be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("groupID must not be empty")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		CommitInterval: 0, // manual commits only
	})

	return newConsumer(reader, logger), nil
}

func newConsumer(reader messageReader, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, logger: logger, offsets: newOffsetTracker()}
}

// Consume starts a goroutine that continuously reads from Kafka and pushes
// decoded indexing messages onto a channel until the context is cancelled.
// Messages that do not decode are logged and committed so they cannot block
// the partition.
//
// Committing a message only moves the partition's committed offset up to the
// oldest fetched message that is still uncommitted. A message that is never
// committed holds its partition's offset back, so it is redelivered after a
// restart even when workers committed later messages of the same partition.
func (c *Consumer) Consume(ctx context.Context) (<-chan ports.QueueMessage, <-chan error) {
	msgCh := make(chan ports.QueueMessage)
	errCh := make(chan error, 1)

	go func() {
		defer close(msgCh)
		defer close(errCh)

		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				errCh <- err
				return
			}

			entry := c.offsets.fetched(m)
			commit := func(commitCtx context.Context) error {
				return c.offsets.done(entry, func(upTo kafkago.Message) error {
					return c.reader.CommitMessages(commitCtx, upTo)
				})
			}

			msg, err := domain.DecodeMessage(m.Value)
			if err != nil {
				c.logger.Error("dropping undecodable message",
					"topic", m.Topic,
					"partition", m.Partition,
					"offset", m.Offset,
					"error", err,
				)
				if cerr := commit(ctx); cerr != nil {
					errCh <- cerr
					return
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case msgCh <- ports.QueueMessage{Message: msg, Commit: commit}:
			}
		}
	}()

	return msgCh, errCh
}

// Close releases the underlying reader resources.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

type inflight struct {
	msg  kafkago.Message
	done bool
}

// offsetTracker keeps the fetched but uncommitted messages of every partition
// in fetch order.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int][]*inflight
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int][]*inflight)}
}

func (t *offsetTracker) fetched(m kafkago.Message) *inflight {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &inflight{msg: m}
	t.partitions[m.Partition] = append(t.partitions[m.Partition], e)
	return e
}

// done marks e as handled and calls commit with the newest message of the
// leading run of handled messages, if e completed one. commit runs under the
// tracker lock so committed offsets never move backwards.
func (t *offsetTracker) done(e *inflight, commit func(kafkago.Message) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.done = true
	queue := t.partitions[e.msg.Partition]
	n := 0
	for n < len(queue) && queue[n].done {
		n++
	}
	if n == 0 {
		return nil
	}
	if err := commit(queue[n-1].msg); err != nil {
		return err
	}
	t.partitions[e.msg.Partition] = queue[n:]
	return nil
}
