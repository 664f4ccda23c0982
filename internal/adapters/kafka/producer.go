package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/golang-lru/v2/expirable"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/metrics"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// Header keys set on produced records.
const (
	HeaderDedupID = "dedup-id"
	HeaderTraceID = "trace-id"
	HeaderKind    = "kind"
	HeaderError   = "error"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ProducerConfig configures NewProducer.
type ProducerConfig struct {
	Brokers         []string
	Topic           string
	DeadLetterTopic string
	// DedupWindow bounds how long a dispatched message counts as pending.
	// Zero disables deduplication.
	DedupWindow   time.Duration
	DedupCapacity int
}

// Producer implements ports.MessageDispatcher and ports.DeadLetterer.
// Records are keyed by deduplication id and partitioned by hash.
type Producer struct {
	writer     messageWriter
	deadLetter messageWriter
	pending    *expirable.LRU[string, struct{}]
	logger     *slog.Logger
}

var (
	_ ports.MessageDispatcher = (*Producer)(nil)
	_ ports.DeadLetterer      = (*Producer)(nil)
	_ ports.PendingTracker    = (*Producer)(nil)
)

// NewProducer constructs a Producer writing to cfg.Topic.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers must not be empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic must not be empty")
	}

	writer := newWriter(cfg.Brokers, cfg.Topic)
	var dlq messageWriter
	if cfg.DeadLetterTopic != "" {
		dlq = newWriter(cfg.Brokers, cfg.DeadLetterTopic)
	}
	return newProducer(writer, dlq, cfg.DedupWindow, cfg.DedupCapacity, logger), nil
}

func newWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func newProducer(writer, deadLetter messageWriter, window time.Duration, capacity int, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{writer: writer, deadLetter: deadLetter, logger: logger}
	if window > 0 {
		p.pending = expirable.NewLRU[string, struct{}](capacity, nil, window)
	}
	return p
}

// Dispatch implements ports.MessageDispatcher. An incremental message whose
// deduplication id is still pending is dropped. Full-reindex messages are
// always written: the id leaves out the run, so a pending message of an
// abandoned run would otherwise swallow the new run's successor.
func (p *Producer) Dispatch(ctx context.Context, msg domain.IndexingMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	id := msg.DeduplicationID()
	dedup := msg.Kind == domain.KindIncremental
	if dedup && p.isPending(id) {
		metrics.DispatchDeduplicated.Inc()
		p.logger.Debug("dropping pending duplicate", "indexer", msg.Indexer, "dedup_id", id, "trace_id", msg.TraceID)
		return nil
	}

	record, err := p.record(msg, id)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("dispatch %s message for %s: %w", msg.Kind, msg.Indexer, err)
	}
	if dedup && p.pending != nil {
		p.pending.Add(id, struct{}{})
	}
	metrics.MessagesDispatched.WithLabelValues(msg.Indexer, string(msg.Kind)).Inc()
	return nil
}

func (p *Producer) isPending(id string) bool {
	if p.pending == nil {
		return false
	}
	_, ok := p.pending.Get(id)
	return ok
}

// Release implements ports.PendingTracker.
func (p *Producer) Release(dedupID string) {
	if p.pending != nil {
		p.pending.Remove(dedupID)
	}
}

// DeadLetter implements ports.DeadLetterer.
func (p *Producer) DeadLetter(ctx context.Context, msg domain.IndexingMessage, cause error) error {
	if p.deadLetter == nil {
		return fmt.Errorf("no dead letter topic configured")
	}
	record, err := p.record(msg, msg.DeduplicationID())
	if err != nil {
		return err
	}
	if cause != nil {
		record.Headers = append(record.Headers, kafkago.Header{Key: HeaderError, Value: []byte(cause.Error())})
	}
	if err := p.deadLetter.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("dead letter %s message for %s: %w", msg.Kind, msg.Indexer, err)
	}
	return nil
}

func (p *Producer) record(msg domain.IndexingMessage, id string) (kafkago.Message, error) {
	value, err := msg.Encode()
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(id),
		Value: value,
		Headers: []kafkago.Header{
			{Key: HeaderDedupID, Value: []byte(id)},
			{Key: HeaderTraceID, Value: []byte(msg.TraceID)},
			{Key: HeaderKind, Value: []byte(msg.Kind)},
		},
	}, nil
}

// Close flushes and closes the writers.
func (p *Producer) Close() error {
	var result *multierror.Error
	if err := p.writer.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if p.deadLetter != nil {
		if err := p.deadLetter.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
