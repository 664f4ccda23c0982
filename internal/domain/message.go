package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Kind discriminates the two message shapes travelling on the indexing queue.
type Kind string

const (
	// KindFull messages belong to a chained full reindex and produce a successor.
	KindFull Kind = "full"
	// KindIncremental messages re-index the documents touched by a write. They never chain.
	KindIncremental Kind = "incremental"
)

// Snapshot is the read context under which fresh entity data is loaded.
type Snapshot struct {
	LanguageID string `json:"language_id,omitempty"`
	VersionID  string `json:"version_id,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
}

// Offset is the opaque, serialisable position of a batched primary key scan:
// the last key handed out plus the number of keys handed out so far.
type Offset struct {
	LastKey string `json:"last_key"`
	Seen    int    `json:"seen"`
}

// IndexingMessage is the unit of work placed on the queue. Treat a message as
// immutable once built: the helper methods below return copies.
type IndexingMessage struct {
	Kind    Kind   `json:"kind"`
	Indexer string `json:"indexer"`
	// Remaining is the ordered list of indexers still to be walked by a full
	// reindex; its head is always Indexer. Empty for incremental messages.
	Remaining []string `json:"remaining,omitempty"`
	Index     string   `json:"index,omitempty"`
	IDs       []string `json:"ids,omitempty"`
	Offset    *Offset  `json:"offset,omitempty"`
	Context   Snapshot `json:"context"`
	Skip      []string `json:"skip,omitempty"`
	IsLast    bool     `json:"is_last,omitempty"`
	RunID     string   `json:"run_id,omitempty"`

	// Volatile fields, excluded from the deduplication key.
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewFullReindex builds the seed message of a chained full reindex over indexers.
func NewFullReindex(indexers []string, snap Snapshot, skip []string, runID string) IndexingMessage {
	msg := IndexingMessage{
		Kind:      KindFull,
		Remaining: slices.Clone(indexers),
		Context:   snap,
		Skip:      slices.Clone(skip),
		RunID:     runID,
		TraceID:   uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if len(indexers) > 0 {
		msg.Indexer = indexers[0]
	}
	return msg
}

// NewIncremental builds a terminal message re-indexing ids of one indexer.
func NewIncremental(indexer, index string, ids []string, snap Snapshot, skip []string) IndexingMessage {
	return IndexingMessage{
		Kind:      KindIncremental,
		Indexer:   indexer,
		Index:     index,
		IDs:       slices.Clone(ids),
		Context:   snap,
		Skip:      slices.Clone(skip),
		TraceID:   uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// WithBatch returns the successor of a full message that stays on the same
// indexer and carries the next batch of ids.
func (m IndexingMessage) WithBatch(index string, ids []string, offset *Offset, last bool) IndexingMessage {
	next := m.clone()
	next.Index = index
	next.IDs = slices.Clone(ids)
	next.Offset = offset
	next.IsLast = last
	next.CreatedAt = time.Now().UTC()
	return next
}

// Advance returns the successor that moves a full reindex to the next indexer
// with a fresh cursor. ok is false when no indexer remains.
func (m IndexingMessage) Advance() (next IndexingMessage, ok bool) {
	if len(m.Remaining) <= 1 {
		return IndexingMessage{}, false
	}
	next = m.clone()
	next.Remaining = next.Remaining[1:]
	next.Indexer = next.Remaining[0]
	next.Index = ""
	next.IDs = nil
	next.Offset = nil
	next.IsLast = false
	next.CreatedAt = time.Now().UTC()
	return next, true
}

// Skips reports whether name is in the message skip set.
func (m IndexingMessage) Skips(name string) bool {
	return slices.Contains(m.Skip, name)
}

// Validate checks that the message fields match its kind.
func (m IndexingMessage) Validate() error {
	switch m.Kind {
	case KindFull:
		if len(m.Remaining) == 0 {
			return fmt.Errorf("%w: full message without remaining indexers", ErrInvalidMessage)
		}
		if m.Remaining[0] != m.Indexer {
			return fmt.Errorf("%w: indexer %q is not the head of remaining %v", ErrInvalidMessage, m.Indexer, m.Remaining)
		}
	case KindIncremental:
		if m.Indexer == "" {
			return fmt.Errorf("%w: incremental message without indexer", ErrInvalidMessage)
		}
		if len(m.Remaining) > 0 || m.Offset != nil {
			return fmt.Errorf("%w: incremental message carries cursor state", ErrInvalidMessage)
		}
		if len(m.IDs) == 0 {
			return fmt.Errorf("%w: incremental message without ids", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// DeduplicationID hashes the parts of the message that define the unit of
// work: indexer, target index, sorted ids, offset and read context.
func (m IndexingMessage) DeduplicationID() string {
	ids := slices.Clone(m.IDs)
	sort.Strings(ids)

	key := struct {
		Entity  string   `json:"e"`
		Index   string   `json:"i"`
		IDs     []string `json:"ids"`
		Offset  *Offset  `json:"o"`
		Context Snapshot `json:"c"`
	}{m.Indexer, m.Index, ids, m.Offset, m.Context}

	// Marshalling a struct of strings cannot fail.
	data, _ := json.Marshal(key)
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Encode serialises the message for the queue.
func (m IndexingMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode indexing message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses and validates a queued message.
func DecodeMessage(data []byte) (IndexingMessage, error) {
	var m IndexingMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return IndexingMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return IndexingMessage{}, err
	}
	return m, nil
}

func (m IndexingMessage) clone() IndexingMessage {
	c := m
	c.Remaining = slices.Clone(m.Remaining)
	c.IDs = slices.Clone(m.IDs)
	c.Skip = slices.Clone(m.Skip)
	if m.Offset != nil {
		o := *m.Offset
		c.Offset = &o
	}
	return c
}
