// Package es implements the search backend on Elasticsearch.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// Error values returned by the backend for callers to react to. Both are
// transient and retried by the consumer.
var (
	ErrTooManyRequests = fmt.Errorf("elasticsearch: too many requests (429): %w", domain.ErrTransient)
	ErrServerError     = fmt.Errorf("elasticsearch: server error (5xx): %w", domain.ErrTransient)
)

// Backend implements ports.SearchBackend and ports.IndexManager using the
// Elasticsearch v8 client.
type Backend struct {
	client  *elasticsearch.Client
	refresh string
}

var (
	_ ports.SearchBackend = (*Backend)(nil)
	_ ports.IndexManager  = (*Backend)(nil)
)

// Option configures a Backend.
type Option func(*Backend)

// WithRefresh sets the refresh policy of bulk writes ("true", "false" or
// "wait_for"). Tests use "wait_for" to read their own writes.
func WithRefresh(policy string) Option {
	return func(b *Backend) { b.refresh = policy }
}

// NewBackend constructs a new Backend.
func NewBackend(client *elasticsearch.Client, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	b := &Backend{client: client, refresh: "false"}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// BulkUpsert implements ports.SearchBackend by sending index actions via the
// Bulk API. Re-sending the same documents converges to the same state.
func (b *Backend) BulkUpsert(ctx context.Context, index string, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, doc := range docs {
		meta := map[string]any{
			"index": map[string]any{
				"_index": index,
				"_id":    doc.ID,
			},
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode bulk meta: %w", err)
		}
		if err := enc.Encode(doc.Source); err != nil {
			return fmt.Errorf("encode bulk doc %s: %w", doc.ID, err)
		}
	}
	return b.bulk(ctx, &buf)
}

// Delete implements ports.SearchBackend. Documents already gone are ignored.
func (b *Backend) Delete(ctx context.Context, index string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		meta := map[string]any{
			"delete": map[string]any{
				"_index": index,
				"_id":    id,
			},
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode bulk meta: %w", err)
		}
	}
	return b.bulk(ctx, &buf)
}

func (b *Backend) bulk(ctx context.Context, body *bytes.Buffer) error {
	res, err := b.client.Bulk(
		bytes.NewReader(body.Bytes()),
		b.client.Bulk.WithContext(ctx),
		b.client.Bulk.WithRefresh(b.refresh),
	)
	if err != nil {
		return transportError("bulk request", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return responseError("bulk", res.StatusCode, res.Body)
	}

	// Inspect per-item errors in the bulk response.
	var reply struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string     `json:"_id"`
			Status int        `json:"status"`
			Error  *errorBody `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !reply.Errors {
		return nil
	}

	for _, item := range reply.Items {
		for action, v := range item {
			if err := retriableError(v.Status); err != nil {
				return err
			}
			switch {
			case v.Status == http.StatusConflict:
				// Concurrent write of the same document; last write wins.
				continue
			case v.Status == http.StatusNotFound && action == "delete":
				continue
			case v.Status == http.StatusNotFound:
				return fmt.Errorf("bulk %s %s: %w", action, v.ID, domain.ErrIndexNotFound)
			case v.Error != nil:
				return fmt.Errorf("bulk %s %s: %s: %s", action, v.ID, v.Error.Type, v.Error.Reason)
			}
		}
	}
	return nil
}
