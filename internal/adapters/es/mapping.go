package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

func mappingBody(m domain.Mapping) map[string]any {
	props := make(map[string]any, len(m))
	for name, f := range m {
		field := map[string]any{"type": string(f.Type)}
		if f.Analyzer != "" {
			field["analyzer"] = f.Analyzer
		}
		props[name] = field
	}
	return map[string]any{"properties": props}
}

// PutMapping implements ports.SearchBackend.
func (b *Backend) PutMapping(ctx context.Context, index string, mapping domain.Mapping) error {
	body, err := json.Marshal(mappingBody(mapping))
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	res, err := b.client.Indices.PutMapping(
		[]string{index},
		bytes.NewReader(body),
		b.client.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return transportError("put mapping", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if !res.IsError() {
		return nil
	}

	raw, _ := io.ReadAll(res.Body)
	if conflict := mappingConflict(index, res.StatusCode, raw); conflict != nil {
		return conflict
	}
	return responseError("put mapping "+index, res.StatusCode, bytes.NewReader(raw))
}

// mappingConflict recognises the rejection of a field type change.
func mappingConflict(index string, status int, raw []byte) *domain.MappingConflictError {
	if status != http.StatusBadRequest {
		return nil
	}
	var reply struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil
	}
	if reply.Error.Type != "illegal_argument_exception" || !strings.Contains(reply.Error.Reason, "cannot be changed from type") {
		return nil
	}
	return &domain.MappingConflictError{Index: index, Reason: reply.Error.Reason}
}

// EnsureIndex implements ports.IndexManager. It creates index with mapping
// unless it already exists.
func (b *Backend) EnsureIndex(ctx context.Context, index string, mapping domain.Mapping) (bool, error) {
	exists, err := b.client.Indices.Exists([]string{index}, b.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, transportError("index exists", err)
	}
	_ = exists.Body.Close()

	switch exists.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
	default:
		return false, responseError("index exists "+index, exists.StatusCode, http.NoBody)
	}

	body, err := json.Marshal(map[string]any{"mappings": mappingBody(mapping)})
	if err != nil {
		return false, fmt.Errorf("encode index body: %w", err)
	}
	res, err := b.client.Indices.Create(
		index,
		b.client.Indices.Create.WithBody(bytes.NewReader(body)),
		b.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return false, transportError("create index", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.IsError() {
		return false, responseError("create index "+index, res.StatusCode, res.Body)
	}
	return true, nil
}

// DeleteIndex implements ports.IndexManager. A missing index is not an error.
func (b *Backend) DeleteIndex(ctx context.Context, index string) error {
	res, err := b.client.Indices.Delete([]string{index}, b.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return transportError("delete index", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode == http.StatusNotFound || !res.IsError() {
		return nil
	}
	return responseError("delete index "+index, res.StatusCode, res.Body)
}
