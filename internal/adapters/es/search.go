package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Search implements ports.SearchBackend.
func (b *Backend) Search(ctx context.Context, index string, query map[string]any) (map[string]any, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(index),
		b.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, transportError("search", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return nil, responseError("search "+index, res.StatusCode, res.Body)
	}

	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return out, nil
}
