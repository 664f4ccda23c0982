package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nimafallahian/go-indexer/internal/domain"
)

type errorBody struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// responseError maps an error response onto the domain error taxonomy.
func responseError(op string, status int, body io.Reader) error {
	var reply struct {
		Error errorBody `json:"error"`
	}
	// Non-JSON bodies leave reply empty; the status still classifies.
	_ = json.NewDecoder(body).Decode(&reply)

	if err := retriableError(status); err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound && reply.Error.Type == "index_not_found_exception":
		return fmt.Errorf("%s: %s: %w", op, reply.Error.Reason, domain.ErrIndexNotFound)
	case reply.Error.Type != "":
		return fmt.Errorf("%s: [%d] %s: %s", op, status, reply.Error.Type, reply.Error.Reason)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, status)
	}
}

// retriableError returns the transient error for a status worth retrying, or
// nil for any other status.
func retriableError(status int) error {
	switch {
	case !domain.IsRetriableStatus(status):
		return nil
	case status == http.StatusTooManyRequests:
		return ErrTooManyRequests
	default:
		return ErrServerError
	}
}

// transportError marks network failures as transient.
func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
}
