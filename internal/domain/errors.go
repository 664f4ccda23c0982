package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the sentinel matched by NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrIndexNotFound is returned when the target search index does not exist.
	// It is a setup precondition, never retried.
	ErrIndexNotFound = errors.New("search index not found")
	// ErrTransient marks failures the queue should retry (timeouts, 429, 5xx).
	ErrTransient = errors.New("transient failure")
	// ErrInvalidMessage is returned for messages whose shape does not match their kind.
	ErrInvalidMessage = errors.New("invalid indexing message")
)

// NotFoundError reports that a named entity or indexer no longer exists.
// Callers use it to distinguish a vanished entity from an exhausted cursor.
type NotFoundError struct {
	Kind string // "entity" or "indexer"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// Is makes errors.Is(err, ErrNotFound) hold for any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// MappingConflictError is returned when the search backend refuses to change
// the stored type of an existing field.
type MappingConflictError struct {
	Indexer string
	Index   string
	Reason  string
}

func (e *MappingConflictError) Error() string {
	return fmt.Sprintf("mapping conflict for indexer %q on index %q: %s", e.Indexer, e.Index, e.Reason)
}

// IsRetryable reports whether err should be retried by the consumer.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIndexNotFound) || errors.Is(err, ErrInvalidMessage) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
