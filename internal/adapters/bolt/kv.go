// Package bolt persists pipeline state in a bbolt file.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/nimafallahian/go-indexer/internal/ports"
)

var stateBucket = []byte("indexer_state")

// DefaultLockTimeout bounds the wait for the file lock held by another
// process.
const DefaultLockTimeout = 5 * time.Second

// KV implements ports.KVStore on a single bbolt bucket. The file is opened
// for each operation and closed right after, so the daemon and the operator
// CLI share one state file: bbolt holds its file lock only while a KV call
// runs.
type KV struct {
	path    string
	timeout time.Duration
	// flock is per open file, so calls of one process take turns.
	mu sync.Mutex
}

var _ ports.KVStore = (*KV)(nil)

// Open checks that the state file at path can be opened, creating it and its
// bucket when missing. A non-positive lockTimeout uses DefaultLockTimeout.
func Open(path string, lockTimeout time.Duration) (*KV, error) {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	s := &KV{path: path, timeout: lockTimeout}
	err := s.update(context.Background(), func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create state bucket: %w", err)
	}
	return s, nil
}

// Get implements ports.KVStore. The returned slice is a copy.
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		if v := tx.Bucket(stateBucket).Get([]byte(key)); v != nil {
			out = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out, nil
}

// Set implements ports.KVStore.
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete implements ports.KVStore. Deleting a missing key is not an error.
func (s *KV) Delete(ctx context.Context, key string) error {
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close is a no-op: no file stays open between calls.
func (s *KV) Close() error {
	return nil
}

func (s *KV) view(ctx context.Context, fn func(*bbolt.Tx) error) error {
	return s.with(ctx, true, func(db *bbolt.DB) error { return db.View(fn) })
}

func (s *KV) update(ctx context.Context, fn func(*bbolt.Tx) error) error {
	return s.with(ctx, false, func(db *bbolt.DB) error { return db.Update(fn) })
}

// with opens the file, runs fn and closes it. Read-only opens take a shared
// lock, so readers in different processes do not wait for each other.
func (s *KV) with(ctx context.Context, readOnly bool, fn func(*bbolt.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("open state db %s: %w", s.path, err)
	}
	if err := fn(db); err != nil {
		_ = db.Close()
		return err
	}
	return db.Close()
}
