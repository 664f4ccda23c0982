package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/indexer"
	"github.com/nimafallahian/go-indexer/internal/mapping"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

// startService runs svc until the returned stop function is called.
func startService(t *testing.T, svc *IndexerService) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("service did not stop")
			return nil
		}
	}
}

func queueMessage(msg domain.IndexingMessage, committed *atomic.Int32) ports.QueueMessage {
	return ports.QueueMessage{Message: msg, Commit: func(context.Context) error {
		committed.Add(1)
		return nil
	}}
}

func consumerFor(msgCh chan ports.QueueMessage) *mockMessageConsumer {
	consumer := &mockMessageConsumer{}
	consumer.On("Consume", mock.Anything).Return((<-chan ports.QueueMessage)(msgCh), (<-chan error)(make(chan error)))
	return consumer
}

func TestIndexerService_IncrementalIndexedAndAcknowledged(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemStore("category", "product", "payment_method")
	store.put("product", "p1", map[string]any{"name": "Shirt", "stock": 1.0, "active": true})
	backend := newMemBackend()
	registry := shopRegistry(t, store, backend, 10)

	msgCh := make(chan ports.QueueMessage, 1)
	dispatcher := &mockDispatcher{}
	svc, err := NewIndexerService(consumerFor(msgCh), registry, dispatcher)
	require.NoError(t, err)

	var committed atomic.Int32
	msgCh <- queueMessage(domain.NewIncremental(indexer.ProductIndexer, "shop_product", []string{"p1"}, domain.Snapshot{}, nil), &committed)

	stop := startService(t, svc)
	require.Eventually(t, func() bool { return committed.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, 1, backend.count("shop_product"))
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestIndexerService_FullMessageDispatchesSuccessorBeforeCommit(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemStore("category", "product", "payment_method")
	for i := 0; i < 3; i++ {
		store.put("payment_method", fmt.Sprintf("pm%d", i), map[string]any{"name": "x"})
	}
	registry := shopRegistry(t, store, newMemBackend(), 2)
	seed, err := registry.Seed(domain.Snapshot{}, []string{indexer.PaymentMethodIndexer}, nil, "")
	require.NoError(t, err)

	var committed atomic.Int32
	dispatcher := &mockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		assert.Zero(t, committed.Load(), "successor must be dispatched before the commit")
	})

	msgCh := make(chan ports.QueueMessage, 1)
	svc, err := NewIndexerService(consumerFor(msgCh), registry, dispatcher)
	require.NoError(t, err)

	msgCh <- queueMessage(seed, &committed)
	stop := startService(t, svc)
	require.Eventually(t, func() bool { return committed.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
	next := dispatcher.Calls[0].Arguments.Get(1).(domain.IndexingMessage)
	assert.Equal(t, []string{"pm0", "pm1"}, next.IDs)
	assert.Equal(t, "shop_payment_method", next.Index)
	assert.Equal(t, seed.TraceID, next.TraceID)
}

func TestIndexerService_RunsFullChainToCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := newMemStore("category", "product", "payment_method")
	for i := 0; i < 5; i++ {
		store.put("category", fmt.Sprintf("c%d", i), map[string]any{"name": "c"})
		store.put("product", fmt.Sprintf("p%d", i), map[string]any{"name": "p"})
	}
	store.put("payment_method", "pm0", map[string]any{"name": "card"})
	backend := newMemBackend()
	registry := shopRegistry(t, store, backend, 2)

	kv := newMemKV()
	drift := mapping.NewDriftStore(kv)
	_, err := drift.Add(ctx, "product", "category")
	require.NoError(t, err)
	runs := NewRunState(kv)

	loop := newLoopDispatcher()
	svc, err := NewIndexerService(loop, registry, loop,
		WithWorkerCount(3),
		WithRunState(runs),
		WithDrift(drift),
	)
	require.NoError(t, err)

	reindexer := NewReindexer(registry, loop, runs, drift, nil, nil)
	stop := startService(t, svc)

	_, err = reindexer.Start(ctx, StartOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		dispatched, commits := loop.snapshot()
		return backend.count("shop_payment_method") == 1 && commits == len(dispatched)
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, 5, backend.count("shop_category"))
	assert.Equal(t, 5, backend.count("shop_product"))

	dispatched, _ := loop.snapshot()
	var order []string
	for _, m := range dispatched {
		if len(order) == 0 || order[len(order)-1] != m.Indexer {
			order = append(order, m.Indexer)
		}
	}
	assert.Equal(t, []string{indexer.CategoryIndexer, indexer.ProductIndexer, indexer.PaymentMethodIndexer}, order)

	remaining, err := drift.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining, "a completed chain clears the drift of the entities it walked")
}

func TestIndexerService_RetriesTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemStore("category", "product", "payment_method")
	store.put("category", "c1", map[string]any{"name": "c"})
	backend := newMemBackend()
	backend.upsertErr = func(n int) error {
		if n < 3 {
			return fmt.Errorf("bulk: %w", domain.ErrTransient)
		}
		return nil
	}
	registry := shopRegistry(t, store, backend, 10)

	deadLetter := &mockDeadLetterer{}
	msgCh := make(chan ports.QueueMessage, 1)
	svc, err := NewIndexerService(consumerFor(msgCh), registry, &mockDispatcher{},
		WithRetry(3, time.Millisecond),
		WithDeadLetterer(deadLetter),
	)
	require.NoError(t, err)

	var committed atomic.Int32
	msgCh <- queueMessage(domain.NewIncremental(indexer.CategoryIndexer, "", []string{"c1"}, domain.Snapshot{}, nil), &committed)
	stop := startService(t, svc)
	require.Eventually(t, func() bool { return committed.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, 3, backend.upsertCalls())
	assert.Equal(t, 1, backend.count("shop_category"))
	deadLetter.AssertNotCalled(t, "DeadLetter", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexerService_DeadLettersAfterExhaustedAttempts(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"transient exhausts attempts", fmt.Errorf("bulk: %w", domain.ErrTransient), 2},
		{"missing index fails fast", fmt.Errorf("bulk: %w", domain.ErrIndexNotFound), 1},
		{"client error fails fast", errors.New("mapper_parsing_exception"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			store := newMemStore("category", "product", "payment_method")
			store.put("category", "c1", map[string]any{"name": "c"})
			backend := newMemBackend()
			backend.upsertErr = func(int) error { return tt.err }
			registry := shopRegistry(t, store, backend, 10)

			var committed atomic.Int32
			deadLetter := &mockDeadLetterer{}
			deadLetter.On("DeadLetter", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			dispatcher := &mockDispatcher{}

			msgCh := make(chan ports.QueueMessage, 1)
			svc, err := NewIndexerService(consumerFor(msgCh), registry, dispatcher,
				WithRetry(2, time.Millisecond),
				WithDeadLetterer(deadLetter),
			)
			require.NoError(t, err)

			seed, err := registry.Seed(domain.Snapshot{}, []string{indexer.CategoryIndexer}, nil, "")
			require.NoError(t, err)
			msgCh <- queueMessage(seed.WithBatch("shop_category", []string{"c1"}, &domain.Offset{LastKey: "c1", Seen: 1}, false), &committed)

			stop := startService(t, svc)
			require.Eventually(t, func() bool { return committed.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
			require.NoError(t, stop())

			assert.Equal(t, tt.wantCalls, backend.upsertCalls())
			deadLetter.AssertNumberOfCalls(t, "DeadLetter", 1)
			cause := deadLetter.Calls[0].Arguments.Error(2)
			assert.ErrorIs(t, cause, tt.err)
			dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
		})
	}
}

func TestIndexerService_FailureWithoutDeadLetterIsNotAcknowledged(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemStore("category", "product", "payment_method")
	store.put("category", "c1", map[string]any{"name": "c"})
	backend := newMemBackend()
	backend.upsertErr = func(int) error { return errors.New("boom") }
	registry := shopRegistry(t, store, backend, 10)

	msgCh := make(chan ports.QueueMessage, 1)
	svc, err := NewIndexerService(consumerFor(msgCh), registry, &mockDispatcher{})
	require.NoError(t, err)

	var committed atomic.Int32
	msgCh <- queueMessage(domain.NewIncremental(indexer.CategoryIndexer, "", []string{"c1"}, domain.Snapshot{}, nil), &committed)
	stop := startService(t, svc)
	require.Eventually(t, func() bool { return backend.upsertCalls() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Zero(t, committed.Load())
}

func TestIndexerService_DropsStaleRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := newMemStore("category", "product", "payment_method")
	store.put("category", "c1", map[string]any{"name": "c"})
	backend := newMemBackend()
	registry := shopRegistry(t, store, backend, 10)

	runs := NewRunState(newMemKV())
	oldRun, err := runs.Begin(ctx)
	require.NoError(t, err)
	_, err = runs.Begin(ctx)
	require.NoError(t, err)

	dispatcher := &mockDispatcher{}
	msgCh := make(chan ports.QueueMessage, 1)
	svc, err := NewIndexerService(consumerFor(msgCh), registry, dispatcher, WithRunState(runs))
	require.NoError(t, err)

	seed, err := registry.Seed(domain.Snapshot{}, []string{indexer.CategoryIndexer}, nil, oldRun)
	require.NoError(t, err)
	var committed atomic.Int32
	msgCh <- queueMessage(seed.WithBatch("shop_category", []string{"c1"}, &domain.Offset{LastKey: "c1", Seen: 1}, false), &committed)

	stop := startService(t, svc)
	require.Eventually(t, func() bool { return committed.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Zero(t, backend.upsertCalls())
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestIndexerService_SuccessorDispatchFailureIsNotAcknowledged(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemStore("category", "product", "payment_method")
	store.put("category", "c1", map[string]any{"name": "c"})
	registry := shopRegistry(t, store, newMemBackend(), 10)
	seed, err := registry.Seed(domain.Snapshot{}, nil, nil, "")
	require.NoError(t, err)

	dispatched := make(chan struct{}, 1)
	dispatcher := &mockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("broker down")).Run(func(mock.Arguments) {
		dispatched <- struct{}{}
	})

	msgCh := make(chan ports.QueueMessage, 1)
	svc, err := NewIndexerService(consumerFor(msgCh), registry, dispatcher)
	require.NoError(t, err)

	var committed atomic.Int32
	msgCh <- queueMessage(seed, &committed)
	stop := startService(t, svc)
	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("successor was not dispatched")
	}
	require.NoError(t, stop())
	assert.Zero(t, committed.Load())
}

func TestIndexerService_ReturnsConsumerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	msgCh := make(chan ports.QueueMessage)
	errCh := make(chan error, 1)
	consumer := &mockMessageConsumer{}
	consumer.On("Consume", mock.Anything).Return((<-chan ports.QueueMessage)(msgCh), (<-chan error)(errCh))

	registry := shopRegistry(t, newMemStore(), newMemBackend(), 10)
	svc, err := NewIndexerService(consumer, registry, &mockDispatcher{}, WithWorkerCount(2))
	require.NoError(t, err)

	errCh <- errors.New("group coordinator not available")
	close(msgCh)

	err = svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group coordinator not available")
}

func TestNewIndexerService_Validation(t *testing.T) {
	registry := shopRegistry(t, newMemStore(), newMemBackend(), 10)
	_, err := NewIndexerService(nil, registry, &mockDispatcher{})
	assert.Error(t, err)
	_, err = NewIndexerService(&mockMessageConsumer{}, nil, &mockDispatcher{})
	assert.Error(t, err)
}
