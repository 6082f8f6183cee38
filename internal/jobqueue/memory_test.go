package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/errs"
)

type recordingSink struct {
	mu  sync.Mutex
	got []DeadLetter
}

func (s *recordingSink) Publish(_ context.Context, dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, dl)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestMemoryQueue_DispatchesToSubscribedHandler(t *testing.T) {
	q := NewMemoryQueue(3, time.Millisecond, nil)
	var got Task
	done := make(chan struct{})
	require.NoError(t, q.Subscribe("ingest", func(_ context.Context, task Task) error {
		got = task
		close(done)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	id, err := q.Enqueue(ctx, "ingest", map[string]string{"document_id": "doc1"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "ingest", got.Name)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "doc1", payload["document_id"])
}

func TestMemoryQueue_RetriesRetryableErrorsUpToMax(t *testing.T) {
	q := NewMemoryQueue(3, time.Millisecond, nil)
	var attempts int32
	allDone := make(chan struct{})
	require.NoError(t, q.Subscribe("embed", func(_ context.Context, task Task) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errs.ErrEmbeddingFailed
		}
		close(allDone)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	_, err := q.Enqueue(ctx, "embed", map[string]string{})
	require.NoError(t, err)

	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not eventually succeed")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestMemoryQueue_NonRetryableErrorGoesStraightToDeadLetter(t *testing.T) {
	sink := &recordingSink{}
	q := NewMemoryQueue(3, time.Millisecond, sink)
	var attempts int32
	require.NoError(t, q.Subscribe("route", func(_ context.Context, task Task) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("not retryable")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	_, err := q.Enqueue(ctx, "route", map[string]string{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "non-retryable error must not be retried")
}

func TestMemoryQueue_RetriesExhaustedGoesToDeadLetter(t *testing.T) {
	sink := &recordingSink{}
	q := NewMemoryQueue(2, time.Millisecond, sink)
	require.NoError(t, q.Subscribe("embed", func(_ context.Context, task Task) error {
		return errs.ErrEmbeddingFailed
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	_, err := q.Enqueue(ctx, "embed", map[string]string{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBackoffWithJitter_GrowsExponentiallyWithinJitterBand(t *testing.T) {
	base := 100 * time.Millisecond
	b1 := backoffWithJitter(base, 1)
	b3 := backoffWithJitter(base, 3)
	assert.Greater(t, int64(b3), int64(b1))
	assert.InDelta(t, float64(base), float64(b1), float64(base)*0.21)
}
