package jobqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/errs"
)

// MemoryQueue is an in-process, single-binary queue for tests and
// quickstarts, mirroring the retry/backoff/DLQ shape of the Kafka-backed
// queue without an external broker.
type MemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string]Handler
	tasks      chan Task
	retryDelay time.Duration
	maxRetries int
	deadLetter DeadLetterSink
	closed     chan struct{}
	wg         sync.WaitGroup
}

// NewMemoryQueue builds a queue with a bounded in-memory backlog.
func NewMemoryQueue(maxRetries int, retryDelay time.Duration, dl DeadLetterSink) *MemoryQueue {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = 200 * time.Millisecond
	}
	return &MemoryQueue{
		handlers:   make(map[string]Handler),
		tasks:      make(chan Task, 1024),
		retryDelay: retryDelay,
		maxRetries: maxRetries,
		deadLetter: dl,
		closed:     make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, taskName string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	task := Task{ID: id, Name: taskName, Payload: data, Attempt: 1}
	select {
	case q.tasks <- task:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *MemoryQueue) Subscribe(taskName string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskName] = handler
	return nil
}

func (q *MemoryQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.closed:
			return nil
		case task, ok := <-q.tasks:
			if !ok {
				return nil
			}
			q.wg.Add(1)
			go func(t Task) {
				defer q.wg.Done()
				q.dispatch(ctx, t)
			}(task)
		}
	}
}

func (q *MemoryQueue) dispatch(ctx context.Context, task Task) {
	q.mu.Lock()
	handler, ok := q.handlers[task.Name]
	q.mu.Unlock()
	if !ok {
		log.Warn().Str("task", task.Name).Msg("jobqueue_no_handler_registered")
		return
	}

	var lastErr error
	for task.Attempt = 1; task.Attempt <= q.maxRetries; task.Attempt++ {
		err := handler(ctx, task)
		if err == nil {
			return
		}
		lastErr = err
		if !errs.Retryable(err) || task.Attempt == q.maxRetries {
			break
		}
		backoff := backoffWithJitter(q.retryDelay, task.Attempt)
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	if lastErr != nil && q.deadLetter != nil {
		_ = q.deadLetter.Publish(ctx, DeadLetter{Task: task, LastError: lastErr.Error(), Attempts: task.Attempt})
	}
}

func (q *MemoryQueue) Close() error {
	close(q.closed)
	q.wg.Wait()
	return nil
}
