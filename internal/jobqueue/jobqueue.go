// Package jobqueue is the JobQueue collaborator: a durable, at-least-once
// task queue dispatching document/question ingestion and query-routing
// jobs to worker handlers, with a retry/backoff policy and per-attempt
// dedup. Grounded on the teacher's internal/orchestrator/kafka.go
// (StartKafkaConsumer's reader-fetch/worker-pool/commit loop and its
// exponential-backoff retry-then-DLQ shape) and internal/orchestrator/
// dedupe.go's Redis-backed DedupeStore, generalized per spec §4.8 from a
// single orchestrator-commands topic into one topic per task name.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/config"
)

// Task is one unit of dispatched work.
type Task struct {
	ID       string
	Name     string
	Payload  json.RawMessage
	Attempt  int
}

// Handler processes one Task. A returned error for which
// errs.Retryable(err) is true causes the queue to retry per its backoff
// policy, up to the configured max attempts; any other error, or
// exhausting retries, moves the task to the dead-letter path.
type Handler func(ctx context.Context, task Task) error

// Queue is the JobQueue capability: durable enqueue plus per-task-name
// handler registration.
type Queue interface {
	// Enqueue durably records a new task and returns its id.
	Enqueue(ctx context.Context, taskName string, payload any) (string, error)
	// Subscribe registers handler as the dispatch target for taskName.
	// Subscribe must be called before Run.
	Subscribe(taskName string, handler Handler) error
	// Run starts dispatching until ctx is cancelled.
	Run(ctx context.Context) error
	// Close releases the queue's resources.
	Close() error
}

// DeadLetter receives a task that exhausted its retries (or errored
// non-retryably), for operator inspection or replay.
type DeadLetter struct {
	Task       Task
	LastError  string
	Attempts   int
}

// DeadLetterSink receives tasks that could not be completed.
type DeadLetterSink interface {
	Publish(ctx context.Context, dl DeadLetter) error
}

// New builds the configured Queue backend.
func New(cfg config.JobQueueConfig, retry config.RetryConfig, dl DeadLetterSink) (Queue, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryQueue(retry.MaxRetries, retry.InitialDelay, dl), nil
	case "kafka":
		return NewKafkaQueue(cfg.Brokers, cfg.GroupID, "docbrain", cfg.RedisDSN, cfg.WorkerPool, retry.MaxRetries, retry.InitialDelay, dl)
	default:
		return nil, fmt.Errorf("unsupported job queue backend %q", cfg.Backend)
	}
}

// LogDeadLetterSink logs dead-lettered tasks, a reasonable zero-dependency
// default when no durable DLQ topic/table is configured.
type LogDeadLetterSink struct{}

func (LogDeadLetterSink) Publish(_ context.Context, dl DeadLetter) error {
	log.Error().Str("task", dl.Task.Name).Str("id", dl.Task.ID).Int("attempts", dl.Attempts).
		Str("last_error", dl.LastError).Msg("jobqueue_dead_letter")
	return nil
}
