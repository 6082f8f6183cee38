package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/errs"
)

// dedupeTTL bounds how long a (task, attempt) dedup marker is retained.
const dedupeTTL = 24 * time.Hour

// KafkaQueue dispatches one kafka-go topic per task name, grounded on the
// teacher's internal/orchestrator/kafka.go StartKafkaConsumer (reader-
// fetch/worker-pool/commit loop, exponential backoff retry, DLQ publish
// after exhausted retries) and internal/orchestrator/dedupe.go's
// Redis-backed SETNX-style dedup marker, generalized from one fixed
// orchestrator-commands topic to `{taskNamePrefix}.{taskName}` per
// registered handler.
type KafkaQueue struct {
	brokers       []string
	groupID       string
	topicPrefix   string
	workerPool    int
	maxRetries    int
	retryDelay    time.Duration
	writer        *kafkago.Writer
	redisClient   redis.UniversalClient
	deadLetter    DeadLetterSink

	mu       sync.Mutex
	handlers map[string]Handler
	readers  []*kafkago.Reader
}

// NewKafkaQueue constructs a queue. redisDSN may be empty to disable
// dedup (not-recommended for production, matching the teacher's optional
// DedupeStore).
func NewKafkaQueue(brokers []string, groupID, topicPrefix, redisDSN string, workerPool, maxRetries int, retryDelay time.Duration, dl DeadLetterSink) (*KafkaQueue, error) {
	if workerPool <= 0 {
		workerPool = 4
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = 200 * time.Millisecond
	}

	var redisClient redis.UniversalClient
	if redisDSN != "" {
		opts, err := redis.ParseURL(redisDSN)
		if err != nil {
			return nil, fmt.Errorf("parse jobqueue redis dsn: %w", err)
		}
		redisClient = redis.NewClient(opts)
	}

	return &KafkaQueue{
		brokers:     brokers,
		groupID:     groupID,
		topicPrefix: topicPrefix,
		workerPool:  workerPool,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		writer:      &kafkago.Writer{Addr: kafkago.TCP(brokers...), Balancer: &kafkago.LeastBytes{}},
		redisClient: redisClient,
		deadLetter:  dl,
		handlers:    make(map[string]Handler),
	}, nil
}

func (q *KafkaQueue) topic(taskName string) string {
	if q.topicPrefix == "" {
		return taskName
	}
	return q.topicPrefix + "." + taskName
}

func (q *KafkaQueue) Enqueue(ctx context.Context, taskName string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	env := envelope{ID: id, Attempt: 1, Payload: data}
	body, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	if err := q.writer.WriteMessages(ctx, kafkago.Message{Topic: q.topic(taskName), Key: []byte(id), Value: body}); err != nil {
		return "", fmt.Errorf("enqueue task %s: %w", taskName, err)
	}
	return id, nil
}

func (q *KafkaQueue) Subscribe(taskName string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskName] = handler
	return nil
}

type envelope struct {
	ID      string          `json:"id"`
	Attempt int             `json:"attempt"`
	Payload json.RawMessage `json:"payload"`
}

// Run starts one reader/worker-pool per subscribed task name and blocks
// until ctx is cancelled.
func (q *KafkaQueue) Run(ctx context.Context) error {
	q.mu.Lock()
	names := make([]string, 0, len(q.handlers))
	for name := range q.handlers {
		names = append(names, name)
	}
	q.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		taskName, handler := name, q.handlers[name]
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  q.brokers,
			GroupID:  q.groupID,
			Topic:    q.topic(taskName),
			MinBytes: 1,
			MaxBytes: 10e6,
		})
		q.mu.Lock()
		q.readers = append(q.readers, reader)
		q.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			q.consumeTopic(ctx, taskName, reader, handler)
		}()
	}
	wg.Wait()
	return nil
}

func (q *KafkaQueue) consumeTopic(ctx context.Context, taskName string, reader *kafkago.Reader, handler Handler) {
	jobs := make(chan kafkago.Message, q.workerPool*4)
	var workers sync.WaitGroup
	workers.Add(q.workerPool)
	for i := 0; i < q.workerPool; i++ {
		go func() {
			defer workers.Done()
			for msg := range jobs {
				q.handleMessage(ctx, taskName, handler, msg)
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Warn().Err(err).Str("task", taskName).Msg("jobqueue_commit_failed")
				}
			}
		}()
	}

	for {
		if ctx.Err() != nil {
			break
		}
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			log.Warn().Err(err).Str("task", taskName).Msg("jobqueue_fetch_error")
			continue
		}
		select {
		case jobs <- msg:
		case <-ctx.Done():
		}
	}
	close(jobs)
	workers.Wait()
	_ = reader.Close()
}

func (q *KafkaQueue) handleMessage(ctx context.Context, taskName string, handler Handler, msg kafkago.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.Warn().Err(err).Str("task", taskName).Msg("jobqueue_envelope_decode_failed")
		return
	}

	var lastErr error
	for attempt := max(env.Attempt, 1); attempt <= q.maxRetries; attempt++ {
		if q.alreadyProcessed(ctx, taskName, env.ID, attempt) {
			return
		}
		task := Task{ID: env.ID, Name: taskName, Payload: env.Payload, Attempt: attempt}
		err := handler(ctx, task)
		q.markProcessed(ctx, taskName, env.ID, attempt)
		if err == nil {
			return
		}
		lastErr = err
		if !errs.Retryable(err) || attempt == q.maxRetries {
			break
		}
		backoff := backoffWithJitter(q.retryDelay, attempt)
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	if lastErr != nil && q.deadLetter != nil {
		_ = q.deadLetter.Publish(ctx, DeadLetter{
			Task:      Task{ID: env.ID, Name: taskName, Payload: env.Payload},
			LastError: lastErr.Error(),
			Attempts:  q.maxRetries,
		})
	}
}

// alreadyProcessed/markProcessed implement the per-(task,attempt) dedup
// marker (SETNX semantics via Get-then-Set, acceptable because this
// process is the sole writer for a given consumer-group partition
// assignment), grounded on internal/orchestrator/dedupe.go's
// Get/Set(ttl) DedupeStore shape.
func (q *KafkaQueue) alreadyProcessed(ctx context.Context, taskName, id string, attempt int) bool {
	if q.redisClient == nil {
		return false
	}
	key := dedupeKey(taskName, id, attempt)
	val, err := q.redisClient.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return val == "done"
}

func (q *KafkaQueue) markProcessed(ctx context.Context, taskName, id string, attempt int) {
	if q.redisClient == nil {
		return
	}
	key := dedupeKey(taskName, id, attempt)
	if err := q.redisClient.Set(ctx, key, "done", dedupeTTL).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("jobqueue_dedupe_set_error")
	}
}

func dedupeKey(taskName, id string, attempt int) string {
	return fmt.Sprintf("jobqueue:dedupe:%s:%s:%d", taskName, id, attempt)
}

func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	readers := q.readers
	q.mu.Unlock()
	for _, r := range readers {
		_ = r.Close()
	}
	if q.redisClient != nil {
		_ = q.redisClient.Close()
	}
	return q.writer.Close()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
