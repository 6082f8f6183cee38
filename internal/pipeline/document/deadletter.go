package document

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
	"github.com/docbrain/docbrain/internal/jobqueue"
	"github.com/docbrain/docbrain/internal/store"
)

// DeadLetterSink persists a document as FAILED once the queue has exhausted
// retries on a transient error (embedding/vector-index failures the
// handler itself deliberately left unresolved so the queue's own
// retry/backoff policy would own them, per spec §4.9's retry contract).
// Non-retryable failures never reach here: Pipeline.fail already persisted
// FAILED before returning nil to the queue.
type DeadLetterSink struct {
	Documents store.DocumentStore
	Next      jobqueue.DeadLetterSink // optional: chained logging/alerting sink
}

func (s DeadLetterSink) Publish(ctx context.Context, dl jobqueue.DeadLetter) error {
	if dl.Task.Name == TaskName {
		var payload Payload
		if err := json.Unmarshal(dl.Task.Payload, &payload); err == nil && payload.DocumentID != "" {
			_, err := s.Documents.UpdateStatus(ctx, payload.DocumentID, domain.DocumentProcessing, domain.DocumentFailed, store.DocumentPatch{ErrorMessage: &dl.LastError})
			if err != nil && !errors.Is(err, errs.ErrPreconditionFailed) {
				log.Error().Err(err).Str("document_id", payload.DocumentID).Msg("document_dead_letter_persist_failed")
			}
		}
	}
	if s.Next != nil {
		return s.Next.Publish(ctx, dl)
	}
	return nil
}
