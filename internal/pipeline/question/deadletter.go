package question

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

// DeadLetterSink persists a question as FAILED once the queue has
// exhausted retries on a transient embedding/vector-index error, mirroring
// document.DeadLetterSink.
type DeadLetterSink struct {
	Questions store.QuestionStore
	Next      jobqueue.DeadLetterSink
}

func (s DeadLetterSink) Publish(ctx context.Context, dl jobqueue.DeadLetter) error {
	if dl.Task.Name == TaskName {
		var payload Payload
		if err := json.Unmarshal(dl.Task.Payload, &payload); err == nil && payload.QuestionID != "" {
			_, err := s.Questions.UpdateStatus(ctx, payload.QuestionID, domain.QuestionIngesting, domain.QuestionFailed, dl.LastError)
			if err != nil && !errors.Is(err, errs.ErrPreconditionFailed) {
				log.Error().Err(err).Str("question_id", payload.QuestionID).Msg("question_dead_letter_persist_failed")
			}
		}
	}
	if s.Next != nil {
		return s.Next.Publish(ctx, dl)
	}
	return nil
}
