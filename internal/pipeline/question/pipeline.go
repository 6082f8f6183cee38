// Package question is the QuestionIngestionPipeline collaborator: it embeds
// one curated author-provided question and upserts it into the vector
// index tagged as a curated-question record, so QueryRouter's curated probe
// can match future user queries against it directly, per spec §4.10.
// Grounded on the same claim/retry shape as internal/pipeline/document,
// narrowed to a single embed-and-upsert step since curated questions carry
// no extraction or chunking concerns.
package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/errs"
	"github.com/docbrain/docbrain/internal/jobqueue"
	"github.com/docbrain/docbrain/internal/obs"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

// TaskName is the queue topic/task-name this pipeline subscribes to.
const TaskName = "question.ingest"

// recordTypeQuestion marks a vector record as a curated question, matching
// the constant the router's curated probe filters on.
const recordTypeQuestion = "question"

// Payload is the queue message body for TaskName.
type Payload struct {
	QuestionID string `json:"question_id"`
}

// Pipeline wires the collaborators QuestionIngestionPipeline needs.
type Pipeline struct {
	Questions store.QuestionStore
	Embedder  embedclient.Embedder
	Index     *vectorindex.Index
}

// Handle adapts Pipeline to jobqueue.Handler.
func (p *Pipeline) Handle(ctx context.Context, task jobqueue.Task) error {
	var payload Payload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal question ingest payload: %w", err)
	}
	return p.Ingest(ctx, payload.QuestionID)
}

// Ingest embeds and indexes questionID. See document.Pipeline.Ingest for the
// nil-return / retry contract this mirrors.
func (p *Pipeline) Ingest(ctx context.Context, questionID string) error {
	q, err := p.Questions.Get(ctx, questionID)
	if err != nil {
		return err
	}

	proceed, err := p.claimIngesting(ctx, &q)
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	embedText := fmt.Sprintf("Question: %s\nAnswer: %s", q.QuestionText, q.AnswerText)
	embedCtx, embedSpan := obs.StartSpan(ctx, "question.embed")
	vecs, err := p.Embedder.EmbedBatch(embedCtx, []string{embedText})
	embedSpan.End()
	if err != nil {
		return err
	}

	record := domain.VectorRecord{
		ID:     recordID(q.ID),
		Vector: vecs[0],
		Metadata: map[string]string{
			"record_type":       recordTypeQuestion,
			"question_id":       q.ID,
			"question":          q.QuestionText,
			"answer":            q.AnswerText,
			"answer_type":       string(q.AnswerKind),
			"user_id":           q.UserID,
			"knowledge_base_id": q.KnowledgeBaseID,
		},
	}
	upsertCtx, upsertSpan := obs.StartSpan(ctx, "question.upsert")
	err = p.Index.Upsert(upsertCtx, q.KnowledgeBaseID, record)
	upsertSpan.End()
	if err != nil {
		return err
	}

	if _, err := p.Questions.UpdateStatus(ctx, questionID, domain.QuestionIngesting, domain.QuestionCompleted, ""); err != nil {
		if errors.Is(err, errs.ErrPreconditionFailed) {
			log.Warn().Str("question_id", questionID).Msg("question_already_transitioned_past_ingesting")
			return nil
		}
		return err
	}
	return nil
}

// claimIngesting mirrors document.Pipeline.claimProcessing: a retry of this
// same task (status already INGESTING) continues rather than aborting;
// COMPLETED/FAILED are true terminal no-ops.
func (p *Pipeline) claimIngesting(ctx context.Context, q *domain.Question) (proceed bool, err error) {
	updated, err := p.Questions.UpdateStatus(ctx, q.ID, domain.QuestionPending, domain.QuestionIngesting, "")
	if err == nil {
		*q = updated
		return true, nil
	}
	if !errors.Is(err, errs.ErrPreconditionFailed) {
		return false, err
	}
	current, gerr := p.Questions.Get(ctx, q.ID)
	if gerr != nil {
		return false, gerr
	}
	*q = current
	return current.Status == domain.QuestionIngesting, nil
}

// recordID deterministically identifies one curated question's vector
// record so repeated ingestion attempts replace rather than duplicate it.
func recordID(questionID string) string {
	return "question:" + questionID
}
