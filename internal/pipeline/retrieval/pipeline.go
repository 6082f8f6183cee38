// Package retrieval is the query-answering job: it takes a pre-created
// assistant message id off the queue, invokes the QueryRouter, and writes
// the final content, sources, and routing metadata back onto that message,
// per spec §4.11's control-flow note ("a new user message enqueues a
// retrieval job bound to a pre-created empty assistant message"). Grounded
// on the document/question pipelines' claim-then-process shape, narrowed
// here since Router.Route already absorbs every internal failure into a
// degraded answer — this pipeline's only remaining failure mode is a
// message that no longer exists, or a worker crash (spec §7: "only a hard
// worker crash yields FAILED").
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/jobqueue"
	"github.com/docbrain/docbrain/internal/router"
	"github.com/docbrain/docbrain/internal/store"
)

// TaskName is the queue topic/task-name this pipeline subscribes to.
const TaskName = "message.answer"

// Payload is the queue message body for TaskName.
type Payload struct {
	MessageID           string            `json:"message_id"`
	KnowledgeBaseID     string            `json:"knowledge_base_id"`
	Query               string            `json:"query"`
	TopK                int               `json:"top_k"`
	SimilarityThreshold float64           `json:"similarity_threshold"`
	ForcedService       string            `json:"forced_service"`
	MetadataFilter      map[string]string `json:"metadata_filter"`
}

// Pipeline wires a Router to the Message store.
type Pipeline struct {
	Messages store.MessageStore
	Router   *router.Router
}

// Handle adapts Pipeline to jobqueue.Handler.
func (p *Pipeline) Handle(ctx context.Context, task jobqueue.Task) error {
	var payload Payload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal message answer payload: %w", err)
	}
	return p.Answer(ctx, payload)
}

// Answer runs the router and writes its result onto payload.MessageID. A
// non-nil return only ever signals "the message row itself could not be
// found or updated" — every Router-internal failure is already captured as
// a degraded Answer by Router.Route and persisted as PROCESSED, matching
// spec §4.11's failure policy.
func (p *Pipeline) Answer(ctx context.Context, payload Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("message_id", payload.MessageID).Msg("message_answer_panic")
			err = p.persistPanic(ctx, payload.MessageID, r)
		}
	}()

	if _, getErr := p.Messages.Get(ctx, payload.MessageID); getErr != nil {
		return getErr
	}

	result := p.Router.Route(ctx, router.Request{
		Query:               payload.Query,
		KnowledgeBaseID:     payload.KnowledgeBaseID,
		TopK:                payload.TopK,
		SimilarityThreshold: payload.SimilarityThreshold,
		ForcedService:       payload.ForcedService,
		MetadataFilter:      payload.MetadataFilter,
	})

	_, err = p.Messages.UpdateResult(ctx, payload.MessageID, domain.MessageProcessed, result.Answer, result.Sources, result.Routing)
	return err
}

// persistPanic is the "only a hard worker crash yields FAILED" path: it
// best-effort marks the message FAILED and swallows its own error so the
// original panic's cause remains the handler's terminal failure.
func (p *Pipeline) persistPanic(ctx context.Context, messageID string, cause any) error {
	routing := domain.RoutingInfo{Fallback: true, Reasoning: fmt.Sprintf("worker panic: %v", cause)}
	if _, err := p.Messages.UpdateResult(ctx, messageID, domain.MessageFailed, "", nil, routing); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("message_answer_panic_persist_failed")
	}
	return fmt.Errorf("message answer handler panicked: %v", cause)
}
