// Package store is the metadata-store collaborator the core requires: a
// transactional key-value map per entity (knowledge_bases, documents,
// questions, messages). The relational schema and its HTTP-facing CRUD are
// out of core scope; this package defines the minimal interface the
// ingestion and query pipelines depend on, plus an in-memory reference
// implementation and a Postgres-backed implementation over pgx/v5.
package store

import (
	"context"
	"time"

	"github.com/docbrain/docbrain/internal/domain"
)

// KnowledgeBaseStore is transactional CRUD over knowledge_bases.
type KnowledgeBaseStore interface {
	Insert(ctx context.Context, kb domain.KnowledgeBase) (domain.KnowledgeBase, error)
	Get(ctx context.Context, id string) (domain.KnowledgeBase, error)
	Delete(ctx context.Context, id string) error
}

// DocumentStore is transactional CRUD over documents, including the
// precondition-guarded status transition the ingestion pipeline relies on
// for idempotent re-entry.
type DocumentStore interface {
	Insert(ctx context.Context, d domain.Document) (domain.Document, error)
	Get(ctx context.Context, id string) (domain.Document, error)
	ListByKnowledgeBase(ctx context.Context, kbID string) ([]domain.Document, error)
	// UpdateStatus performs "SET status = next WHERE status = expected",
	// returning errs.ErrPreconditionFailed if the current status does not
	// equal expected. patch optionally updates other columns atomically
	// with the transition (chunk count, summary, error message).
	UpdateStatus(ctx context.Context, id string, expected, next domain.DocumentStatus, patch DocumentPatch) (domain.Document, error)
	Delete(ctx context.Context, id string) error
	DeleteByKnowledgeBase(ctx context.Context, kbID string) ([]string, error)
}

// DocumentPatch carries the optional column updates bundled with a status
// transition.
type DocumentPatch struct {
	ProcessedChunkCount *int
	Summary             *string
	ErrorMessage        *string
}

// QuestionStore is transactional CRUD over curated questions.
type QuestionStore interface {
	Insert(ctx context.Context, q domain.Question) (domain.Question, error)
	Get(ctx context.Context, id string) (domain.Question, error)
	ListByKnowledgeBase(ctx context.Context, kbID string) ([]domain.Question, error)
	UpdateStatus(ctx context.Context, id string, expected, next domain.QuestionStatus, errMsg string) (domain.Question, error)
	// ResetToPending re-queues a question after its text/answer changed.
	ResetToPending(ctx context.Context, id string) (domain.Question, error)
	Delete(ctx context.Context, id string) error
	DeleteByKnowledgeBase(ctx context.Context, kbID string) ([]string, error)
}

// MessageStore is transactional CRUD over assistant messages.
type MessageStore interface {
	Insert(ctx context.Context, m domain.Message) (domain.Message, error)
	Get(ctx context.Context, id string) (domain.Message, error)
	// UpdateResult is the retrieval task's sole mutation of a message:
	// content, sources, routing metadata, and terminal status.
	UpdateResult(ctx context.Context, id string, status domain.MessageStatus, content string, sources []domain.Source, routing domain.RoutingInfo) (domain.Message, error)
	DeleteByConversation(ctx context.Context, conversationID string) error
}

// Store bundles the four entity stores the core depends on.
type Store struct {
	KnowledgeBases KnowledgeBaseStore
	Documents      DocumentStore
	Questions      QuestionStore
	Messages       MessageStore
}

func now() time.Time { return time.Now().UTC() }
