package store

import (
	"context"
	"errors"
	"testing"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

func TestDocumentStore_UpdateStatusPreconditionGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	kb, err := s.KnowledgeBases.Insert(ctx, domain.KnowledgeBase{ID: "kb1", Name: "test"})
	if err != nil {
		t.Fatalf("insert kb: %v", err)
	}

	doc, err := s.Documents.Insert(ctx, domain.Document{ID: "doc1", KnowledgeBaseID: kb.ID, Status: domain.DocumentPending})
	if err != nil {
		t.Fatalf("insert doc: %v", err)
	}
	if doc.Status != domain.DocumentPending {
		t.Fatalf("expected PENDING, got %s", doc.Status)
	}

	doc, err = s.Documents.UpdateStatus(ctx, doc.ID, domain.DocumentPending, domain.DocumentProcessing, DocumentPatch{})
	if err != nil {
		t.Fatalf("transition pending->processing: %v", err)
	}
	if doc.Status != domain.DocumentProcessing {
		t.Fatalf("expected PROCESSING, got %s", doc.Status)
	}

	// Re-applying the same precondition-guarded transition from a stale
	// expected state must fail without mutating anything, not retry silently.
	if _, err := s.Documents.UpdateStatus(ctx, doc.ID, domain.DocumentPending, domain.DocumentProcessing, DocumentPatch{}); !errors.Is(err, errs.ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}

	count := 3
	summary := "a summary"
	doc, err = s.Documents.UpdateStatus(ctx, doc.ID, domain.DocumentProcessing, domain.DocumentProcessed, DocumentPatch{ProcessedChunkCount: &count, Summary: &summary})
	if err != nil {
		t.Fatalf("transition processing->processed: %v", err)
	}
	if doc.Status != domain.DocumentProcessed || doc.ProcessedChunkCount != 3 || doc.Summary != summary {
		t.Fatalf("patch not applied: %+v", doc)
	}
}

func TestDocumentStore_GetMissingReturnsNotFound(t *testing.T) {
	s := NewMemory()
	if _, err := s.Documents.Get(context.Background(), "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentStore_DeleteByKnowledgeBaseIsCompleteAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	kb, _ := s.KnowledgeBases.Insert(ctx, domain.KnowledgeBase{ID: "kb1", Name: "test"})
	other, _ := s.KnowledgeBases.Insert(ctx, domain.KnowledgeBase{ID: "kb2", Name: "other"})

	for i := 0; i < 3; i++ {
		if _, err := s.Documents.Insert(ctx, domain.Document{ID: string(rune('a' + i)), KnowledgeBaseID: kb.ID}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := s.Documents.Insert(ctx, domain.Document{ID: "kept", KnowledgeBaseID: other.ID}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ids, err := s.Documents.DeleteByKnowledgeBase(ctx, kb.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 deleted ids, got %d", len(ids))
	}

	remaining, err := s.Documents.ListByKnowledgeBase(ctx, other.ID)
	if err != nil || len(remaining) != 1 {
		t.Fatalf("expected other kb's document untouched: %+v err=%v", remaining, err)
	}

	// Idempotent: deleting an already-empty knowledge base is a no-op, not an error.
	ids, err = s.Documents.DeleteByKnowledgeBase(ctx, kb.ID)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected empty idempotent delete, got ids=%v err=%v", ids, err)
	}
}

func TestQuestionStore_ResetToPendingIgnoresCurrentStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	kb, _ := s.KnowledgeBases.Insert(ctx, domain.KnowledgeBase{ID: "kb1", Name: "test"})
	q, err := s.Questions.Insert(ctx, domain.Question{ID: "q1", KnowledgeBaseID: kb.ID, QuestionText: "what?"})
	if err != nil {
		t.Fatalf("insert question: %v", err)
	}
	q, err = s.Questions.UpdateStatus(ctx, q.ID, domain.QuestionPending, domain.QuestionCompleted, "")
	if err != nil || q.Status != domain.QuestionCompleted {
		t.Fatalf("transition to completed: %+v err=%v", q, err)
	}
	q, err = s.Questions.ResetToPending(ctx, q.ID)
	if err != nil || q.Status != domain.QuestionPending {
		t.Fatalf("reset to pending: %+v err=%v", q, err)
	}
}

func TestMessageStore_UpdateResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	m, err := s.Messages.Insert(ctx, domain.Message{ID: "m1", ConversationID: "c1"})
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	sources := []domain.Source{{Service: "rag", Score: 0.9, DocumentID: "doc1"}}
	routing := domain.RoutingInfo{Service: "rag", Confidence: 0.8}
	m, err = s.Messages.UpdateResult(ctx, m.ID, domain.MessageProcessed, "the answer", sources, routing)
	if err != nil {
		t.Fatalf("update result: %v", err)
	}
	if m.Status != domain.MessageProcessed || m.Content != "the answer" || len(m.Sources) != 1 || m.Routing.Service != "rag" {
		t.Fatalf("unexpected message state: %+v", m)
	}

	if err := s.Messages.DeleteByConversation(ctx, "c1"); err != nil {
		t.Fatalf("delete by conversation: %v", err)
	}
	if _, err := s.Messages.Get(ctx, m.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after conversation delete, got %v", err)
	}
}
