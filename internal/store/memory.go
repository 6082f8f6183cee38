package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

// NewMemory builds an in-memory Store suitable for tests and for the
// zero-dependency quickstart path. All entity stores share one mutex since
// cascading deletes touch several maps atomically.
func NewMemory() *Store {
	m := &memoryBackend{
		kbs:       map[string]domain.KnowledgeBase{},
		documents: map[string]domain.Document{},
		questions: map[string]domain.Question{},
		messages:  map[string]domain.Message{},
	}
	return &Store{
		KnowledgeBases: (*memKBStore)(m),
		Documents:      (*memDocStore)(m),
		Questions:      (*memQuestionStore)(m),
		Messages:       (*memMessageStore)(m),
	}
}

type memoryBackend struct {
	mu        sync.RWMutex
	kbs       map[string]domain.KnowledgeBase
	documents map[string]domain.Document
	questions map[string]domain.Question
	messages  map[string]domain.Message
}

type memKBStore memoryBackend
type memDocStore memoryBackend
type memQuestionStore memoryBackend
type memMessageStore memoryBackend

// --- KnowledgeBaseStore ---

func (s *memKBStore) Insert(_ context.Context, kb domain.KnowledgeBase) (domain.KnowledgeBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kb.CreatedAt.IsZero() {
		kb.CreatedAt = now()
	}
	kb.UpdatedAt = now()
	s.kbs[kb.ID] = kb
	return kb, nil
}

func (s *memKBStore) Get(_ context.Context, id string) (domain.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kb, ok := s.kbs[id]
	if !ok {
		return domain.KnowledgeBase{}, fmt.Errorf("knowledge base %s: %w", id, errs.ErrNotFound)
	}
	return kb, nil
}

func (s *memKBStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kbs, id)
	return nil
}

// --- DocumentStore ---

func (s *memDocStore) Insert(_ context.Context, d domain.Document) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Status == "" {
		d.Status = domain.DocumentPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now()
	}
	d.UpdatedAt = now()
	s.documents[d.ID] = d
	return d, nil
}

func (s *memDocStore) Get(_ context.Context, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	return d, nil
}

func (s *memDocStore) ListByKnowledgeBase(_ context.Context, kbID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0)
	for _, d := range s.documents {
		if d.KnowledgeBaseID == kbID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memDocStore) UpdateStatus(_ context.Context, id string, expected, next domain.DocumentStatus, patch DocumentPatch) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	if d.Status != expected {
		return domain.Document{}, fmt.Errorf("document %s: expected status %s, got %s: %w", id, expected, d.Status, errs.ErrPreconditionFailed)
	}
	d.Status = next
	if patch.ProcessedChunkCount != nil {
		d.ProcessedChunkCount = *patch.ProcessedChunkCount
	}
	if patch.Summary != nil {
		d.Summary = *patch.Summary
	}
	if patch.ErrorMessage != nil {
		d.ErrorMessage = *patch.ErrorMessage
	}
	d.UpdatedAt = now()
	s.documents[id] = d
	return d, nil
}

func (s *memDocStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	return nil
}

func (s *memDocStore) DeleteByKnowledgeBase(_ context.Context, kbID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, d := range s.documents {
		if d.KnowledgeBaseID == kbID {
			ids = append(ids, id)
			delete(s.documents, id)
		}
	}
	return ids, nil
}

// --- QuestionStore ---

func (s *memQuestionStore) Insert(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Status == "" {
		q.Status = domain.QuestionPending
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now()
	}
	q.UpdatedAt = now()
	s.questions[q.ID] = q
	return q, nil
}

func (s *memQuestionStore) Get(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, fmt.Errorf("question %s: %w", id, errs.ErrNotFound)
	}
	return q, nil
}

func (s *memQuestionStore) ListByKnowledgeBase(_ context.Context, kbID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.KnowledgeBaseID == kbID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *memQuestionStore) UpdateStatus(_ context.Context, id string, expected, next domain.QuestionStatus, errMsg string) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, fmt.Errorf("question %s: %w", id, errs.ErrNotFound)
	}
	if q.Status != expected {
		return domain.Question{}, fmt.Errorf("question %s: expected status %s, got %s: %w", id, expected, q.Status, errs.ErrPreconditionFailed)
	}
	q.Status = next
	q.UpdatedAt = now()
	s.questions[id] = q
	return q, nil
}

func (s *memQuestionStore) ResetToPending(_ context.Context, id string) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, fmt.Errorf("question %s: %w", id, errs.ErrNotFound)
	}
	q.Status = domain.QuestionPending
	q.UpdatedAt = now()
	s.questions[id] = q
	return q, nil
}

func (s *memQuestionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questions, id)
	return nil
}

func (s *memQuestionStore) DeleteByKnowledgeBase(_ context.Context, kbID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, q := range s.questions {
		if q.KnowledgeBaseID == kbID {
			ids = append(ids, id)
			delete(s.questions, id)
		}
	}
	return ids, nil
}

// --- MessageStore ---

func (s *memMessageStore) Insert(_ context.Context, m domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Status == "" {
		m.Status = domain.MessageReceived
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	m.UpdatedAt = now()
	s.messages[m.ID] = m
	return m, nil
}

func (s *memMessageStore) Get(_ context.Context, id string) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, errs.ErrNotFound)
	}
	return m, nil
}

func (s *memMessageStore) UpdateResult(_ context.Context, id string, status domain.MessageStatus, content string, sources []domain.Source, routing domain.RoutingInfo) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, errs.ErrNotFound)
	}
	m.Status = status
	m.Content = content
	m.Sources = sources
	m.Routing = routing
	m.UpdatedAt = now()
	s.messages[id] = m
	return m, nil
}

func (s *memMessageStore) DeleteByConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.messages {
		if m.ConversationID == conversationID {
			delete(s.messages, id)
		}
	}
	return nil
}
