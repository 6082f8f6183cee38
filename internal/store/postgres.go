package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

// OpenPostgresPool opens a connection pool with the conservative defaults
// the rest of the core expects: small bounded pool, hour-long connection
// lifetime, five-minute idle reap, and a 3s ping before the pool is handed
// back so a bad DSN fails fast at startup instead of on the first query.
func OpenPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgres builds a Store backed by pool. Init must be called once before
// use to create the schema (best-effort CREATE IF NOT EXISTS, matching the
// teacher's dev-time bootstrap convention; production deployments should
// manage migrations externally).
func NewPostgres(pool *pgxpool.Pool) *Store {
	p := &pgBackend{pool: pool}
	return &Store{
		KnowledgeBases: (*pgKBStore)(p),
		Documents:      (*pgDocStore)(p),
		Questions:      (*pgQuestionStore)(p),
		Messages:       (*pgMessageStore)(p),
	}
}

type pgBackend struct {
	pool *pgxpool.Pool
}

// Init creates the knowledge_bases/documents/questions/messages tables if
// they do not already exist.
func Init(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS knowledge_bases (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	acl JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
	title TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL,
	raw_storage_handle TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	processed_chunk_count INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_kb_idx ON documents(knowledge_base_id);

CREATE TABLE IF NOT EXISTS questions (
	id TEXT PRIMARY KEY,
	knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
	question_text TEXT NOT NULL,
	answer_text TEXT NOT NULL,
	answer_kind TEXT NOT NULL,
	status TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS questions_kb_idx ON questions(knowledge_base_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	status TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	sources JSONB NOT NULL DEFAULT '[]',
	routing JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages(conversation_id);
`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// --- KnowledgeBaseStore ---

type pgKBStore pgBackend

func (s *pgKBStore) Insert(ctx context.Context, kb domain.KnowledgeBase) (domain.KnowledgeBase, error) {
	acl, err := json.Marshal(kb.ACL)
	if err != nil {
		return domain.KnowledgeBase{}, fmt.Errorf("marshal acl: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO knowledge_bases (id, owner, name, acl)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, acl = EXCLUDED.acl, updated_at = now()
RETURNING id, owner, name, acl, created_at, updated_at`, kb.ID, kb.Owner, kb.Name, acl)
	return scanKB(row)
}

func (s *pgKBStore) Get(ctx context.Context, id string) (domain.KnowledgeBase, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, owner, name, acl, created_at, updated_at FROM knowledge_bases WHERE id = $1`, id)
	kb, err := scanKB(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.KnowledgeBase{}, fmt.Errorf("knowledge base %s: %w", id, errs.ErrNotFound)
	}
	return kb, err
}

func (s *pgKBStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM knowledge_bases WHERE id = $1`, id)
	return err
}

func scanKB(row pgx.Row) (domain.KnowledgeBase, error) {
	var kb domain.KnowledgeBase
	var acl []byte
	if err := row.Scan(&kb.ID, &kb.Owner, &kb.Name, &acl, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
		return domain.KnowledgeBase{}, err
	}
	if len(acl) > 0 {
		if err := json.Unmarshal(acl, &kb.ACL); err != nil {
			return domain.KnowledgeBase{}, fmt.Errorf("unmarshal acl: %w", err)
		}
	}
	return kb, nil
}

// --- DocumentStore ---

type pgDocStore pgBackend

func (s *pgDocStore) Insert(ctx context.Context, d domain.Document) (domain.Document, error) {
	if d.Status == "" {
		d.Status = domain.DocumentPending
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO documents (id, knowledge_base_id, title, content_type, raw_storage_handle, status, processed_chunk_count, summary, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, knowledge_base_id, title, content_type, raw_storage_handle, status, processed_chunk_count, summary, error_message, created_at, updated_at`,
		d.ID, d.KnowledgeBaseID, d.Title, d.ContentType, d.RawStorageHandle, d.Status, d.ProcessedChunkCount, d.Summary, d.ErrorMessage)
	return scanDoc(row)
}

func (s *pgDocStore) Get(ctx context.Context, id string) (domain.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, knowledge_base_id, title, content_type, raw_storage_handle, status, processed_chunk_count, summary, error_message, created_at, updated_at FROM documents WHERE id = $1`, id)
	d, err := scanDoc(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
	}
	return d, err
}

func (s *pgDocStore) ListByKnowledgeBase(ctx context.Context, kbID string) ([]domain.Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, knowledge_base_id, title, content_type, raw_storage_handle, status, processed_chunk_count, summary, error_message, created_at, updated_at FROM documents WHERE knowledge_base_id = $1 ORDER BY created_at`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Document, 0)
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgDocStore) UpdateStatus(ctx context.Context, id string, expected, next domain.DocumentStatus, patch DocumentPatch) (domain.Document, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE documents SET
	status = $3,
	processed_chunk_count = COALESCE($4, processed_chunk_count),
	summary = COALESCE($5, summary),
	error_message = COALESCE($6, error_message),
	updated_at = now()
WHERE id = $1 AND status = $2
RETURNING id, knowledge_base_id, title, content_type, raw_storage_handle, status, processed_chunk_count, summary, error_message, created_at, updated_at`,
		id, expected, next, patch.ProcessedChunkCount, patch.Summary, patch.ErrorMessage)
	d, err := scanDoc(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, errs.ErrNotFound) {
			return domain.Document{}, fmt.Errorf("document %s: %w", id, errs.ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("document %s: expected status %s: %w", id, expected, errs.ErrPreconditionFailed)
	}
	return d, err
}

func (s *pgDocStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

func (s *pgDocStore) DeleteByKnowledgeBase(ctx context.Context, kbID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM documents WHERE knowledge_base_id = $1 RETURNING id`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanDoc(row pgx.Row) (domain.Document, error) {
	var d domain.Document
	if err := row.Scan(&d.ID, &d.KnowledgeBaseID, &d.Title, &d.ContentType, &d.RawStorageHandle, &d.Status, &d.ProcessedChunkCount, &d.Summary, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

// --- QuestionStore ---

type pgQuestionStore pgBackend

func (s *pgQuestionStore) Insert(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.Status == "" {
		q.Status = domain.QuestionPending
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO questions (id, knowledge_base_id, question_text, answer_text, answer_kind, status, user_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, knowledge_base_id, question_text, answer_text, answer_kind, status, user_id, created_at, updated_at`,
		q.ID, q.KnowledgeBaseID, q.QuestionText, q.AnswerText, q.AnswerKind, q.Status, q.UserID)
	return scanQuestion(row)
}

func (s *pgQuestionStore) Get(ctx context.Context, id string) (domain.Question, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, knowledge_base_id, question_text, answer_text, answer_kind, status, user_id, created_at, updated_at FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, fmt.Errorf("question %s: %w", id, errs.ErrNotFound)
	}
	return q, err
}

func (s *pgQuestionStore) ListByKnowledgeBase(ctx context.Context, kbID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, knowledge_base_id, question_text, answer_text, answer_kind, status, user_id, created_at, updated_at FROM questions WHERE knowledge_base_id = $1 ORDER BY created_at`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *pgQuestionStore) UpdateStatus(ctx context.Context, id string, expected, next domain.QuestionStatus, errMsg string) (domain.Question, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE questions SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING id, knowledge_base_id, question_text, answer_text, answer_kind, status, user_id, created_at, updated_at`, id, expected, next)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, errs.ErrNotFound) {
			return domain.Question{}, fmt.Errorf("question %s: %w", id, errs.ErrNotFound)
		}
		return domain.Question{}, fmt.Errorf("question %s: expected status %s: %w", id, expected, errs.ErrPreconditionFailed)
	}
	_ = errMsg
	return q, err
}

func (s *pgQuestionStore) ResetToPending(ctx context.Context, id string) (domain.Question, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE questions SET status = $2, updated_at = now() WHERE id = $1
RETURNING id, knowledge_base_id, question_text, answer_text, answer_kind, status, user_id, created_at, updated_at`, id, domain.QuestionPending)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, fmt.Errorf("question %s: %w", id, errs.ErrNotFound)
	}
	return q, err
}

func (s *pgQuestionStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return err
}

func (s *pgQuestionStore) DeleteByKnowledgeBase(ctx context.Context, kbID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM questions WHERE knowledge_base_id = $1 RETURNING id`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	if err := row.Scan(&q.ID, &q.KnowledgeBaseID, &q.QuestionText, &q.AnswerText, &q.AnswerKind, &q.Status, &q.UserID, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

// --- MessageStore ---

type pgMessageStore pgBackend

func (s *pgMessageStore) Insert(ctx context.Context, m domain.Message) (domain.Message, error) {
	if m.Status == "" {
		m.Status = domain.MessageReceived
	}
	sources, err := json.Marshal(m.Sources)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal sources: %w", err)
	}
	routing, err := json.Marshal(m.Routing)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal routing: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO messages (id, conversation_id, status, content, sources, routing)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, conversation_id, status, content, sources, routing, created_at, updated_at`,
		m.ID, m.ConversationID, m.Status, m.Content, sources, routing)
	return scanMessage(row)
}

func (s *pgMessageStore) Get(ctx context.Context, id string) (domain.Message, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, conversation_id, status, content, sources, routing, created_at, updated_at FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, errs.ErrNotFound)
	}
	return m, err
}

func (s *pgMessageStore) UpdateResult(ctx context.Context, id string, status domain.MessageStatus, content string, sources []domain.Source, routing domain.RoutingInfo) (domain.Message, error) {
	srcJSON, err := json.Marshal(sources)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal sources: %w", err)
	}
	routingJSON, err := json.Marshal(routing)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal routing: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
UPDATE messages SET status = $2, content = $3, sources = $4, routing = $5, updated_at = now()
WHERE id = $1
RETURNING id, conversation_id, status, content, sources, routing, created_at, updated_at`,
		id, status, content, srcJSON, routingJSON)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, errs.ErrNotFound)
	}
	return m, err
}

func (s *pgMessageStore) DeleteByConversation(ctx context.Context, conversationID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	return err
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	var sources, routing []byte
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Status, &m.Content, &sources, &routing, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return domain.Message{}, err
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &m.Sources); err != nil {
			return domain.Message{}, fmt.Errorf("unmarshal sources: %w", err)
		}
	}
	if len(routing) > 0 {
		if err := json.Unmarshal(routing, &m.Routing); err != nil {
			return domain.Message{}, fmt.Errorf("unmarshal routing: %w", err)
		}
	}
	return m, nil
}
