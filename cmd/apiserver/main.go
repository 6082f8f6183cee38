// Command apiserver is a minimal HTTP front door: it accepts document
// uploads, curated-question submissions, and user messages, persists the
// row (PENDING for documents and questions, RECEIVED for messages), and
// enqueues the matching worker task. It deliberately stays
// on net/http rather than pulling in a router/web framework dependency —
// the HTTP surface sits outside the core's scope, and the handlers here are
// thin enough (decode, Insert, Enqueue, respond) that a router buys nothing.
// DESIGN.md records this as the one ambient concern left on the standard
// library.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/config"
	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/jobqueue"
	"github.com/docbrain/docbrain/internal/obs"
	"github.com/docbrain/docbrain/internal/objectstore"
	documentpipeline "github.com/docbrain/docbrain/internal/pipeline/document"
	questionpipeline "github.com/docbrain/docbrain/internal/pipeline/question"
	retrievalpipeline "github.com/docbrain/docbrain/internal/pipeline/retrieval"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/validation"
	"github.com/docbrain/docbrain/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("apiserver")
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("DOCBRAIN_CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obs.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metadataStore, closeStore, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("build metadata store: %w", err)
	}
	defer closeStore()

	objects, err := buildObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("build object store: %w", err)
	}

	queue, err := jobqueue.New(cfg.JobQueue, cfg.Retry, jobqueue.LogDeadLetterSink{})
	if err != nil {
		return fmt.Errorf("build job queue: %w", err)
	}
	defer queue.Close()

	srv := &server{store: metadataStore, objects: objects, queue: queue}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("POST /knowledge-bases/{kb_id}/documents", srv.handleCreateDocument)
	mux.HandleFunc("POST /knowledge-bases/{kb_id}/questions", srv.handleCreateQuestion)
	mux.HandleFunc("POST /conversations/{conversation_id}/messages", srv.handleCreateMessage)

	httpSrv := &http.Server{
		Addr:              firstNonEmpty(os.Getenv("DOCBRAIN_HTTP_ADDR"), ":8080"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	log.Info().Str("addr", httpSrv.Addr).Str("version", version.Version).Msg("apiserver started")
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

type server struct {
	store   *store.Store
	objects objectstore.ObjectStore
	queue   jobqueue.Queue
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type createDocumentRequest struct {
	Title       string `json:"title"`
	ContentType string `json:"content_type"`
}

func (s *server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	kbID, err := validation.KnowledgeBaseID(r.PathValue("kb_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()

	var req createDocumentRequest
	title := r.URL.Query().Get("title")
	contentType := r.URL.Query().Get("content_type")
	if title != "" || contentType != "" {
		req.Title, req.ContentType = title, contentType
	} else if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	doc := domain.Document{
		ID:              newID("doc"),
		KnowledgeBaseID: kbID,
		Title:           firstNonEmpty(req.Title, "untitled"),
		ContentType:     domain.ContentType(req.ContentType),
		Status:          domain.DocumentPending,
	}

	if len(raw) > 0 {
		key := fmt.Sprintf("documents/%s/%s", kbID, doc.ID)
		if _, err := s.objects.Put(ctx, key, bytes.NewReader(raw), objectstore.PutOptions{ContentType: req.ContentType}); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		doc.RawStorageHandle = key
	}

	inserted, err := s.store.Documents.Insert(ctx, doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if _, err := s.queue.Enqueue(ctx, documentpipeline.TaskName, documentpipeline.Payload{DocumentID: inserted.ID}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, inserted)
}

type createQuestionRequest struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	AnswerKind string `json:"answer_kind"`
	UserID     string `json:"user_id"`
}

func (s *server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	kbID, err := validation.KnowledgeBaseID(r.PathValue("kb_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()

	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := domain.Question{
		ID:              newID("q"),
		KnowledgeBaseID: kbID,
		QuestionText:    req.Question,
		AnswerText:      req.Answer,
		AnswerKind:      domain.AnswerKind(firstNonEmpty(req.AnswerKind, string(domain.AnswerDirect))),
		Status:          domain.QuestionPending,
		UserID:          req.UserID,
	}

	inserted, err := s.store.Questions.Insert(ctx, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if _, err := s.queue.Enqueue(ctx, questionpipeline.TaskName, questionpipeline.Payload{QuestionID: inserted.ID}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, inserted)
}

type createMessageRequest struct {
	KnowledgeBaseID     string            `json:"knowledge_base_id"`
	Query               string            `json:"query"`
	TopK                int               `json:"top_k"`
	SimilarityThreshold float64           `json:"similarity_threshold"`
	ForcedService       string            `json:"forced_service"`
	MetadataFilter      map[string]string `json:"metadata_filter"`
}

func (s *server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, err := validation.ConversationID(r.PathValue("conversation_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := s.store.Messages.Insert(ctx, domain.Message{
		ID:             newID("msg"),
		ConversationID: conversationID,
		Status:         domain.MessageReceived,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	payload := retrievalpipeline.Payload{
		MessageID:           msg.ID,
		KnowledgeBaseID:     req.KnowledgeBaseID,
		Query:               req.Query,
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
		ForcedService:       req.ForcedService,
		MetadataFilter:      req.MetadataFilter,
	}
	if _, err := s.queue.Enqueue(ctx, retrievalpipeline.TaskName, payload); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	log.Error().Err(err).Int("status", status).Msg("apiserver_request_failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemory(), func() {}, nil
	case "postgres":
		pool, err := store.OpenPostgresPool(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Init(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store.NewPostgres(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func buildObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (objectstore.ObjectStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return objectstore.NewMemoryStore(), nil
	case "s3":
		return objectstore.NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported object store backend %q", cfg.Backend)
	}
}
