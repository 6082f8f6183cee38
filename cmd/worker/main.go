// Command worker is the DocBrain worker-plane entrypoint: it wires every
// collaborator described in SPEC_FULL.md's component design, subscribes the
// document/question/retrieval task handlers, and runs the job queue until
// SIGINT/SIGTERM. Grounded on the teacher's cmd/orchestrator/main.go
// (config-first/logger-second startup, deferred-Close resource chain,
// signal.NotifyContext graceful shutdown).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/config"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/extract"
	"github.com/docbrain/docbrain/internal/jobqueue"
	"github.com/docbrain/docbrain/internal/llmclient"
	documentpipeline "github.com/docbrain/docbrain/internal/pipeline/document"
	questionpipeline "github.com/docbrain/docbrain/internal/pipeline/question"
	retrievalpipeline "github.com/docbrain/docbrain/internal/pipeline/retrieval"
	"github.com/docbrain/docbrain/internal/obs"
	"github.com/docbrain/docbrain/internal/objectstore"
	"github.com/docbrain/docbrain/internal/prompts"
	"github.com/docbrain/docbrain/internal/rag"
	"github.com/docbrain/docbrain/internal/reranker"
	"github.com/docbrain/docbrain/internal/router"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/vectorindex"
	"github.com/docbrain/docbrain/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("worker")
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

	llm, err := llmclient.New(cfg.LLM, nil)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	embedder := buildEmbedder(cfg.Embedding, llm)

	vectorBackend, err := buildVectorBackend(ctx, cfg.VectorIndex)
	if err != nil {
		return fmt.Errorf("build vector backend: %w", err)
	}
	defer vectorBackend.Close()
	index := vectorindex.New(vectorBackend)

	rr, err := reranker.New(cfg.Reranker, embedder)
	if err != nil {
		return fmt.Errorf("build reranker: %w", err)
	}

	promptRegistry, err := prompts.NewRegistry()
	if err != nil {
		return fmt.Errorf("load prompt templates: %w", err)
	}

	extractors := extract.NewRegistry()

	ragRetriever := rag.New(embedder, index, llm, promptRegistry, metadataStore.Documents, rr)

	// TAG's structured-data Executor is an external collaborator and ships
	// with no default implementation; Route already degrades a tag
	// classification to an error-answer when no TagExecutor is configured,
	// so a nil TagExecutor here is a supported, not a broken, wiring. A
	// deployment with a structured-data backend constructs
	// tag.Service{Generator: tag.LLMSQLGenerator{LLM: llm, Prompts: promptRegistry}, Executor: itsExecutor, LLM: llm, Prompts: promptRegistry}
	// and passes it below instead of nil.
	var tagExecutor router.TagExecutor

	queryRouter := router.New(embedder, index, llm, promptRegistry, ragRetriever, tagExecutor)

	documentPipeline := &documentpipeline.Pipeline{
		Documents:  metadataStore.Documents,
		Objects:    objects,
		Extractors: extractors,
		Embedder:   embedder,
		Index:      index,
		Prompts:    promptRegistry,
		LLM:        llm,
	}
	questionPipeline := &questionpipeline.Pipeline{
		Questions: metadataStore.Questions,
		Embedder:  embedder,
		Index:     index,
	}
	retrievalPipeline := &retrievalpipeline.Pipeline{
		Messages: metadataStore.Messages,
		Router:   queryRouter,
	}

	documentDL := documentpipeline.DeadLetterSink{Documents: metadataStore.Documents, Next: jobqueue.LogDeadLetterSink{}}
	questionDL := questionpipeline.DeadLetterSink{Questions: metadataStore.Questions, Next: jobqueue.LogDeadLetterSink{}}

	queue, err := jobqueue.New(cfg.JobQueue, cfg.Retry, routingDeadLetterSink{document: documentDL, question: questionDL, fallback: jobqueue.LogDeadLetterSink{}})
	if err != nil {
		return fmt.Errorf("build job queue: %w", err)
	}
	defer queue.Close()

	if err := queue.Subscribe(documentpipeline.TaskName, documentPipeline.Handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", documentpipeline.TaskName, err)
	}
	if err := queue.Subscribe(questionpipeline.TaskName, questionPipeline.Handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", questionpipeline.TaskName, err)
	}
	if err := queue.Subscribe(retrievalpipeline.TaskName, retrievalPipeline.Handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", retrievalpipeline.TaskName, err)
	}

	log.Info().Str("version", version.Version).Msg("worker started")
	return queue.Run(ctx)
}

// routingDeadLetterSink dispatches a dead-lettered task to the sink that
// knows how to persist FAILED for its entity, falling back to a logging
// sink for any task name neither pipeline owns.
type routingDeadLetterSink struct {
	document documentpipeline.DeadLetterSink
	question questionpipeline.DeadLetterSink
	fallback jobqueue.DeadLetterSink
}

func (r routingDeadLetterSink) Publish(ctx context.Context, dl jobqueue.DeadLetter) error {
	switch dl.Task.Name {
	case documentpipeline.TaskName:
		return r.document.Publish(ctx, dl)
	case questionpipeline.TaskName:
		return r.question.Publish(ctx, dl)
	default:
		return r.fallback.Publish(ctx, dl)
	}
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

func buildVectorBackend(ctx context.Context, cfg config.VectorIndexConfig) (vectorindex.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return vectorindex.NewMemoryBackend(cfg.Dimensions), nil
	case "qdrant":
		return vectorindex.NewQdrantBackend(ctx, cfg.DSN, "docbrain", cfg.Dimensions, cfg.Metric)
	default:
		return nil, fmt.Errorf("unsupported vector index backend %q", cfg.Backend)
	}
}

func buildEmbedder(cfg config.EmbeddingConfig, llm llmclient.Provider) embedclient.Embedder {
	if cfg.Provider == "deterministic" {
		return embedclient.NewDeterministic(cfg.Dimensions, true, 0)
	}
	return embedclient.NewProviderEmbedder(llm, cfg.Provider, cfg.Dimensions)
}
