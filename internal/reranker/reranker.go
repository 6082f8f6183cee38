// Package reranker is the Reranker collaborator: it reorders retrieved
// candidates by relevance to a query. Grounded on the teacher's
// internal/rag/retrieve/rerank.go Reranker interface/NoopReranker shape and
// the root rerank.go HTTP-to-llama.cpp-reranker call (RerankRequest/
// RerankResponse/index-to-score mapping), generalized into three selectable
// variants per spec §4.5 plus a Redis response cache grounded on
// internal/skills/redis_cache.go's UniversalClient/TTL/redis.Nil pattern.
package reranker

import (
	"context"

	"github.com/docbrain/docbrain/internal/config"
	"github.com/docbrain/docbrain/internal/embedclient"
)

// Item is one reranking candidate.
type Item struct {
	ID    string
	Text  string
	Score float64
}

// Reranker reorders items by relevance to query, descending by Score.
// Implementations must not drop items.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []Item) ([]Item, error)
}

// NoopReranker leaves ordering unchanged, matching the teacher's
// NoopReranker default.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, items []Item) ([]Item, error) {
	return items, nil
}

// New builds the configured Reranker variant, wrapping it in a Redis
// response cache when cfg.RedisDSN is set.
func New(cfg config.RerankerConfig, embedder embedclient.Embedder) (Reranker, error) {
	var r Reranker
	switch cfg.Variant {
	case "cross_encoder":
		r = newHTTPReranker(cfg.Host, cfg.APIKey, "slide-bge-reranker-v2-m3.Q8_0.gguf", false)
	case "remote":
		r = newHTTPReranker(cfg.Host, cfg.APIKey, "", true)
	case "flag_embedding":
		r = newFlagEmbeddingReranker(embedder)
	case "none", "":
		r = NoopReranker{}
	default:
		r = NoopReranker{}
	}
	if cfg.RedisDSN == "" {
		return r, nil
	}
	cache, err := newRedisCache(cfg.RedisDSN)
	if err != nil {
		return nil, err
	}
	return &cachingReranker{inner: r, cache: cache}, nil
}
