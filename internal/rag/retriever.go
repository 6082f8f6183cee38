// Package rag is the RagRetriever collaborator: unstructured
// retrieval-augmented-generation over a knowledge base's chunk index, per
// spec §4.12 — document preselection, a primary search, two rewriting
// fallbacks, reranking, metadata-aware score boosting, and grounded answer
// synthesis with citations. Grounded on the teacher's
// internal/rag/retrieve/fusion.go (the preselect-then-search-then-fallback
// cascade and defensive LLM-output parsing) and internal/rag/service's
// single Retrieve entrypoint shape, adapted from one retrieval strategy
// into the preselection/sub-question/query-variation cascade spec §4.12
// names.
package rag

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/obs"
	"github.com/docbrain/docbrain/internal/prompts"
	"github.com/docbrain/docbrain/internal/reranker"
	"github.com/docbrain/docbrain/internal/router"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

// noResultsAnswer is the fixed response spec §4.12 step 6 requires when
// every retrieval strategy turns up empty.
const noResultsAnswer = "I couldn't find any relevant information in this knowledge base to answer that question."

// keptChunks is how many boosted candidates survive into synthesis.
const keptChunks = 3

// maxPreselectedDocuments bounds how many document summaries are offered
// to the preselection prompt.
const maxPreselectedDocuments = 20

// Retriever implements router.RagRetriever.
type Retriever struct {
	embedder  embedclient.Embedder
	index     *vectorindex.Index
	llm       llmclient.Provider
	prompts   *prompts.Registry
	documents store.DocumentStore
	reranker  reranker.Reranker
	defaultTopK int
}

// New builds a Retriever from its collaborators. reranker may be nil, in
// which case boosting runs directly on retrieval scores.
func New(embedder embedclient.Embedder, index *vectorindex.Index, llm llmclient.Provider, reg *prompts.Registry, documents store.DocumentStore, rr reranker.Reranker) *Retriever {
	if rr == nil {
		rr = reranker.NoopReranker{}
	}
	return &Retriever{embedder: embedder, index: index, llm: llm, prompts: reg, documents: documents, reranker: rr, defaultTopK: 5}
}

var _ router.RagRetriever = (*Retriever)(nil)

// Answer runs the full cascade described in spec §4.12 and never returns an
// error: any collaborator failure degrades to the fixed no-results answer
// or, for synthesis failures specifically, an error-answer, matching the
// LLMFailed-for-synthesis policy in the error-handling design.
func (r *Retriever) Answer(ctx context.Context, req router.RagRequest) (router.RagAnswer, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}

	queryVec, err := r.embedQuery(ctx, req.Query)
	if err != nil {
		log.Warn().Err(err).Msg("rag_embed_query_failed")
		return router.RagAnswer{Answer: noResultsAnswer, Sources: []domain.Source{}}, nil
	}

	preselectCtx, preselectSpan := obs.StartSpan(ctx, "rag.preselect_documents")
	docIDs := r.preselectDocuments(preselectCtx, req.KnowledgeBaseID, req.Query)
	preselectSpan.End()
	filter := mergeFilter(req.MetadataFilter, map[string]string{"record_type": "chunk"})

	primaryCtx, primarySpan := obs.StartSpan(ctx, "rag.primary_retrieval")
	results, err := r.primaryRetrieval(primaryCtx, req, queryVec, topK, filter, docIDs)
	primarySpan.End()
	if err != nil {
		log.Warn().Err(err).Msg("rag_primary_retrieval_failed")
	}

	if len(results) == 0 && len(docIDs) > 0 {
		// Preselection may have over-filtered; retry once unfiltered.
		unfilteredCtx, unfilteredSpan := obs.StartSpan(ctx, "rag.unfiltered_retry")
		results, err = r.primaryRetrieval(unfilteredCtx, req, queryVec, topK, filter, nil)
		unfilteredSpan.End()
		if err != nil {
			log.Warn().Err(err).Msg("rag_unfiltered_retry_failed")
		}
	}

	if len(results) == 0 {
		subCtx, subSpan := obs.StartSpan(ctx, "rag.sub_question_fallback")
		results = r.subQuestionFallback(subCtx, req, topK, filter, docIDs)
		subSpan.End()
	}
	if len(results) == 0 {
		variationCtx, variationSpan := obs.StartSpan(ctx, "rag.query_variation_fallback")
		results = r.queryVariationFallback(variationCtx, req, topK, filter, docIDs)
		variationSpan.End()
	}

	if len(results) == 0 {
		return router.RagAnswer{Answer: noResultsAnswer, Sources: []domain.Source{}}, nil
	}

	synthesisCtx, synthesisSpan := obs.StartSpan(ctx, "rag.synthesize")
	answer := r.synthesize(synthesisCtx, req.Query, results)
	synthesisSpan.End()
	return answer, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := r.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func mergeFilter(base map[string]string, extra map[string]string) map[string]string {
	if base == nil && extra == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
