package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/router"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

// subQuestionCount is the target number of sub-questions requested from the
// LLM in the sub-question fallback, per spec §4.12 step 3 ("2-3").
const subQuestionCount = 3

// primaryRetrieval runs the namespace chunk search, restricted to docIDs via
// an $in filter when non-empty, and drops any hit below
// req.SimilarityThreshold.
func (r *Retriever) primaryRetrieval(ctx context.Context, req router.RagRequest, queryVec []float32, topK int, filter map[string]string, docIDs []string) ([]vectorindex.Result, error) {
	var results []vectorindex.Result
	var err error
	if len(docIDs) > 0 {
		results, err = r.index.QueryAny(ctx, req.KnowledgeBaseID, queryVec, topK, "document_id", docIDs, filter)
	} else {
		results, err = r.index.Query(ctx, req.KnowledgeBaseID, queryVec, topK, filter)
	}
	if err != nil {
		return nil, err
	}
	return aboveThreshold(results, req.SimilarityThreshold), nil
}

func aboveThreshold(results []vectorindex.Result, threshold float64) []vectorindex.Result {
	if threshold <= 0 {
		return results
	}
	out := make([]vectorindex.Result, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// subQuestionFallback prompts the LLM for 2-3 narrower sub-questions, then
// re-runs retrieval for each with a proportionally smaller top_k, unioning
// and deduplicating by chunk id, per spec §4.12 step 3.
func (r *Retriever) subQuestionFallback(ctx context.Context, req router.RagRequest, topK int, filter map[string]string, docIDs []string) []vectorindex.Result {
	docs := r.loadProcessedDocuments(ctx, req.KnowledgeBaseID)
	rendered := r.prompts.Get("documents", "subquestions", map[string]any{
		"user_query":    req.Query,
		"document_list": formatDocumentList(docs),
	})
	completion, err := r.llm.Complete(ctx, []llmclient.Message{{Role: "user", Content: rendered}}, llmclient.CompletionOptions{})
	if err != nil {
		log.Warn().Err(err).Msg("rag_subquestions_llm_failed")
		return nil
	}

	subQuestions := parseLines(completion.Content, subQuestionCount)
	if len(subQuestions) == 0 {
		return nil
	}
	subTopK := topK / len(subQuestions)
	if subTopK < 1 {
		subTopK = 1
	}

	var merged []vectorindex.Result
	for _, sq := range subQuestions {
		vec, err := r.embedQuery(ctx, sq)
		if err != nil {
			log.Warn().Err(err).Str("sub_question", sq).Msg("rag_subquestion_embed_failed")
			continue
		}
		hits, err := r.primaryRetrieval(ctx, req, vec, subTopK, filter, docIDs)
		if err != nil {
			log.Warn().Err(err).Str("sub_question", sq).Msg("rag_subquestion_retrieval_failed")
			continue
		}
		merged = append(merged, hits...)
	}
	return dedupeByID(merged)
}

// queryVariationFallback prompts the LLM for 3-5 alternative phrasings of
// the query and re-runs retrieval for each, unioning and deduplicating,
// per spec §4.12 step 4.
func (r *Retriever) queryVariationFallback(ctx context.Context, req router.RagRequest, topK int, filter map[string]string, docIDs []string) []vectorindex.Result {
	rendered := r.prompts.Get("documents", "query_variation", map[string]any{"user_query": req.Query})
	completion, err := r.llm.Complete(ctx, []llmclient.Message{{Role: "user", Content: rendered}}, llmclient.CompletionOptions{})
	if err != nil {
		log.Warn().Err(err).Msg("rag_query_variation_llm_failed")
		return nil
	}

	variations := parseLines(completion.Content, 5)
	if len(variations) == 0 {
		return nil
	}

	var merged []vectorindex.Result
	for _, v := range variations {
		vec, err := r.embedQuery(ctx, v)
		if err != nil {
			log.Warn().Err(err).Str("variation", v).Msg("rag_query_variation_embed_failed")
			continue
		}
		hits, err := r.primaryRetrieval(ctx, req, vec, topK, filter, docIDs)
		if err != nil {
			log.Warn().Err(err).Str("variation", v).Msg("rag_query_variation_retrieval_failed")
			continue
		}
		merged = append(merged, hits...)
	}
	return dedupeByID(merged)
}

// parseLines splits text into non-empty trimmed lines, capped at max, and
// strips a trailing " -- rationale" suffix (the sub-question format) down
// to just the question.
func parseLines(text string, max int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.Index(line, "--"); idx > 0 {
			line = strings.TrimSpace(line[:idx])
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}

// dedupeByID keeps each chunk id's best-scoring hit.
func dedupeByID(results []vectorindex.Result) []vectorindex.Result {
	best := make(map[string]vectorindex.Result, len(results))
	for _, r := range results {
		if existing, ok := best[r.ID]; !ok || r.Score > existing.Score {
			best[r.ID] = r
		}
	}
	out := make([]vectorindex.Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}
