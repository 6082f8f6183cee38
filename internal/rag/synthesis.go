package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/reranker"
	"github.com/docbrain/docbrain/internal/router"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

// maxContextTokens bounds the rendered context block passed to the
// synthesis LLM call, estimated via estimateTokens's chars/4 heuristic.
// keptChunks already bounds chunk count; this guards against a
// pathological run of oversized chunks still blowing a provider's context
// window.
const maxContextTokens = 6000

// estimateTokens is a heuristic fallback (chars/4) for bounding prompt
// size when a provider-accurate tokenizer isn't available.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return len([]rune(s))/4 + 1
}

// synthesize classifies intent, reranks and boosts the collected chunks,
// keeps the top keptChunks, and asks the LLM for a grounded, cited answer,
// per spec §4.12 step 5. A synthesis failure still returns the sources that
// were found (only the answer text degrades), per the LLMFailed-for-
// synthesis policy: "return error-answer" rather than dropping provenance.
func (r *Retriever) synthesize(ctx context.Context, query string, results []vectorindex.Result) router.RagAnswer {
	intent := r.classifyIntent(ctx, query)
	results = r.rerank(ctx, query, results)
	kept := r.applyBoost(query, intent, results)

	contextBlock, sources := buildContext(kept)

	rendered := r.prompts.Get("synthesis", "answer", map[string]any{
		"user_query":    query,
		"context_block": contextBlock,
	})
	completion, err := r.llm.Complete(ctx, []llmclient.Message{{Role: "user", Content: rendered}}, llmclient.CompletionOptions{})
	if err != nil {
		log.Warn().Err(err).Msg("rag_synthesis_failed")
		return router.RagAnswer{
			Answer:  fmt.Sprintf("I found relevant passages but could not compose an answer from them: %s", err.Error()),
			Sources: sources,
		}
	}
	return router.RagAnswer{Answer: completion.Content, Sources: sources}
}

// rerank asks the configured Reranker for a fresh ordering, falling back to
// the original order on error (non-fatal per spec §4.5).
func (r *Retriever) rerank(ctx context.Context, query string, results []vectorindex.Result) []vectorindex.Result {
	if len(results) == 0 {
		return results
	}
	items := make([]reranker.Item, len(results))
	for i, res := range results {
		items[i] = reranker.Item{ID: res.ID, Text: res.Metadata["text"], Score: res.Score}
	}
	reranked, err := r.reranker.Rerank(ctx, query, items)
	if err != nil {
		log.Warn().Err(err).Msg("rag_rerank_failed")
		return results
	}
	byID := make(map[string]vectorindex.Result, len(results))
	for _, res := range results {
		byID[res.ID] = res
	}
	out := make([]vectorindex.Result, 0, len(reranked))
	for _, item := range reranked {
		res, ok := byID[item.ID]
		if !ok {
			continue
		}
		res.Score = item.Score
		out = append(out, res)
	}
	return out
}

// buildContext renders each kept chunk as a numbered "[Source i]" block and
// builds the matching domain.Source provenance list, in the same order.
// Chunks stop being added once the running estimate crosses
// maxContextTokens, so a pathological oversized chunk can't starve out the
// rest of the prompt budget.
func buildContext(kept []boosted) (string, []domain.Source) {
	var b strings.Builder
	sources := make([]domain.Source, 0, len(kept))
	for i, k := range kept {
		md := k.result.Metadata
		idx := i + 1
		title := md["document_title"]
		section := md["nearest_header"]

		var block strings.Builder
		fmt.Fprintf(&block, "[Source %d] %s", idx, title)
		if section != "" {
			fmt.Fprintf(&block, " (%s)", section)
		}
		fmt.Fprintf(&block, " - score %.3f\n%s\n\n", k.score, md["text"])

		if i > 0 && estimateTokens(b.String())+estimateTokens(block.String()) > maxContextTokens {
			break
		}
		b.WriteString(block.String())

		chunkIndex, _ := strconv.Atoi(md["chunk_index"])
		sources = append(sources, domain.Source{
			Service:    "rag",
			Score:      k.score,
			Content:    md["text"],
			DocumentID: md["document_id"],
			Title:      title,
			ChunkIndex: chunkIndex,
		})
	}
	return b.String(), sources
}
