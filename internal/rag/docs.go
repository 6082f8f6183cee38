package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/llmclient"
)

// summaryPreviewChars bounds how much of a document's summary is shown to
// the preselection prompt per candidate.
const summaryPreviewChars = 500

var relevantDocumentsPattern = regexp.MustCompile(`(?i)RELEVANT_DOCUMENTS:\s*(.*)`)

// preselectDocuments fetches up to maxPreselectedDocuments PROCESSED
// documents for knowledgeBaseID, asks the LLM which are plausibly relevant
// to query, and returns their ids. A nil return (not an error) means "no
// preselection could be made" — callers fall back to an unfiltered search,
// matching spec §4.12 step 1's degrade-gracefully intent for LLMFailed.
func (r *Retriever) preselectDocuments(ctx context.Context, knowledgeBaseID, query string) []string {
	candidates := r.loadProcessedDocuments(ctx, knowledgeBaseID)
	if len(candidates) == 0 {
		return nil
	}

	rendered := r.prompts.Get("documents", "preselection", map[string]any{
		"user_query":    query,
		"document_list": formatDocumentList(candidates),
	})
	completion, err := r.llm.Complete(ctx, []llmclient.Message{{Role: "user", Content: rendered}}, llmclient.CompletionOptions{})
	if err != nil {
		log.Warn().Err(err).Msg("rag_preselect_llm_failed")
		return nil
	}

	return parseRelevantDocuments(completion.Content, candidates)
}

// loadProcessedDocuments fetches up to maxPreselectedDocuments PROCESSED
// documents for knowledgeBaseID, the shared candidate pool for both
// preselection and the sub-question fallback's document-summary context.
func (r *Retriever) loadProcessedDocuments(ctx context.Context, knowledgeBaseID string) []domain.Document {
	all, err := r.documents.ListByKnowledgeBase(ctx, knowledgeBaseID)
	if err != nil {
		log.Warn().Err(err).Str("knowledge_base_id", knowledgeBaseID).Msg("rag_list_documents_failed")
		return nil
	}
	out := make([]domain.Document, 0, len(all))
	for _, d := range all {
		if d.Status == domain.DocumentProcessed {
			out = append(out, d)
		}
		if len(out) == maxPreselectedDocuments {
			break
		}
	}
	return out
}

func formatDocumentList(docs []domain.Document) string {
	var b strings.Builder
	for i, d := range docs {
		summary := d.Summary
		if len(summary) > summaryPreviewChars {
			summary = summary[:summaryPreviewChars]
		}
		fmt.Fprintf(&b, "doc_%d: %s - %s\n", i, d.Title, summary)
	}
	return b.String()
}

// parseRelevantDocuments extracts the comma-separated index list from a
// "RELEVANT_DOCUMENTS: ..." reply and maps each index back to a document id.
// Any parse failure, or an explicit NONE, returns nil.
func parseRelevantDocuments(text string, candidates []domain.Document) []string {
	match := relevantDocumentsPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	body := strings.TrimSpace(match[1])
	if body == "" || strings.EqualFold(body, "NONE") {
		return nil
	}

	var ids []string
	for _, part := range strings.Split(body, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || idx < 0 || idx >= len(candidates) {
			continue
		}
		ids = append(ids, candidates[idx].ID)
	}
	return ids
}
