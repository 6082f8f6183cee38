package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/prompts"
	"github.com/docbrain/docbrain/internal/reranker"
	"github.com/docbrain/docbrain/internal/router"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

type scriptedLLM struct {
	responses map[string]string
	calls     []string
}

func (f *scriptedLLM) Complete(ctx context.Context, messages []llmclient.Message, opts llmclient.CompletionOptions) (llmclient.Completion, error) {
	content := messages[0].Content
	f.calls = append(f.calls, content)
	for key, resp := range f.responses {
		if contains(content, key) {
			return llmclient.Completion{Content: resp}, nil
		}
	}
	return llmclient.Completion{Content: "default synthesized answer [Source 1]"}, nil
}

func (f *scriptedLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func contains(haystack, needle string) bool {
	return len(needle) > 0 && (haystack == needle || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func newTestRetriever(t *testing.T, llm llmclient.Provider) (*Retriever, store.DocumentStore, *vectorindex.Index) {
	t.Helper()
	reg, err := prompts.NewRegistry()
	require.NoError(t, err)
	s := store.NewMemory()
	backend := vectorindex.NewMemoryBackend(2)
	index := vectorindex.New(backend)
	embedder := embedclient.NewDeterministic(2, true, 1)
	retriever := New(embedder, index, llm, reg, s.Documents, reranker.NoopReranker{})
	return retriever, s.Documents, index
}

func TestAnswerReturnsNoResultsWhenIndexEmpty(t *testing.T) {
	retriever, _, _ := newTestRetriever(t, &scriptedLLM{responses: map[string]string{
		"RELEVANT_DOCUMENTS": "RELEVANT_DOCUMENTS: NONE",
	}})
	ans, err := retriever.Answer(context.Background(), router.RagRequest{
		Query:           "what is the refund policy",
		KnowledgeBaseID: "kb1",
		TopK:            5,
	})
	require.NoError(t, err)
	require.Equal(t, noResultsAnswer, ans.Answer)
	require.Empty(t, ans.Sources)
}

func TestAnswerSynthesizesFromPrimaryRetrieval(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"RELEVANT_DOCUMENTS": "RELEVANT_DOCUMENTS: NONE",
	}}
	retriever, docs, index := newTestRetriever(t, llm)
	ctx := context.Background()

	_, err := docs.Insert(ctx, domain.Document{ID: "doc1", KnowledgeBaseID: "kb1", Title: "Refunds", Status: domain.DocumentProcessed, Summary: "Refund policy details"})
	require.NoError(t, err)

	err = index.Upsert(ctx, "kb1", domain.VectorRecord{
		ID:     "doc1_0_MEDIUM",
		Vector: []float32{1, 0},
		Metadata: map[string]string{
			"record_type":    "chunk",
			"document_id":    "doc1",
			"chunk_index":    "0",
			"document_title": "Refunds",
			"text":           "Refunds are processed within 30 days.",
		},
	})
	require.NoError(t, err)

	ans, err := retriever.Answer(ctx, router.RagRequest{
		Query:           "what is the refund policy",
		KnowledgeBaseID: "kb1",
		TopK:            5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, ans.Answer)
	require.Len(t, ans.Sources, 1)
	require.Equal(t, "doc1", ans.Sources[0].DocumentID)
}
