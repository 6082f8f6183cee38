package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/extract"
	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/objectstore"
	"github.com/docbrain/docbrain/internal/prompts"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

type stubLLM struct{ response string }

func (s stubLLM) Complete(ctx context.Context, messages []llmclient.Message, opts llmclient.CompletionOptions) (llmclient.Completion, error) {
	return llmclient.Completion{Content: s.response}, nil
}

func (s stubLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, store.DocumentStore) {
	t.Helper()
	reg, err := prompts.NewRegistry()
	require.NoError(t, err)
	backend := vectorindex.NewMemoryBackend(2)
	s := store.NewMemory()
	return &Pipeline{
		Documents:  s.Documents,
		Objects:    objectstore.NewMemoryStore(),
		Extractors: extract.NewRegistry(),
		Embedder:   embedclient.NewDeterministic(2, true, 1),
		Index:      vectorindex.New(backend),
		Prompts:    reg,
		LLM:        stubLLM{response: "a short summary"},
	}, s.Documents
}

func TestIngestProcessesPendingDocument(t *testing.T) {
	p, docs := newTestPipeline(t)
	ctx := context.Background()

	doc, err := docs.Insert(ctx, domain.Document{
		ID:              "doc1",
		KnowledgeBaseID: "kb1",
		Title:           "Test Doc",
		ContentType:     domain.ContentTypeText,
		RawInline:       []byte("First paragraph about widgets.\n\nSecond paragraph about gadgets."),
		Status:          domain.DocumentPending,
	})
	require.NoError(t, err)

	err = p.Ingest(ctx, doc.ID)
	require.NoError(t, err)

	final, err := docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DocumentProcessed, final.Status)
	require.Equal(t, "a short summary", final.Summary)
	require.Greater(t, final.ProcessedChunkCount, 0)
}

func TestIngestIsIdempotentOnAlreadyProcessed(t *testing.T) {
	p, docs := newTestPipeline(t)
	ctx := context.Background()

	doc, err := docs.Insert(ctx, domain.Document{
		ID:              "doc1",
		KnowledgeBaseID: "kb1",
		ContentType:     domain.ContentTypeText,
		RawInline:       []byte("some content"),
		Status:          domain.DocumentPending,
	})
	require.NoError(t, err)
	require.NoError(t, p.Ingest(ctx, doc.ID))

	before, err := docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DocumentProcessed, before.Status)

	require.NoError(t, p.Ingest(ctx, doc.ID))

	after, err := docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestIngestContinuesWhenAlreadyProcessing(t *testing.T) {
	p, docs := newTestPipeline(t)
	ctx := context.Background()

	doc, err := docs.Insert(ctx, domain.Document{
		ID:              "doc1",
		KnowledgeBaseID: "kb1",
		ContentType:     domain.ContentTypeText,
		RawInline:       []byte("some content"),
		Status:          domain.DocumentPending,
	})
	require.NoError(t, err)

	_, err = docs.UpdateStatus(ctx, doc.ID, domain.DocumentPending, domain.DocumentProcessing, store.DocumentPatch{})
	require.NoError(t, err)

	require.NoError(t, p.Ingest(ctx, doc.ID))

	final, err := docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DocumentProcessed, final.Status)
}

func TestIngestMarksFailedOnUnknownContentType(t *testing.T) {
	p, docs := newTestPipeline(t)
	ctx := context.Background()

	doc, err := docs.Insert(ctx, domain.Document{
		ID:              "doc1",
		KnowledgeBaseID: "kb1",
		ContentType:     "unknown-type",
		RawInline:       []byte("some content"),
		Status:          domain.DocumentPending,
	})
	require.NoError(t, err)

	require.NoError(t, p.Ingest(ctx, doc.ID))

	final, err := docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DocumentFailed, final.Status)
	require.NotEmpty(t, final.ErrorMessage)
}
