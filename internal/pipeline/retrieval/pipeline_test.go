package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/prompts"
	"github.com/docbrain/docbrain/internal/router"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

type fakeRag struct{ answer router.RagAnswer }

func (f *fakeRag) Answer(_ context.Context, _ router.RagRequest) (router.RagAnswer, error) {
	return f.answer, nil
}

type fakeLLM struct{ response string }

func (f fakeLLM) Complete(_ context.Context, _ []llmclient.Message, _ llmclient.CompletionOptions) (llmclient.Completion, error) {
	return llmclient.Completion{Content: f.response}, nil
}

func (f fakeLLM) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func newTestPipeline(t *testing.T, ragAnswer router.RagAnswer) (*Pipeline, store.MessageStore) {
	t.Helper()
	reg, err := prompts.NewRegistry()
	require.NoError(t, err)
	embedder := embedclient.NewDeterministic(2, true, 1)
	index := vectorindex.New(vectorindex.NewMemoryBackend(2))
	llm := fakeLLM{response: `{"service": "rag", "confidence": 0.9, "reasoning": "unstructured"}`}
	r := router.New(embedder, index, llm, reg, &fakeRag{answer: ragAnswer}, nil)
	s := store.NewMemory()
	return &Pipeline{Messages: s.Messages, Router: r}, s.Messages
}

func TestAnswerWritesRouterResultOntoMessage(t *testing.T) {
	p, messages := newTestPipeline(t, router.RagAnswer{Answer: "the answer", Sources: []domain.Source{{DocumentID: "d1"}}})
	ctx := context.Background()

	msg, err := messages.Insert(ctx, domain.Message{ID: "m1", ConversationID: "c1", Status: domain.MessageReceived})
	require.NoError(t, err)

	err = p.Answer(ctx, Payload{MessageID: msg.ID, KnowledgeBaseID: "kb1", Query: "explain the thing"})
	require.NoError(t, err)

	final, err := messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MessageProcessed, final.Status)
	require.Equal(t, "the answer", final.Content)
	require.Len(t, final.Sources, 1)
}

func TestAnswerReturnsErrorWhenMessageMissing(t *testing.T) {
	p, _ := newTestPipeline(t, router.RagAnswer{Answer: "x"})
	err := p.Answer(context.Background(), Payload{MessageID: "missing", Query: "q"})
	require.Error(t, err)
}
