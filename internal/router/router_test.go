package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/llmclient"
	"github.com/docbrain/docbrain/internal/prompts"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(_ context.Context, _ []llmclient.Message, _ llmclient.CompletionOptions) (llmclient.Completion, error) {
	f.calls++
	if f.err != nil {
		return llmclient.Completion{}, f.err
	}
	return llmclient.Completion{Content: f.response}, nil
}

func (f *fakeLLM) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

type fakeRag struct {
	called bool
	answer RagAnswer
	err    error
}

func (f *fakeRag) Answer(_ context.Context, _ RagRequest) (RagAnswer, error) {
	f.called = true
	return f.answer, f.err
}

type fakeTag struct {
	called bool
	answer TagAnswer
	err    error
}

func (f *fakeTag) Answer(_ context.Context, _ string, _ string) (TagAnswer, error) {
	f.called = true
	return f.answer, f.err
}

func newTestRegistry(t *testing.T) *prompts.Registry {
	t.Helper()
	reg, err := prompts.NewRegistry()
	require.NoError(t, err)
	return reg
}

func TestRoute_CuratedMatchAboveThresholdShortCircuits(t *testing.T) {
	embedder := embedclient.NewDeterministic(0, true, 1)
	index := vectorindex.New(vectorindex.NewMemoryBackend(embedder.Dimension()))
	ctx := context.Background()

	vec, err := embedder.EmbedBatch(ctx, []string{"what is your refund policy"})
	require.NoError(t, err)
	require.NoError(t, index.Upsert(ctx, "kb1", domain.VectorRecord{
		ID:     "question:q1",
		Vector: vec[0],
		Metadata: map[string]string{
			"record_type": "question",
			"question_id": "q1",
			"question":    "what is your refund policy",
			"answer":      "Refunds are available within 30 days.",
			"answer_type": "DIRECT",
		},
	}))

	llm := &fakeLLM{response: "Refunds within 30 days of purchase."}
	rag := &fakeRag{}
	r := New(embedder, index, llm, newTestRegistry(t), rag, nil)

	ans := r.Route(ctx, Request{Query: "what is your refund policy", KnowledgeBaseID: "kb1", TopK: 5})
	assert.Equal(t, "questions", ans.Service)
	assert.Equal(t, "Refunds within 30 days of purchase.", ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "q1", ans.Sources[0].QuestionID)
	assert.False(t, rag.called)
}

func TestRoute_NoCuratedMatchFallsThroughToRag(t *testing.T) {
	embedder := embedclient.NewDeterministic(0, true, 1)
	index := vectorindex.New(vectorindex.NewMemoryBackend(embedder.Dimension()))
	ctx := context.Background()

	llm := &fakeLLM{response: `{"service": "rag", "confidence": 0.9, "reasoning": "unstructured question"}`}
	rag := &fakeRag{answer: RagAnswer{Answer: "the rag answer", Sources: []domain.Source{{DocumentID: "d1"}}}}
	r := New(embedder, index, llm, newTestRegistry(t), rag, nil)

	ans := r.Route(ctx, Request{Query: "explain the architecture", KnowledgeBaseID: "kb1", TopK: 5})
	assert.Equal(t, "rag", ans.Service)
	assert.Equal(t, "the rag answer", ans.Answer)
	assert.True(t, rag.called)
}

func TestRoute_ForcedServiceSkipsClassification(t *testing.T) {
	embedder := embedclient.NewDeterministic(0, true, 1)
	index := vectorindex.New(vectorindex.NewMemoryBackend(embedder.Dimension()))
	ctx := context.Background()

	llm := &fakeLLM{response: "should not be parsed as tag/rag JSON"}
	tag := &fakeTag{answer: TagAnswer{Answer: "42 rows", SQL: "SELECT 1"}}
	r := New(embedder, index, llm, newTestRegistry(t), &fakeRag{}, tag)

	ans := r.Route(ctx, Request{Query: "how many rows", KnowledgeBaseID: "kb1", ForcedService: "tag"})
	assert.Equal(t, "tag", ans.Service)
	assert.True(t, tag.called)
	assert.Equal(t, "tag", ans.Routing.Service)
	assert.False(t, ans.Routing.Fallback)
}

func TestClassify_LowConfidenceTagDowngradesToRag(t *testing.T) {
	embedder := embedclient.NewDeterministic(0, true, 1)
	index := vectorindex.New(vectorindex.NewMemoryBackend(embedder.Dimension()))
	llm := &fakeLLM{response: `{"service": "tag", "confidence": 0.4, "reasoning": "maybe structured"}`}
	r := New(embedder, index, llm, newTestRegistry(t), &fakeRag{}, nil)

	service, routing, err := r.classify(context.Background(), Request{Query: "q", KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.Equal(t, "rag", service)
	assert.True(t, routing.Fallback)
}

func TestClassify_ParseFailureDefaultsToRagWithFallback(t *testing.T) {
	embedder := embedclient.NewDeterministic(0, true, 1)
	index := vectorindex.New(vectorindex.NewMemoryBackend(embedder.Dimension()))
	llm := &fakeLLM{response: "not json at all"}
	r := New(embedder, index, llm, newTestRegistry(t), &fakeRag{}, nil)

	service, routing, err := r.classify(context.Background(), Request{Query: "q", KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.Equal(t, "rag", service)
	assert.True(t, routing.Fallback)
}

func TestParseClassification_RepairsTrailingCommaAndExtraneousText(t *testing.T) {
	text := "Sure, here you go:\n{\"service\": \"tag\", \"confidence\": 0.81, \"reasoning\": \"structured ask\",}\nthanks"
	c, ok := parseClassification(text)
	require.True(t, ok)
	assert.Equal(t, "tag", c.Service)
	assert.InDelta(t, 0.81, c.Confidence, 0.0001)
}

func TestRoute_RagErrorProducesDegradedAnswerNotPanic(t *testing.T) {
	embedder := embedclient.NewDeterministic(0, true, 1)
	index := vectorindex.New(vectorindex.NewMemoryBackend(embedder.Dimension()))
	llm := &fakeLLM{response: `{"service": "rag", "confidence": 0.9, "reasoning": "x"}`}
	rag := &fakeRag{err: assertError{"boom"}}
	r := New(embedder, index, llm, newTestRegistry(t), rag, nil)

	ans := r.Route(context.Background(), Request{Query: "q", KnowledgeBaseID: "kb1"})
	assert.Equal(t, "unknown", ans.Service)
	assert.Empty(t, ans.Sources)
	assert.True(t, ans.Routing.Fallback)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
