package question

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/embedclient"
	"github.com/docbrain/docbrain/internal/store"
	"github.com/docbrain/docbrain/internal/vectorindex"
)

func newTestPipeline(t *testing.T) (*Pipeline, store.QuestionStore) {
	t.Helper()
	s := store.NewMemory()
	backend := vectorindex.NewMemoryBackend(2)
	return &Pipeline{
		Questions: s.Questions,
		Embedder:  embedclient.NewDeterministic(2, true, 1),
		Index:     vectorindex.New(backend),
	}, s.Questions
}

func TestIngestCompletesPendingQuestion(t *testing.T) {
	p, questions := newTestPipeline(t)
	ctx := context.Background()

	q, err := questions.Insert(ctx, domain.Question{
		ID:              "q1",
		KnowledgeBaseID: "kb1",
		QuestionText:    "What is the refund policy?",
		AnswerText:      "Refunds are processed within 30 days.",
		AnswerKind:      domain.AnswerDirect,
		Status:          domain.QuestionPending,
	})
	require.NoError(t, err)

	require.NoError(t, p.Ingest(ctx, q.ID))

	final, err := questions.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, domain.QuestionCompleted, final.Status)
}

func TestIngestEmbedsQuestionAndAnswerAndCarriesMetadata(t *testing.T) {
	p, questions := newTestPipeline(t)
	ctx := context.Background()

	q, err := questions.Insert(ctx, domain.Question{
		ID:              "q1",
		KnowledgeBaseID: "kb1",
		QuestionText:    "What is the refund policy?",
		AnswerText:      "Refunds are processed within 30 days.",
		AnswerKind:      domain.AnswerDirect,
		UserID:          "user-1",
		Status:          domain.QuestionPending,
	})
	require.NoError(t, err)
	require.NoError(t, p.Ingest(ctx, q.ID))

	wantVec, err := p.Embedder.EmbedBatch(ctx, []string{"Question: What is the refund policy?\nAnswer: Refunds are processed within 30 days."})
	require.NoError(t, err)

	hits, err := p.Index.Query(ctx, "kb1", wantVec[0], 1, map[string]string{"record_type": recordTypeQuestion})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hit := hits[0]
	require.Equal(t, "question:q1", hit.ID)
	require.InDelta(t, 1.0, hit.Score, 1e-6)
	require.Equal(t, "user-1", hit.Metadata["user_id"])
	require.Equal(t, "kb1", hit.Metadata["knowledge_base_id"])
	require.Equal(t, "q1", hit.Metadata["question_id"])
}

func TestIngestIdempotentOnAlreadyCompleted(t *testing.T) {
	p, questions := newTestPipeline(t)
	ctx := context.Background()

	q, err := questions.Insert(ctx, domain.Question{
		ID:              "q1",
		KnowledgeBaseID: "kb1",
		QuestionText:    "What is the refund policy?",
		AnswerText:      "Refunds are processed within 30 days.",
		Status:          domain.QuestionPending,
	})
	require.NoError(t, err)
	require.NoError(t, p.Ingest(ctx, q.ID))

	before, err := questions.Get(ctx, q.ID)
	require.NoError(t, err)

	require.NoError(t, p.Ingest(ctx, q.ID))

	after, err := questions.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestIngestContinuesWhenAlreadyIngesting(t *testing.T) {
	p, questions := newTestPipeline(t)
	ctx := context.Background()

	q, err := questions.Insert(ctx, domain.Question{
		ID:              "q1",
		KnowledgeBaseID: "kb1",
		QuestionText:    "What is the refund policy?",
		AnswerText:      "Refunds are processed within 30 days.",
		Status:          domain.QuestionPending,
	})
	require.NoError(t, err)

	_, err = questions.UpdateStatus(ctx, q.ID, domain.QuestionPending, domain.QuestionIngesting, "")
	require.NoError(t, err)

	require.NoError(t, p.Ingest(ctx, q.ID))

	final, err := questions.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, domain.QuestionCompleted, final.Status)
}
