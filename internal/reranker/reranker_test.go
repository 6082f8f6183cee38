package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/embedclient"
)

func TestNoopReranker_PreservesOrder(t *testing.T) {
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	out, err := NoopReranker{}.Rerank(context.Background(), "q", items)
	require.NoError(t, err)
	assert.Equal(t, items, out)
}

func TestHTTPReranker_ReordersByRelevanceScore(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := rerankResponse{Results: []rerankResult{
			{Index: 0, RelevanceScore: 0.1},
			{Index: 1, RelevanceScore: 0.9},
			{Index: 2, RelevanceScore: 0.5},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	r := newHTTPReranker(ts.URL, "", "test-model", false)
	items := []Item{{ID: "low", Text: "x"}, {ID: "high", Text: "y"}, {ID: "mid", Text: "z"}}
	out, err := r.Rerank(context.Background(), "query", items)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "high", out[0].ID)
	assert.Equal(t, "mid", out[1].ID)
	assert.Equal(t, "low", out[2].ID)
}

func TestHTTPReranker_SetsBearerHeaderForRemoteVariant(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(rerankResponse{})
	}))
	defer ts.Close()

	r := newHTTPReranker(ts.URL, "secret", "", true)
	_, err := r.Rerank(context.Background(), "q", []Item{{ID: "a", Text: "x"}})
	require.NoError(t, err)
}

func TestHTTPReranker_NonOKStatusIsAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	r := newHTTPReranker(ts.URL, "", "", false)
	_, err := r.Rerank(context.Background(), "q", []Item{{ID: "a", Text: "x"}})
	assert.Error(t, err)
}

func TestFlagEmbeddingReranker_ScoresByCosineSimilarityToQuery(t *testing.T) {
	embedder := embedclient.NewDeterministic(32, true, 42)
	r := newFlagEmbeddingReranker(embedder)

	items := []Item{
		{ID: "same", Text: "apples and oranges"},
		{ID: "other", Text: "quantum field theory"},
	}
	out, err := r.Rerank(context.Background(), "apples and oranges", items)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "same", out[0].ID, "identical text to the query should score highest")
}

func TestApplyCachedOrder_AppendsUnseenItemsAtEnd(t *testing.T) {
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	out := applyCachedOrder(items, []string{"b", "a"})
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
	assert.Equal(t, "c", out[2].ID, "item absent from cached order must still appear, never dropped")
}

func TestCacheKey_IsOrderIndependentOverCandidateSet(t *testing.T) {
	a := []Item{{ID: "x"}, {ID: "y"}}
	b := []Item{{ID: "y"}, {ID: "x"}}
	assert.Equal(t, cacheKey("q", a), cacheKey("q", b))
}

func TestCacheKey_DiffersByQuery(t *testing.T) {
	items := []Item{{ID: "x"}}
	assert.NotEqual(t, cacheKey("q1", items), cacheKey("q2", items))
}
