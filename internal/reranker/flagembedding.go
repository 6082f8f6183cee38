package reranker

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/docbrain/docbrain/internal/embedclient"
)

// flagEmbeddingReranker re-scores candidates by cosine similarity between
// the query embedding and each candidate's embedding, using whichever
// embedclient.Embedder is already configured for ingestion — an
// embedding-distance reranker needing no dedicated reranking model or
// endpoint, per spec §4.5's "flag-embedding" variant.
type flagEmbeddingReranker struct {
	embedder embedclient.Embedder
}

func newFlagEmbeddingReranker(embedder embedclient.Embedder) *flagEmbeddingReranker {
	return &flagEmbeddingReranker{embedder: embedder}
}

func (r *flagEmbeddingReranker) Rerank(ctx context.Context, query string, items []Item) ([]Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	texts := make([]string, 0, len(items)+1)
	texts = append(texts, query)
	for _, it := range items {
		texts = append(texts, it.Text)
	}
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed rerank candidates: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	queryVec := vecs[0]

	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Score = cosine(queryVec, vecs[i+1])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
