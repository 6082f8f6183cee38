package embedclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbrain/docbrain/internal/errs"
)

type fakeProvider struct {
	calls       [][]string
	vectorForText func(string) []float32
	err         error
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorForText(t)
	}
	return out, nil
}

func TestProviderEmbedder_BatchesRequests(t *testing.T) {
	fp := &fakeProvider{vectorForText: func(s string) []float32 { return []float32{float32(len(s))} }}
	e := NewProviderEmbedder(fp, "test-model", 1).(*providerEmbedder)
	e.batchSize = 2

	texts := []string{"a", "bb", "ccc", "dddd", "e"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(4), vecs[3][0])
	assert.Len(t, fp.calls, 3, "5 texts at batch size 2 should issue 3 calls")
}

func TestProviderEmbedder_PropagatesErrorAsEmbeddingFailed(t *testing.T) {
	fp := &fakeProvider{err: assert.AnError}
	e := NewProviderEmbedder(fp, "test-model", 4)
	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrEmbeddingFailed)
}

func TestProviderEmbedder_PingUsesEmbedCall(t *testing.T) {
	fp := &fakeProvider{vectorForText: func(string) []float32 { return []float32{1} }}
	e := NewProviderEmbedder(fp, "m", 1)
	require.NoError(t, e.Ping(context.Background()))
	require.Len(t, fp.calls, 1)
	assert.Equal(t, []string{"ping"}, fp.calls[0])
}

func TestDeterministicEmbedder_IsStableAcrossCalls(t *testing.T) {
	e := NewDeterministic(32, true, 7)
	a, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	b, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 32, e.Dimension())
}

func TestDeterministicEmbedder_DiffersByInputAndSeed(t *testing.T) {
	e1 := NewDeterministic(16, false, 1)
	e2 := NewDeterministic(16, false, 2)

	v1, _ := e1.EmbedBatch(context.Background(), []string{"same text"})
	v2, _ := e2.EmbedBatch(context.Background(), []string{"same text"})
	assert.NotEqual(t, v1, v2, "different seeds should produce different vectors")

	other, _ := e1.EmbedBatch(context.Background(), []string{"different text"})
	assert.NotEqual(t, v1, other)
}

func TestDeterministicEmbedder_NormalizeProducesUnitVectors(t *testing.T) {
	e := NewDeterministic(64, true, 0)
	vecs, err := e.EmbedBatch(context.Background(), []string{"normalize me please"})
	require.NoError(t, err)

	var sum float64
	for _, x := range vecs[0] {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 0.01)
}
