// Package embedclient is the EmbeddingClient collaborator: it turns chunk
// text into vectors. Grounded on the teacher's internal/rag/embedder package
// (the Embedder interface, its deterministic hash-based test double, and its
// single-flight rate-limited HTTP client), generalized so the production
// path delegates to whichever internal/llmclient.Provider is configured
// instead of hand-rolling its own HTTP call — the spec routes embeddings
// through the same provider abstraction as chat completions.
package embedclient

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/docbrain/docbrain/internal/errs"
)

// defaultDimension matches spec.md's default embedding dimensionality.
const defaultDimension = 768

// Embedder converts text to embedding vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// Provider is the subset of internal/llmclient.Provider this package
// depends on. Declaring it locally (rather than importing llmclient)
// keeps embedclient free of a dependency on the chat-completion package;
// any llmclient.Provider implementation satisfies this interface
// structurally.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// providerEmbedder delegates to a configured chat/embedding Provider,
// batching requests in fixed-size groups the way the teacher's
// clientEmbedder serialized one-chunk-per-call to avoid overwhelming
// llama.cpp-style backends — generalized here to batches of batchSize (64)
// texts per call since most hosted embedding APIs accept large batches safely.
type providerEmbedder struct {
	provider  Provider
	name      string
	dim       int
	batchSize int
}

// batchSize bounds how many texts are sent to the provider per call.
const batchSize = 64

// NewProviderEmbedder wraps provider, reporting name/dim as configured.
func NewProviderEmbedder(provider Provider, name string, dim int) Embedder {
	if dim <= 0 {
		dim = defaultDimension
	}
	return &providerEmbedder{provider: provider, name: name, dim: dim, batchSize: batchSize}
}

func (p *providerEmbedder) Name() string   { return p.name }
func (p *providerEmbedder) Dimension() int { return p.dim }

func (p *providerEmbedder) Ping(ctx context.Context) error {
	_, err := p.provider.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", errs.ErrEmbeddingFailed)
	}
	return nil
}

func (p *providerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	for i := 0; i < len(texts); i += p.batchSize {
		end := i + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.provider.Embed(ctx, texts[i:end])
		if err != nil {
			return out, fmt.Errorf("embed batch %d-%d: %w", i, end, errs.ErrEmbeddingFailed)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// deterministicEmbedder is a lightweight, reproducible embedder for tests
// and local quickstarts: it hashes byte 3-grams into a fixed-size vector
// and L2-normalizes, grounded verbatim on the teacher's
// deterministicEmbedder/NewDeterministic.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	seed      uint64
}

// NewDeterministic constructs a deterministic embedder with the given
// dimension. If normalize is true, vectors are L2-normalized.
func NewDeterministic(dim int, normalize bool, seed uint64) Embedder {
	if dim <= 0 {
		dim = defaultDimension
	}
	return &deterministicEmbedder{dim: dim, normalize: normalize, seed: seed}
}

func (d *deterministicEmbedder) Name() string             { return "deterministic" }
func (d *deterministicEmbedder) Dimension() int            { return d.dim }
func (d *deterministicEmbedder) Ping(_ context.Context) error { return nil }

func (d *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	if len(b) < 3 {
		addGram(d.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.seed, b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
