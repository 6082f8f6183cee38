// Package vectorindex is the VectorIndex collaborator: a namespaced nearest-
// neighbor store the ingestion pipeline upserts chunk/question/summary
// vectors into and the retriever queries. It wraps a qdrant-go-client backend
// for production and an in-memory backend for tests and the zero-dependency
// quickstart path, matching the teacher's VectorStore split between
// qdrant_vector.go and memory_vector.go.
package vectorindex

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/docbrain/docbrain/internal/domain"
	"github.com/docbrain/docbrain/internal/errs"
)

// errgroupWithLimit returns an errgroup bounded to limit concurrent Go
// calls, derived from ctx so the first error cancels in-flight siblings.
func errgroupWithLimit(ctx context.Context, limit int) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	return g, gctx
}

// sortResultsDescending orders results by score, highest first.
func sortResultsDescending(results []Result) {
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

// batchSize is the number of points grouped into a single backend Upsert
// call; ingestion of a large document fans out over ceil(N/batchSize)
// concurrent batches bounded by an errgroup.
const batchSize = 100

// maxConcurrentBatches bounds the number of in-flight batch upserts per call
// to Index, independent of how many points were passed in.
const maxConcurrentBatches = 4

// Result is one namespaced nearest-neighbor hit.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Backend is the minimal operation set a concrete vector database must
// support. Namespacing (multi-tenant isolation) is layered on top by Index,
// which prefixes every backend id/filter with the namespace so a single
// Qdrant collection (or in-memory map) can safely serve many knowledge
// bases.
type Backend interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	// DeleteByFilter removes every point matching filter. Returns
	// errs.ErrVectorFilterDeleteUnsupported if the backend cannot do this
	// natively; Index falls back to query-then-delete-by-id in that case.
	DeleteByFilter(ctx context.Context, filter map[string]string) error
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error)
	Dimension() int
	Close() error
}

// Index is the namespace-aware VectorIndex the rest of the system depends
// on. A namespace corresponds to one knowledge base; all ids and filters
// passed to the backend are prefixed/augmented with it so cross-namespace
// leakage is a backend-agnostic guarantee, not something each backend must
// reimplement.
type Index struct {
	backend Backend
}

// New wraps backend in a namespace-isolating Index.
func New(backend Backend) *Index {
	return &Index{backend: backend}
}

func namespacedID(namespace, id string) string {
	return namespace + ":" + id
}

func withNamespace(namespace string, filter map[string]string) map[string]string {
	out := make(map[string]string, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	out["_namespace"] = namespace
	return out
}

// Upsert writes or replaces one VectorRecord under namespace. The record id
// is expected to already be deterministic per spec (e.g.
// "{document_id}_{chunk_index}_{size_class}") so repeated ingestion of
// unchanged content is a true no-op replace, not a duplicate insert.
func (ix *Index) Upsert(ctx context.Context, namespace string, rec domain.VectorRecord) error {
	if len(rec.Vector) != ix.backend.Dimension() {
		return fmt.Errorf("vector dimension %d does not match index dimension %d: %w", len(rec.Vector), ix.backend.Dimension(), errs.ErrEmbeddingFailed)
	}
	md := withNamespace(namespace, rec.Metadata)
	if err := ix.backend.Upsert(ctx, namespacedID(namespace, rec.ID), rec.Vector, md); err != nil {
		return fmt.Errorf("upsert vector %s: %w", rec.ID, errs.ErrVectorIndexTransient)
	}
	return nil
}

// UpsertBatch upserts many records under namespace, fanning batches of up to
// batchSize records out across up to maxConcurrentBatches concurrent
// backend calls. The first error cancels the remaining batches.
func (ix *Index) UpsertBatch(ctx context.Context, namespace string, recs []domain.VectorRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for start := 0; start < len(recs); start += batchSize {
		end := start + batchSize
		if end > len(recs) {
			end = len(recs)
		}
		batch := recs[start:end]
		g.Go(func() error {
			for _, rec := range batch {
				if err := ix.Upsert(gctx, namespace, rec); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Delete removes one record by id from namespace.
func (ix *Index) Delete(ctx context.Context, namespace, id string) error {
	if err := ix.backend.Delete(ctx, namespacedID(namespace, id)); err != nil {
		return fmt.Errorf("delete vector %s: %w", id, errs.ErrVectorIndexTransient)
	}
	return nil
}

// DeleteByDocument removes every vector tagged with documentID in namespace.
// If the backend cannot filter-delete natively, it falls back to
// query-then-delete-by-id using a random probe vector to enumerate matches,
// a page at a time until a page comes back short — the path every backend
// wrapped in ConstrainedBackend takes.
func (ix *Index) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	filter := withNamespace(namespace, map[string]string{"document_id": documentID})
	err := ix.backend.DeleteByFilter(ctx, filter)
	if err == nil {
		return nil
	}
	return ix.deleteByFilterFallback(ctx, filter)
}

func (ix *Index) deleteByFilterFallback(ctx context.Context, filter map[string]string) error {
	probe, err := randomUnitVector(ix.backend.Dimension())
	if err != nil {
		return fmt.Errorf("generate probe vector: %w", err)
	}
	const pageSize = 1000
	for {
		hits, err := ix.backend.Search(ctx, probe, pageSize, filter)
		if err != nil {
			return fmt.Errorf("enumerate for filter-delete: %w", errs.ErrVectorIndexTransient)
		}
		for _, hit := range hits {
			if err := ix.backend.Delete(ctx, hit.ID); err != nil {
				return fmt.Errorf("delete vector %s: %w", hit.ID, errs.ErrVectorIndexTransient)
			}
		}
		if len(hits) < pageSize {
			return nil
		}
	}
}

// Query returns the k nearest namespaced vectors to query, optionally
// further restricted by filter (e.g. {"size_class": "MEDIUM"}).
func (ix *Index) Query(ctx context.Context, namespace string, query []float32, k int, filter map[string]string) ([]Result, error) {
	results, err := ix.backend.Search(ctx, query, k, withNamespace(namespace, filter))
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", errs.ErrVectorIndexTransient)
	}
	for i := range results {
		results[i].ID = stripNamespace(namespace, results[i].ID)
	}
	return results, nil
}

// QueryAny implements the "$in" predicate spec §6 requires on top of a
// Backend that only supports equality filters: it runs one equality-
// filtered Query per value of filterKey/filterValues concurrently (bounded
// by maxConcurrentBatches, grounded on the teacher's ParallelCandidates
// fan-out shape) and unions the hits, deduplicating by id and keeping each
// id's best score. An empty filterValues runs the unrestricted query.
func (ix *Index) QueryAny(ctx context.Context, namespace string, query []float32, k int, filterKey string, filterValues []string, extra map[string]string) ([]Result, error) {
	if len(filterValues) == 0 {
		return ix.Query(ctx, namespace, query, k, extra)
	}

	type batchResult struct {
		results []Result
		err     error
	}
	out := make([]batchResult, len(filterValues))
	g, gctx := errgroupWithLimit(ctx, maxConcurrentBatches)
	for i, v := range filterValues {
		i, v := i, v
		g.Go(func() error {
			filter := make(map[string]string, len(extra)+1)
			for fk, fv := range extra {
				filter[fk] = fv
			}
			filter[filterKey] = v
			res, err := ix.Query(gctx, namespace, query, k, filter)
			out[i] = batchResult{results: res, err: err}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := make(map[string]Result)
	for _, b := range out {
		for _, r := range b.results {
			if existing, ok := best[r.ID]; !ok || r.Score > existing.Score {
				best[r.ID] = r
			}
		}
	}
	merged := make([]Result, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sortResultsDescending(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func stripNamespace(namespace, id string) string {
	prefix := namespace + ":"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		return id[len(prefix):]
	}
	return id
}

// RandomSample returns up to k arbitrary vectors from namespace, approximated
// (per spec §4.4) by querying against a random unit vector rather than
// requiring every backend to support a true random-sample primitive.
func (ix *Index) RandomSample(ctx context.Context, namespace string, k int) ([]Result, error) {
	probe, err := randomUnitVector(ix.backend.Dimension())
	if err != nil {
		return nil, fmt.Errorf("generate sample probe: %w", err)
	}
	return ix.Query(ctx, namespace, probe, k, nil)
}

func (ix *Index) Close() error { return ix.backend.Close() }

func randomUnitVector(dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	v := make([]float32, dim)
	buf := make([]byte, 4)
	var sumSquares float64
	for i := range v {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		// Map a uniformly random uint32 into [-1, 1).
		u := binary.BigEndian.Uint32(buf)
		f := float32(int32(u))/float32(1<<31) - 0
		v[i] = f
		sumSquares += float64(f) * float64(f)
	}
	norm := float32(math.Sqrt(sumSquares))
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}
