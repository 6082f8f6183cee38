package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/docbrain/docbrain/internal/errs"
)

// MemoryBackend is a RWMutex/map-backed Backend for tests and the
// zero-dependency quickstart path, grounded on the teacher's memoryVector.
// It supports filter-delete natively (DeleteByDocument's fallback path is
// reachable instead through the ConstrainedBackend wrapper below).
type MemoryBackend struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]memPoint
}

type memPoint struct {
	vector   []float32
	metadata map[string]string
}

// NewMemoryBackend builds an empty in-memory Backend of the given dimension.
func NewMemoryBackend(dimension int) *MemoryBackend {
	return &MemoryBackend{dimension: dimension, points: make(map[string]memPoint)}
}

func (m *MemoryBackend) Upsert(_ context.Context, id string, vector []float32, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[id] = memPoint{vector: append([]float32(nil), vector...), metadata: copyMD(metadata)}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.points, id)
	return nil
}

func (m *MemoryBackend) DeleteByFilter(_ context.Context, filter map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if matchesFilter(p.metadata, filter) {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryBackend) Search(_ context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	qnorm := norm(vector)
	out := make([]Result, 0, len(m.points))
	for id, p := range m.points {
		if !matchesFilter(p.metadata, filter) {
			continue
		}
		out = append(out, Result{ID: id, Score: cosine(vector, p.vector, qnorm), Metadata: copyMD(p.metadata)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MemoryBackend) Dimension() int { return m.dimension }

func (m *MemoryBackend) Close() error { return nil }

func matchesFilter(md, filter map[string]string) bool {
	for k, v := range filter {
		if md[k] != v {
			return false
		}
	}
	return true
}

func copyMD(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = norm(a)
	}
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}

// ConstrainedBackend wraps another Backend but always reports
// errs.ErrVectorFilterDeleteUnsupported from DeleteByFilter, modeling a
// backend tier that cannot filter-delete natively. It lets the fallback
// path in Index.DeleteByDocument be exercised without a real constrained
// vector database; this package has no tests of its own that use it.
type ConstrainedBackend struct {
	Backend
}

func (c ConstrainedBackend) DeleteByFilter(context.Context, map[string]string) error {
	return errs.ErrVectorFilterDeleteUnsupported
}
