package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/vec/search"
)

// Memory is a process-local index using cosine distance. It backs local runs
// and tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Record)}
}

func (m *Memory) EnsureCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = make(map[string]Record)
	}
	return nil
}

func (m *Memory) Upsert(ctx context.Context, collection string, records []Record) error {
	if err := m.EnsureCollection(ctx, collection); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.collections[collection]
	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %s has no vector", ErrVectorIndex, r.ID)
		}
		col[r.ID] = r
	}
	return nil
}

func (m *Memory) Query(_ context.Context, collection string, vector []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s does not exist", ErrVectorIndex, collection)
	}

	q := search.Float32s(vector)
	qMag := q.Magnitude()
	hits := make([]Hit, 0, len(col))
	for _, r := range col {
		d := cosineDistance(q, qMag, r.Vector)
		hits = append(hits, Hit{ID: r.ID, Text: r.Text, Metadata: r.Metadata, Distance: &d})
	}
	sort.Slice(hits, func(i, j int) bool {
		if *hits[i].Distance == *hits[j].Distance {
			return hits[i].ID < hits[j].ID
		}
		return *hits[i].Distance < *hits[j].Distance
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Memory) DeleteByDoc(ctx context.Context, collection, docUID string) (int, error) {
	before, err := m.Count(ctx, collection)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	for id, r := range m.collections[collection] {
		if MetaString(r.Metadata, MetaDocUID) == docUID {
			delete(m.collections[collection], id)
		}
	}
	m.mu.Unlock()

	after, err := m.Count(ctx, collection)
	if err != nil {
		return 0, err
	}
	return max(0, before-after), nil
}

func (m *Memory) Count(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection]), nil
}

func (m *Memory) CountByDoc(_ context.Context, collection, docUID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.collections[collection] {
		if MetaString(r.Metadata, MetaDocUID) == docUID {
			n++
		}
	}
	return n, nil
}

// CosineDistance returns 1 - cosine similarity, or 1 when either vector is
// zero or the lengths differ.
func CosineDistance(a, b []float32) float64 {
	return cosineDistance(search.Float32s(a), search.Float32s(a).Magnitude(), b)
}

func cosineDistance(q search.Float32s, qMag float32, v []float32) float64 {
	if len(q) != len(v) || len(q) == 0 {
		return 1
	}
	vMag := search.Float32s(v).Magnitude()
	if qMag == 0 || vMag == 0 {
		return 1
	}
	return float64(q.CosineDistance(v))
}
