package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/claimsiq/claimsiq/internal/rag/embedding"
)

// MemoryStore keeps records in memory. It serves tests and offline runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*Record // model -> chunk id -> record
	dims    map[string]int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]*Record),
		dims:    make(map[string]int),
		now:     time.Now,
	}
}

func (m *MemoryStore) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range records {
		r := records[i]
		if r.Model == "" || r.ChunkID == "" {
			return fmt.Errorf("record %d: model and chunk id are required", i)
		}
		if d, ok := m.dims[r.Model]; ok && d != len(r.Embedding) {
			return fmt.Errorf("%w: model %s stores %d, got %d", ErrDimensionMismatch, r.Model, d, len(r.Embedding))
		}
		byID := m.records[r.Model]
		if byID == nil {
			byID = make(map[string]*Record)
			m.records[r.Model] = byID
			m.dims[r.Model] = len(r.Embedding)
		}
		r.Embedding = append([]float32(nil), r.Embedding...)
		if r.IndexedAt.IsZero() {
			r.IndexedAt = m.now()
		}
		byID[r.ChunkID] = &r
	}
	return nil
}

// Search ranks the filtered records with embedding.TopK. Ties keep chunk id
// order.
func (m *MemoryStore) Search(_ context.Context, vector []float32, q Query) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.dims[q.Model]; ok && d != len(vector) {
		return nil, fmt.Errorf("%w: model %s stores %d, got %d", ErrDimensionMismatch, q.Model, d, len(vector))
	}
	var candidates []*Record
	for _, r := range m.records[q.Model] {
		if q.Filters.match(r) {
			candidates = append(candidates, r)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ChunkID < candidates[j].ChunkID })
	corpus := make([][]float32, len(candidates))
	for i, r := range candidates {
		corpus[i] = r.Embedding
	}

	var hits []Hit
	for _, res := range embedding.TopK(vector, corpus, q.limit()) {
		if res.Similarity < q.MinScore {
			break
		}
		hits = append(hits, Hit{Record: *candidates[res.Index], Score: res.Similarity})
	}
	return hits, nil
}

func (m *MemoryStore) IndexedNotes(_ context.Context, model string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	for _, r := range m.records[model] {
		out[r.NoteID] = r.ContentHash
	}
	return out, nil
}

func (m *MemoryStore) DeleteNotes(_ context.Context, model string, noteIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(noteIDs))
	for _, id := range noteIDs {
		drop[id] = true
	}
	for id, r := range m.records[model] {
		if drop[r.NoteID] {
			delete(m.records[model], id)
		}
	}
	if len(m.records[model]) == 0 {
		delete(m.records, model)
		delete(m.dims, model)
	}
	return nil
}

func (m *MemoryStore) Count(_ context.Context, model string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[model]), nil
}
