package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Memory is an in-process Index using brute-force cosine similarity.
type Memory struct {
	base string
	dim  int

	mu      sync.RWMutex
	indexes map[string]map[string]Record
}

// NewMemory creates an empty in-memory index set.
func NewMemory(base string, dim int) *Memory {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Memory{
		base:    base,
		dim:     dim,
		indexes: make(map[string]map[string]Record),
	}
}

func (m *Memory) EnsureIndex(_ context.Context, orgID string) error {
	name := IndexName(m.base, orgID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; !ok {
		m.indexes[name] = make(map[string]Record)
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, orgID string, rec Record) error {
	if len(rec.Vector) != m.dim {
		return eris.Errorf("vectorindex: memory: vector dimension %d, want %d", len(rec.Vector), m.dim)
	}
	name := IndexName(m.base, orgID)

	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[name]
	if !ok {
		return eris.Errorf("vectorindex: memory: index %s not found", name)
	}
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	idx[rec.ID] = Record{ID: rec.ID, Vector: vec, Metadata: rec.Metadata}
	return nil
}

func (m *Memory) Query(_ context.Context, orgID string, vec []float32, topK int) ([]Neighbor, error) {
	name := IndexName(m.base, orgID)

	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indexes[name]
	if !ok || topK <= 0 {
		return []Neighbor{}, nil
	}

	out := make([]Neighbor, 0, len(idx))
	for _, rec := range idx {
		md := make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			md[k] = v
		}
		out = append(out, Neighbor{
			ID:       rec.ID,
			Score:    cosineSimilarity(vec, rec.Vector),
			Metadata: md,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Len reports the number of records stored for an organization.
func (m *Memory) Len(orgID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indexes[IndexName(m.base, orgID)])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
