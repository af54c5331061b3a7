package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-scoring/internal/metadata"
)

func TestIndexName(t *testing.T) {
	tests := []struct {
		base, org, want string
	}{
		{"contact-scoring", "60001234", "contact-scoring-60001234"},
		{"", "42", "contact-scoring-42"},
		{"Contact_Scoring", "Org 7", "contact-scoring-org-7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IndexName(tt.base, tt.org))
	}
}

func vec(vals ...float32) []float32 {
	out := make([]float32, 4)
	copy(out, vals)
	return out
}

func TestMemory_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("contact-scoring", 4)
	require.NoError(t, m.EnsureIndex(ctx, "org1"))
	require.NoError(t, m.EnsureIndex(ctx, "org1"))

	require.NoError(t, m.Upsert(ctx, "org1", Record{ID: "a", Vector: vec(1, 0, 0, 0), Metadata: metadata.Metadata{"Lead_Status": "Approved"}}))
	require.NoError(t, m.Upsert(ctx, "org1", Record{ID: "b", Vector: vec(0, 1, 0, 0)}))
	require.NoError(t, m.Upsert(ctx, "org1", Record{ID: "c", Vector: vec(1, 1, 0, 0)}))

	got, err := m.Query(ctx, "org1", vec(1, 0, 0, 0), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, "Approved", got[0].Metadata["Lead_Status"])
	assert.Equal(t, "c", got[1].ID)
}

func TestMemory_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("", 4)
	require.NoError(t, m.EnsureIndex(ctx, "org1"))

	require.NoError(t, m.Upsert(ctx, "org1", Record{ID: "a", Vector: vec(1), Metadata: metadata.Metadata{"v": "1"}}))
	require.NoError(t, m.Upsert(ctx, "org1", Record{ID: "a", Vector: vec(1), Metadata: metadata.Metadata{"v": "2"}}))
	assert.Equal(t, 1, m.Len("org1"))

	got, err := m.Query(ctx, "org1", vec(1), 8)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].Metadata["v"])
}

func TestMemory_OrganizationsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("", 4)
	require.NoError(t, m.EnsureIndex(ctx, "org1"))
	require.NoError(t, m.EnsureIndex(ctx, "org2"))
	require.NoError(t, m.Upsert(ctx, "org1", Record{ID: "a", Vector: vec(1)}))

	got, err := m.Query(ctx, "org2", vec(1), 8)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory_MissingIndex(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("", 4)

	got, err := m.Query(ctx, "nope", vec(1), 8)
	require.NoError(t, err)
	assert.Empty(t, got)

	err = m.Upsert(ctx, "nope", Record{ID: "a", Vector: vec(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMemory_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("", 4)
	require.NoError(t, m.EnsureIndex(ctx, "org1"))

	err := m.Upsert(ctx, "org1", Record{ID: "a", Vector: []float32{1, 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 0}))
}
