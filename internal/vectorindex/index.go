// Package vectorindex stores one embedding per CRM contact in a
// per-organization index and answers nearest-neighbor queries.
package vectorindex

import (
	"context"
	"strings"

	"github.com/sells-group/lead-scoring/internal/metadata"
)

const (
	// DefaultBaseName prefixes every organization index name.
	DefaultBaseName = "contact-scoring"

	// DefaultDimension matches text-embedding-3-small.
	DefaultDimension = 1536

	// MetricCosine is the similarity metric used for every index.
	MetricCosine = "cosine"
)

// Record is one stored vector. Upserting an existing ID replaces it.
type Record struct {
	ID       string
	Vector   []float32
	Metadata metadata.Metadata
}

// Neighbor is a query match with its stored metadata and similarity score.
type Neighbor struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Index is a vector store partitioned by organization.
type Index interface {
	// EnsureIndex creates the organization's index when it does not exist.
	EnsureIndex(ctx context.Context, orgID string) error
	// Upsert writes rec into the organization's index.
	Upsert(ctx context.Context, orgID string, rec Record) error
	// Query returns up to topK neighbors of vec. A missing index yields none.
	Query(ctx context.Context, orgID string, vec []float32, topK int) ([]Neighbor, error)
}

// IndexName returns the index name for an organization: "{base}-{orgID}",
// lowercased with characters outside [a-z0-9-] replaced by '-'.
func IndexName(base, orgID string) string {
	if base == "" {
		base = DefaultBaseName
	}
	raw := strings.ToLower(base + "-" + orgID)
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
