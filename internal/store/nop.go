package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/sells-group/lead-scoring/internal/model"
)

// Nop is a Store that discards everything. It backs driver "none".
type Nop struct{}

var _ Store = Nop{}

func (Nop) RecordScore(context.Context, *model.ScoreRecord) error { return nil }

func (Nop) ListScores(context.Context, ScoreFilter) ([]model.ScoreRecord, error) { return nil, nil }

func (Nop) CreateIngestRun(_ context.Context, orgID, indexName string) (*model.IngestRun, error) {
	return &model.IngestRun{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		IndexName: indexName,
		Status:    model.IngestStatusRunning,
	}, nil
}

func (Nop) FinishIngestRun(context.Context, string, int, error) error { return nil }

func (Nop) ListIngestRuns(context.Context, int) ([]model.IngestRun, error) { return nil, nil }

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }
