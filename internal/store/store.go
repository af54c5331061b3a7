// Package store persists the score ledger and ingestion run history.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scoring/internal/model"
)

// ScoreFilter narrows ListScores.
type ScoreFilter struct {
	OrgID  string `json:"org_id,omitempty"`
	LeadID string `json:"lead_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 50

// Store records every score written to the CRM and every ingestion run.
type Store interface {
	// Scores
	RecordScore(ctx context.Context, rec *model.ScoreRecord) error
	ListScores(ctx context.Context, filter ScoreFilter) ([]model.ScoreRecord, error)

	// Ingestion runs
	CreateIngestRun(ctx context.Context, orgID, indexName string) (*model.IngestRun, error)
	FinishIngestRun(ctx context.Context, runID string, count int, runErr error) error
	ListIngestRuns(ctx context.Context, limit int) ([]model.IngestRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}

func finishStatus(runErr error) (model.IngestStatus, string) {
	if runErr != nil {
		return model.IngestStatusFailed, runErr.Error()
	}
	return model.IngestStatusComplete, ""
}

// Open returns the Store for the named driver ("sqlite", "postgres", or "none")
// and runs its migration.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
