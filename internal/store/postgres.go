package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scoring/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lead_scores (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id         TEXT NOT NULL,
	lead_id        TEXT NOT NULL,
	score          INTEGER NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	neighbors      INTEGER NOT NULL DEFAULT 0,
	fallback       BOOLEAN NOT NULL DEFAULT false,
	cost_usd       DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id      TEXT NOT NULL,
	index_name  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	count       INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_lead_scores_org ON lead_scores(org_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_lead_scores_lead ON lead_scores(lead_id);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) RecordScore(ctx context.Context, rec *model.ScoreRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO lead_scores (id, org_id, lead_id, score, reason, recommendation, neighbors, fallback, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.OrgID, rec.LeadID, rec.Score, rec.Reason, rec.Recommendation, rec.Neighbors, rec.Fallback, rec.CostUSD, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert score for lead %s", rec.LeadID)
}

func (s *PostgresStore) ListScores(ctx context.Context, filter ScoreFilter) ([]model.ScoreRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.OrgID != "" {
		args = append(args, filter.OrgID)
		where = append(where, fmt.Sprintf("org_id = $%d", len(args)))
	}
	if filter.LeadID != "" {
		args = append(args, filter.LeadID)
		where = append(where, fmt.Sprintf("lead_id = $%d", len(args)))
	}

	q := `SELECT id, org_id, lead_id, score, reason, recommendation, neighbors, fallback, cost_usd, created_at FROM lead_scores`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limitOrDefault(filter.Limit))
	q += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var out []model.ScoreRecord
	for rows.Next() {
		var r model.ScoreRecord
		if err := rows.Scan(&r.ID, &r.OrgID, &r.LeadID, &r.Score, &r.Reason, &r.Recommendation, &r.Neighbors, &r.Fallback, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate scores")
}

func (s *PostgresStore) CreateIngestRun(ctx context.Context, orgID, indexName string) (*model.IngestRun, error) {
	run := &model.IngestRun{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		IndexName: indexName,
		Status:    model.IngestStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, org_id, index_name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.OrgID, run.IndexName, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert ingest run")
	}
	return run, nil
}

func (s *PostgresStore) FinishIngestRun(ctx context.Context, runID string, count int, runErr error) error {
	status, msg := finishStatus(runErr)
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, count = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), count, msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish ingest run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: ingest run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListIngestRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, index_name, status, count, error, started_at, finished_at
		 FROM ingest_runs ORDER BY started_at DESC, id LIMIT $1`,
		limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ingest runs")
	}
	defer rows.Close()

	var out []model.IngestRun
	for rows.Next() {
		var (
			r      model.IngestRun
			status string
		)
		if err := rows.Scan(&r.ID, &r.OrgID, &r.IndexName, &status, &r.Count, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ingest run")
		}
		r.Status = model.IngestStatus(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate ingest runs")
}
