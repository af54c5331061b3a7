package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-scoring/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lead_scores (
	id             TEXT PRIMARY KEY,
	org_id         TEXT NOT NULL,
	lead_id        TEXT NOT NULL,
	score          INTEGER NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	neighbors      INTEGER NOT NULL DEFAULT 0,
	fallback       INTEGER NOT NULL DEFAULT 0,
	cost_usd       REAL NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id          TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL,
	index_name  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	count       INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_lead_scores_org ON lead_scores(org_id, created_at);
CREATE INDEX IF NOT EXISTS idx_lead_scores_lead ON lead_scores(lead_id);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordScore(ctx context.Context, rec *model.ScoreRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_scores (id, org_id, lead_id, score, reason, recommendation, neighbors, fallback, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrgID, rec.LeadID, rec.Score, rec.Reason, rec.Recommendation, rec.Neighbors, rec.Fallback, rec.CostUSD, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert score for lead %s", rec.LeadID)
}

func (s *SQLiteStore) ListScores(ctx context.Context, filter ScoreFilter) ([]model.ScoreRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.OrgID != "" {
		where = append(where, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.LeadID != "" {
		where = append(where, "lead_id = ?")
		args = append(args, filter.LeadID)
	}

	q := `SELECT id, org_id, lead_id, score, reason, recommendation, neighbors, fallback, cost_usd, created_at FROM lead_scores`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ScoreRecord
	for rows.Next() {
		var r model.ScoreRecord
		if err := rows.Scan(&r.ID, &r.OrgID, &r.LeadID, &r.Score, &r.Reason, &r.Recommendation, &r.Neighbors, &r.Fallback, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate scores")
}

func (s *SQLiteStore) CreateIngestRun(ctx context.Context, orgID, indexName string) (*model.IngestRun, error) {
	run := &model.IngestRun{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		IndexName: indexName,
		Status:    model.IngestStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, org_id, index_name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.OrgID, run.IndexName, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert ingest run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishIngestRun(ctx context.Context, runID string, count int, runErr error) error {
	status, msg := finishStatus(runErr)
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, count = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), count, msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish ingest run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: ingest run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) ListIngestRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, index_name, status, count, error, started_at, finished_at
		 FROM ingest_runs ORDER BY started_at DESC, id LIMIT ?`,
		limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ingest runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.IngestRun
	for rows.Next() {
		var (
			r        model.IngestRun
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.OrgID, &r.IndexName, &status, &r.Count, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ingest run")
		}
		r.Status = model.IngestStatus(status)
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate ingest runs")
}
