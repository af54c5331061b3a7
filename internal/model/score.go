package model

import "time"

// ScoreResult is the parsed judgment of the language model.
type ScoreResult struct {
	Score          int    `json:"score"`
	Reason         string `json:"reason"`
	Recommendation string `json:"recommendation"`

	// Fallback is set when the model output could not be fully parsed and
	// defaults were substituted.
	Fallback bool `json:"-"`
}

// ScoreOutcome is returned to the webhook caller after a lead is scored and
// written back to the CRM.
type ScoreOutcome struct {
	Status         string         `json:"status"`
	LeadID         string         `json:"lead_id"`
	Score          int            `json:"score"`
	Reason         string         `json:"reason"`
	Recommendation string         `json:"recommendation"`
	CRMUpdate      map[string]any `json:"zoho_update"`
}

// IngestSummary is the result of a bulk contact ingestion.
type IngestSummary struct {
	Status string `json:"status"`
	OrgID  string `json:"org_id,omitempty"`
	Index  string `json:"index,omitempty"`
	Count  int    `json:"count"`

	// CostUSD is the estimated embedding spend of the run.
	CostUSD float64 `json:"cost_usd"`
}

// ScoreRecord is one entry in the score ledger.
type ScoreRecord struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"org_id"`
	LeadID         string    `json:"lead_id"`
	Score          int       `json:"score"`
	Reason         string    `json:"reason"`
	Recommendation string    `json:"recommendation"`
	Neighbors      int       `json:"neighbors"`
	Fallback       bool      `json:"fallback"`
	CostUSD        float64   `json:"cost_usd"`
	CreatedAt      time.Time `json:"created_at"`
}

// IngestStatus is the state of an ingestion run.
type IngestStatus string

const (
	IngestStatusRunning  IngestStatus = "running"
	IngestStatusComplete IngestStatus = "complete"
	IngestStatusFailed   IngestStatus = "failed"
)

// IngestRun is a ledger entry for one bulk ingestion.
type IngestRun struct {
	ID         string       `json:"id"`
	OrgID      string       `json:"org_id"`
	IndexName  string       `json:"index_name"`
	Status     IngestStatus `json:"status"`
	Count      int          `json:"count"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}
