package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for leadsScoredTotal.
const (
	outcomeScored  = "scored"
	outcomeTesting = "testing"
	outcomeFailed  = "failed"
)

var (
	contactsIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leadscore",
			Name:      "contacts_ingested_total",
			Help:      "Contacts embedded and upserted into an organization index.",
		},
	)

	contactsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leadscore",
			Name:      "contacts_skipped_total",
			Help:      "Contacts skipped during ingestion because they carry no id.",
		},
	)

	ingestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscore",
			Name:      "ingest_runs_total",
			Help:      "Bulk ingestion runs by final status.",
		},
		[]string{"status"},
	)

	leadsScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscore",
			Name:      "leads_scored_total",
			Help:      "Lead scoring attempts by outcome.",
		},
		[]string{"outcome"},
	)

	scoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "leadscore",
			Name:      "lead_score",
			Help:      "Distribution of scores written to the CRM.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		},
	)
)
