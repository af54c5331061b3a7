package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-scoring/internal/model"
)

func TestFormatScoresList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	scores := []model.ScoreRecord{
		{OrgID: "org1", LeadID: "L1", Score: 82, Reason: "engaged with two tours", Neighbors: 8, CostUSD: 0.0031, CreatedAt: now},
		{OrgID: "org1", LeadID: "L2", Score: 50, Reason: "AI parsing fallback", Fallback: true, CreatedAt: now.Add(-time.Hour)},
	}

	var buf bytes.Buffer
	formatScoresList(&buf, scores)

	output := buf.String()
	assert.Contains(t, output, "SCORE")
	assert.Contains(t, output, "2026-06-15 10:30")
	assert.Contains(t, output, "L1")
	assert.Contains(t, output, "82")
	assert.Contains(t, output, "engaged with two tours")
	assert.Contains(t, output, "yes")
	assert.Contains(t, output, "$0.0031")
}

func TestFormatIngestRuns(t *testing.T) {
	start := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	finished := start.Add(90 * time.Second)
	runs := []model.IngestRun{
		{
			ID: "abc12345-6789-0000-0000-000000000000", OrgID: "org1", IndexName: "contact-scoring-org1",
			Status: model.IngestStatusComplete, Count: 120, StartedAt: start, FinishedAt: &finished,
		},
		{
			ID: "def12345", OrgID: "org2", IndexName: "contact-scoring-org2",
			Status: model.IngestStatusRunning, StartedAt: start,
		},
	}

	var buf bytes.Buffer
	formatIngestRuns(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "1m30s")
	assert.Contains(t, output, "running")
	assert.Equal(t, 4, strings.Count(output, "\n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncateID("abc"))
	assert.Equal(t, "12345678", truncateID("1234567890"))
}
