package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-scoring/internal/model"
)

// DefaultRescoreConcurrency bounds parallel lead scoring during a rescore.
const DefaultRescoreConcurrency = 4

// RescoreSummary reports a bulk rescore.
type RescoreSummary struct {
	OrgID  string `json:"org_id"`
	Total  int    `json:"total"`
	Scored int    `json:"scored"`
	Failed int    `json:"failed"`
}

// Rescorer re-runs the scoring flow over every lead of an organization.
type Rescorer struct {
	scorer      *Scorer
	concurrency int
}

// NewRescorer creates a Rescorer backed by scorer.
func NewRescorer(scorer *Scorer, concurrency int) *Rescorer {
	if concurrency <= 0 {
		concurrency = DefaultRescoreConcurrency
	}
	return &Rescorer{scorer: scorer, concurrency: concurrency}
}

// Run fetches all leads and scores them. Individual lead failures are
// logged and counted; only org resolution and the lead fetch are fatal.
func (r *Rescorer) Run(ctx context.Context, refreshToken string) (*RescoreSummary, error) {
	org, err := r.scorer.prepare(ctx, refreshToken)
	if err != nil {
		return nil, eris.Wrap(err, "rescore: prepare")
	}
	leads, err := r.scorer.crm.FetchAllLeads(ctx, refreshToken)
	if err != nil {
		return nil, eris.Wrap(err, "rescore: fetch leads")
	}

	log := zap.L().With(zap.String("org_id", org.orgID))
	log.Info("rescore: starting", zap.Int("leads", len(leads)), zap.Int("concurrency", r.concurrency))

	var scored, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, lead := range leads {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			payload := model.WebhookPayload{Data: []model.Record{lead}, RefreshToken: refreshToken}
			if _, err := r.scorer.scoreLead(gctx, org, payload); err != nil {
				failed.Add(1)
				log.Warn("rescore: lead failed", zap.String("lead_id", lead.ID()), zap.Error(err))
				return nil
			}
			scored.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "rescore: wait")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "rescore: cancelled")
	}

	summary := &RescoreSummary{
		OrgID:  org.orgID,
		Total:  len(leads),
		Scored: int(scored.Load()),
		Failed: int(failed.Load()),
	}
	log.Info("rescore: complete", zap.Int("scored", summary.Scored), zap.Int("failed", summary.Failed))
	return summary, nil
}
