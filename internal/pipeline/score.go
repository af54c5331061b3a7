package pipeline

import (
	"context"
	"encoding/json"
	"hash/fnv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/cost"
	"github.com/sells-group/lead-scoring/internal/metadata"
	"github.com/sells-group/lead-scoring/internal/model"
	"github.com/sells-group/lead-scoring/internal/scoring"
	"github.com/sells-group/lead-scoring/internal/store"
	"github.com/sells-group/lead-scoring/internal/vectorindex"
	"github.com/sells-group/lead-scoring/pkg/zoho"
)

const (
	// DefaultTopK is the number of historical contacts retrieved per lead.
	DefaultTopK = 8

	// DefaultPromptVariable is the org variable holding custom instructions.
	DefaultPromptVariable = "aileadscore__Prompt"

	// TestingReason is written instead of a model judgment in testing mode.
	TestingReason = "TESTING mode: dummy score"

	// TestingRecommendation accompanies TestingReason.
	TestingRecommendation = "TESTING mode: no recommendation"

	testingMinScore = 55
	testingMaxScore = 90
)

// ScorerOptions tunes a Scorer.
type ScorerOptions struct {
	BaseIndex      string
	TopK           int
	PromptVariable string

	// Testing skips retrieval and the model and writes a dummy score.
	Testing bool

	// EmbedSanitizedLead embeds the sanitized lead instead of the raw one,
	// matching how contacts are embedded at ingestion.
	EmbedSanitizedLead bool
}

// Scorer runs the retrieval-augmented scoring flow for one lead.
type Scorer struct {
	crm    zoho.Client
	index  vectorindex.Index
	engine *scoring.Engine
	store  store.Store
	opts   ScorerOptions
}

// NewScorer creates a Scorer. A nil store disables the score ledger.
func NewScorer(crm zoho.Client, index vectorindex.Index, engine *scoring.Engine, st store.Store, opts ScorerOptions) *Scorer {
	if st == nil {
		st = store.Nop{}
	}
	if opts.BaseIndex == "" {
		opts.BaseIndex = vectorindex.DefaultBaseName
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.PromptVariable == "" {
		opts.PromptVariable = DefaultPromptVariable
	}
	return &Scorer{crm: crm, index: index, engine: engine, store: st, opts: opts}
}

// orgContext is what every lead of one organization shares.
type orgContext struct {
	orgID        string
	instructions string
}

// Run scores the lead in payload and writes the result back to the CRM.
func (s *Scorer) Run(ctx context.Context, payload model.WebhookPayload) (*model.ScoreOutcome, error) {
	org, err := s.prepare(ctx, payload.RefreshToken)
	if err != nil {
		leadsScoredTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, err
	}
	return s.scoreLead(ctx, org, payload)
}

func (s *Scorer) prepare(ctx context.Context, refreshToken string) (orgContext, error) {
	instructions, _, err := s.crm.FetchOrgVariable(ctx, s.opts.PromptVariable, refreshToken)
	if err != nil {
		return orgContext{}, eris.Wrap(err, "score: fetch org prompt")
	}
	orgID, err := s.crm.FetchOrgID(ctx, refreshToken)
	if err != nil {
		return orgContext{}, eris.Wrap(err, "score: resolve org")
	}
	return orgContext{orgID: orgID, instructions: instructions}, nil
}

func (s *Scorer) scoreLead(ctx context.Context, org orgContext, payload model.WebhookPayload) (*model.ScoreOutcome, error) {
	lead := payload.Lead()
	leadID := lead.ID()
	log := zap.L().With(zap.String("org_id", org.orgID), zap.String("lead_id", leadID))

	var (
		result    model.ScoreResult
		neighbors int
		outcome   = outcomeScored
		meter     = &cost.Meter{}
		err       error
	)
	if s.opts.Testing {
		result = model.ScoreResult{
			Score:          DummyScore(leadID),
			Reason:         TestingReason,
			Recommendation: TestingRecommendation,
		}
		outcome = outcomeTesting
	} else {
		result, neighbors, err = s.judge(cost.WithMeter(ctx, meter), log, org, lead, payload)
		if err != nil {
			leadsScoredTotal.WithLabelValues(outcomeFailed).Inc()
			return nil, err
		}
	}

	update, err := s.crm.UpdateLeadScore(ctx, payload.RefreshToken, zoho.LeadScoreUpdate{
		LeadID:         leadID,
		Score:          result.Score,
		Reason:         result.Reason,
		Recommendation: result.Recommendation,
	})
	if err != nil {
		leadsScoredTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, eris.Wrapf(err, "score: update lead %s", leadID)
	}

	leadsScoredTotal.WithLabelValues(outcome).Inc()
	scoreDistribution.Observe(float64(result.Score))
	log.Info("score: lead scored",
		zap.Int("score", result.Score),
		zap.Int("neighbors", neighbors),
		zap.Bool("fallback", result.Fallback),
		zap.Bool("testing", s.opts.Testing),
		zap.Float64("cost_usd", meter.USD()),
	)

	rec := &model.ScoreRecord{
		OrgID:          org.orgID,
		LeadID:         leadID,
		Score:          result.Score,
		Reason:         result.Reason,
		Recommendation: result.Recommendation,
		Neighbors:      neighbors,
		Fallback:       result.Fallback,
		CostUSD:        meter.USD(),
	}
	if err := s.store.RecordScore(ctx, rec); err != nil {
		log.Warn("score: failed to record score", zap.Error(err))
	}

	return &model.ScoreOutcome{
		Status:         "success",
		LeadID:         leadID,
		Score:          result.Score,
		Reason:         result.Reason,
		Recommendation: result.Recommendation,
		CRMUpdate:      update,
	}, nil
}

// judge embeds the lead, retrieves similar contacts, and asks the model.
func (s *Scorer) judge(ctx context.Context, log *zap.Logger, org orgContext, lead model.Record, payload model.WebhookPayload) (model.ScoreResult, int, error) {
	text, err := s.leadEmbeddingText(lead)
	if err != nil {
		return model.ScoreResult{}, 0, err
	}
	vec, err := s.engine.Embed(ctx, text)
	if err != nil {
		return model.ScoreResult{}, 0, eris.Wrap(err, "score: embed lead")
	}

	matches, err := s.index.Query(ctx, org.orgID, vec, s.opts.TopK)
	if err != nil {
		return model.ScoreResult{}, 0, eris.Wrap(err, "score: query index")
	}
	neighbors := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		neighbors = append(neighbors, map[string]any(m.Metadata))
	}
	log.Debug("score: retrieved neighbors", zap.Int("neighbors", len(neighbors)))

	prompt := scoring.BuildPrompt(scoring.PromptInput{
		Lead:             lead,
		Neighbors:        neighbors,
		NumberOfCalls:    payload.NumberOfCalls,
		NumberOfMeetings: payload.NumberOfMeetings,
		Emails:           payload.EmailsText(),
		Notes:            payload.NotesText(),
		LeadStatus:       lead.String("Lead_Status"),
		OrgInstructions:  org.instructions,
	})

	result, err := s.engine.Score(ctx, prompt)
	if err != nil {
		return model.ScoreResult{}, 0, eris.Wrap(err, "score: judge lead")
	}
	return result, len(neighbors), nil
}

func (s *Scorer) leadEmbeddingText(lead model.Record) (string, error) {
	if s.opts.EmbedSanitizedLead {
		text, err := metadata.JSON(metadata.Sanitize(lead))
		return text, eris.Wrap(err, "score: encode sanitized lead")
	}
	b, err := json.Marshal(lead)
	if err != nil {
		return "", eris.Wrap(err, "score: encode lead")
	}
	return string(b), nil
}

// DummyScore derives a stable score in [55, 90] from the lead id.
func DummyScore(leadID string) int {
	h := fnv.New32a()
	h.Write([]byte(leadID)) //nolint:errcheck
	span := uint32(testingMaxScore - testingMinScore + 1)
	return testingMinScore + int(h.Sum32()%span)
}
