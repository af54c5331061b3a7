package pipeline

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lead-scoring/internal/model"
	"github.com/sells-group/lead-scoring/internal/scoring"
	"github.com/sells-group/lead-scoring/internal/store"
	"github.com/sells-group/lead-scoring/pkg/zoho"
)

// --- CRM Mock ---

type mockCRM struct {
	mock.Mock
}

func (m *mockCRM) FetchAllContacts(ctx context.Context, refreshToken string) ([]model.Record, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Record), args.Error(1)
}

func (m *mockCRM) FetchAllLeads(ctx context.Context, refreshToken string) ([]model.Record, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Record), args.Error(1)
}

func (m *mockCRM) GetLead(ctx context.Context, refreshToken, leadID string) (model.Record, error) {
	args := m.Called(ctx, refreshToken, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.Record), args.Error(1)
}

func (m *mockCRM) UpdateLeadScore(ctx context.Context, refreshToken string, update zoho.LeadScoreUpdate) (map[string]any, error) {
	args := m.Called(ctx, refreshToken, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *mockCRM) FetchOrgVariable(ctx context.Context, name, refreshToken string) (string, bool, error) {
	args := m.Called(ctx, name, refreshToken)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockCRM) FetchOrgID(ctx context.Context, refreshToken string) (string, error) {
	args := m.Called(ctx, refreshToken)
	return args.String(0), args.Error(1)
}

// --- Model Mocks ---

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (scoring.Embedding, error) {
	args := m.Called(ctx, text)
	if emb, ok := args.Get(0).(scoring.Embedding); ok {
		return emb, args.Error(1)
	}
	vec, _ := args.Get(0).([]float32)
	return scoring.Embedding{Vector: vec}, args.Error(1)
}

type mockChat struct {
	mock.Mock
}

func (m *mockChat) Complete(ctx context.Context, system, prompt string) (scoring.Completion, error) {
	args := m.Called(ctx, system, prompt)
	if c, ok := args.Get(0).(scoring.Completion); ok {
		return c, args.Error(1)
	}
	return scoring.Completion{Text: args.String(0)}, args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	store.Nop
	mock.Mock
}

func (m *mockStore) RecordScore(ctx context.Context, rec *model.ScoreRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) CreateIngestRun(ctx context.Context, orgID, indexName string) (*model.IngestRun, error) {
	args := m.Called(ctx, orgID, indexName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IngestRun), args.Error(1)
}

func (m *mockStore) FinishIngestRun(ctx context.Context, runID string, count int, runErr error) error {
	args := m.Called(ctx, runID, count, runErr)
	return args.Error(0)
}

// containsArg matches a string argument containing substr.
func containsArg(substr string) any {
	return mock.MatchedBy(func(s string) bool { return strings.Contains(s, substr) })
}
