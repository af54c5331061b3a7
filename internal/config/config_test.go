package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into an empty temp dir so no config.yaml or .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://www.zohoapis.com", cfg.Zoho.APIDomain)
	assert.Equal(t, "https://www.zohoapis.com/crm/v2", cfg.Zoho.BaseURL())
	assert.Equal(t, "https://accounts.zoho.com/oauth/v2/token", cfg.Zoho.TokenURL)
	assert.Equal(t, 200, cfg.Zoho.PerPage)
	assert.Equal(t, 30, cfg.Zoho.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.Zoho.RateLimitRPS, 0.001)
	assert.Equal(t, "aileadscore__AI_Weight", cfg.Zoho.FieldsVariable)
	assert.Equal(t, "aileadscore__Prompt", cfg.Zoho.PromptVariable)
	assert.Equal(t, "AI_Score", cfg.Zoho.ScoreField)
	assert.Equal(t, "AI_Justification", cfg.Zoho.ReasonField)
	assert.Equal(t, "AI_Recommendation", cfg.Zoho.RecommendationField)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.ChatModel)
	assert.Equal(t, int64(512), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "pinecone", cfg.Vector.Driver)
	assert.Equal(t, "contact-scoring", cfg.Vector.BaseIndex)
	assert.Equal(t, 1536, cfg.Vector.Dimension)
	assert.Equal(t, 8, cfg.Vector.TopK)
	assert.Equal(t, "openai", cfg.Scoring.Provider)
	assert.False(t, cfg.Scoring.Testing)
	assert.False(t, cfg.Scoring.EmbedSanitizedLead)
	assert.Equal(t, 3, cfg.Retry.CRM.MaxAttempts)
	assert.Equal(t, 500, cfg.Retry.Chat.InitialBackoffMs)
	assert.Equal(t, 10000, cfg.Retry.Embedding.MaxBackoffMs)
	assert.Equal(t, 5, cfg.Retry.Breaker.FailureThreshold)
	assert.Equal(t, 30, cfg.Retry.Breaker.CooldownSecs)
	assert.Empty(t, cfg.Pricing)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Rescore.Concurrency)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
vector:
  driver: weaviate
  weaviate:
    host: localhost:8081
retry:
  crm:
    max_attempts: 1
  breaker:
    failure_threshold: 0
pricing:
  gpt-4o-mini:
    input: 0.2
    output: 0.8
store:
  driver: none
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "weaviate", cfg.Vector.Driver)
	assert.Equal(t, "localhost:8081", cfg.Vector.Weaviate.Host)
	assert.Equal(t, 1, cfg.Retry.CRM.MaxAttempts)
	assert.Equal(t, 3, cfg.Retry.Chat.MaxAttempts)
	assert.Equal(t, 0, cfg.Retry.Breaker.FailureThreshold)
	assert.Equal(t, 30, cfg.Retry.Breaker.CooldownSecs)
	require.Contains(t, cfg.Pricing, "gpt-4o-mini")
	assert.InDelta(t, 0.2, cfg.Pricing["gpt-4o-mini"].Input, 1e-9)
	assert.InDelta(t, 0.8, cfg.Pricing["gpt-4o-mini"].Output, 1e-9)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))
	t.Setenv("LEADSCORE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LEADSCORE_SERVER_PORT", "3000")
	t.Setenv("LEADSCORE_SCORING_TESTING", "true")
	t.Setenv("LEADSCORE_ZOHO_CLIENT_ID", "cid")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.True(t, cfg.Scoring.Testing)
	assert.Equal(t, "cid", cfg.Zoho.ClientID)
}

func TestLoadLegacyEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("PINECONE_INDEX", "legacy-index")
	t.Setenv("SCORE_FIELD_NAME", "Custom_Score")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-legacy", cfg.OpenAI.Key)
	assert.Equal(t, "legacy-index", cfg.Vector.BaseIndex)
	assert.Equal(t, "Custom_Score", cfg.Zoho.ScoreField)
}

func TestLoadPrefixedEnvWinsOverLegacy(t *testing.T) {
	chdirTemp(t)
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("LEADSCORE_OPENAI_KEY", "sk-new")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-new", cfg.OpenAI.Key)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEADSCORE_ZOHO_CLIENT_SECRET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LEADSCORE_ZOHO_CLIENT_SECRET") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Zoho.ClientSecret)
}

func TestZohoConfig_BaseURL(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"https://www.zohoapis.com", "https://www.zohoapis.com/crm/v2"},
		{"https://www.zohoapis.eu/", "https://www.zohoapis.eu/crm/v2"},
		{"https://www.zohoapis.com/crm/v2", "https://www.zohoapis.com/crm/v2"},
		{"https://www.zohoapis.com/crm/v6/", "https://www.zohoapis.com/crm/v6"},
		{"https://www.zohoapis.in/crm/v10", "https://www.zohoapis.in/crm/v10"},
		{"https://crm.example.com/crm", "https://crm.example.com/crm/crm/v2"},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, ZohoConfig{APIDomain: tt.domain}.BaseURL())
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
