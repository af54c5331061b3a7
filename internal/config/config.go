package config

import (
	"errors"
	"io/fs"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lead-scoring/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Zoho      ZohoConfig      `yaml:"zoho" mapstructure:"zoho"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Vector    VectorConfig    `yaml:"vector" mapstructure:"vector"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Rescore   RescoreConfig   `yaml:"rescore" mapstructure:"rescore"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Pricing   cost.Rates      `yaml:"pricing" mapstructure:"pricing"`
}

// ZohoConfig holds CRM OAuth and API settings.
type ZohoConfig struct {
	APIDomain           string  `yaml:"api_domain" mapstructure:"api_domain"`
	TokenURL            string  `yaml:"token_url" mapstructure:"token_url"`
	ClientID            string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret        string  `yaml:"client_secret" mapstructure:"client_secret"`
	RateLimitRPS        float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	PerPage             int     `yaml:"per_page" mapstructure:"per_page"`
	MaxPages            int     `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FieldsVariable      string  `yaml:"fields_variable" mapstructure:"fields_variable"`
	PromptVariable      string  `yaml:"prompt_variable" mapstructure:"prompt_variable"`
	ScoreField          string  `yaml:"score_field" mapstructure:"score_field"`
	ReasonField         string  `yaml:"reason_field" mapstructure:"reason_field"`
	RecommendationField string  `yaml:"recommendation_field" mapstructure:"recommendation_field"`
}

var crmVersionSuffix = regexp.MustCompile(`/crm/v\d+$`)

// BaseURL returns the CRM API root for the configured domain. A domain
// that already names a /crm/v<N> root is used as is.
func (z ZohoConfig) BaseURL() string {
	domain := strings.TrimRight(z.APIDomain, "/")
	if crmVersionSuffix.MatchString(domain) {
		return domain
	}
	return domain + "/crm/v2"
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	EmbeddingModel string `yaml:"embedding_model" mapstructure:"embedding_model"`
	ChatModel      string `yaml:"chat_model" mapstructure:"chat_model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// VectorConfig selects and configures the embedding index backend.
type VectorConfig struct {
	Driver    string         `yaml:"driver" mapstructure:"driver"`
	BaseIndex string         `yaml:"base_index" mapstructure:"base_index"`
	Dimension int            `yaml:"dimension" mapstructure:"dimension"`
	TopK      int            `yaml:"top_k" mapstructure:"top_k"`
	Pinecone  PineconeConfig `yaml:"pinecone" mapstructure:"pinecone"`
	Weaviate  WeaviateConfig `yaml:"weaviate" mapstructure:"weaviate"`
}

// PineconeConfig holds Pinecone serverless settings.
type PineconeConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Cloud      string `yaml:"cloud" mapstructure:"cloud"`
	Region     string `yaml:"region" mapstructure:"region"`
	ControlURL string `yaml:"control_url" mapstructure:"control_url"`
}

// WeaviateConfig holds Weaviate connection settings.
type WeaviateConfig struct {
	Host   string `yaml:"host" mapstructure:"host"`
	Scheme string `yaml:"scheme" mapstructure:"scheme"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// ScoringConfig configures the scoring flow.
type ScoringConfig struct {
	Provider           string `yaml:"provider" mapstructure:"provider"`
	Testing            bool   `yaml:"testing" mapstructure:"testing"`
	EmbedSanitizedLead bool   `yaml:"embed_sanitized_lead" mapstructure:"embed_sanitized_lead"`
}

// RetryConfig holds the retry policy per upstream kind.
type RetryConfig struct {
	CRM       RetryPolicyConfig `yaml:"crm" mapstructure:"crm"`
	Vector    RetryPolicyConfig `yaml:"vector" mapstructure:"vector"`
	Embedding RetryPolicyConfig `yaml:"embedding" mapstructure:"embedding"`
	Chat      RetryPolicyConfig `yaml:"chat" mapstructure:"chat"`
	Breaker   BreakerConfig     `yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig configures the per-upstream circuit breakers. A
// FailureThreshold of 0 disables them.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// RetryPolicyConfig bounds retries for one upstream. MaxAttempts of 1
// disables retries.
type RetryPolicyConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// StoreConfig configures the score ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RescoreConfig configures bulk rescoring.
type RescoreConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps keys to the unprefixed variable names older deployments set.
var legacyEnv = map[string]string{
	"zoho.api_domain":           "ZOHO_DOMAIN",
	"zoho.token_url":            "ZOHO_TOKEN_URL",
	"zoho.client_id":            "ZOHO_CLIENT_ID",
	"zoho.client_secret":        "ZOHO_CLIENT_SECRET",
	"zoho.score_field":          "SCORE_FIELD_NAME",
	"zoho.reason_field":         "JUSTIFICATION_FIELD_NAME",
	"zoho.recommendation_field": "RECOMMENDATION_FIELD_NAME",
	"openai.key":                "OPENAI_API_KEY",
	"anthropic.key":             "ANTHROPIC_API_KEY",
	"vector.base_index":         "PINECONE_INDEX",
	"vector.pinecone.api_key":   "PINECONE_API_KEY",
	"vector.pinecone.region":    "PINECONE_REG",
	"scoring.testing":           "TESTING",
}

// Load reads configuration from .env, an optional config.yaml, and the
// environment. LEADSCORE_-prefixed variables take precedence over the
// legacy unprefixed names.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "LEADSCORE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("zoho.api_domain", "https://www.zohoapis.com")
	v.SetDefault("zoho.token_url", "https://accounts.zoho.com/oauth/v2/token")
	v.SetDefault("zoho.client_id", "")
	v.SetDefault("zoho.client_secret", "")
	v.SetDefault("zoho.rate_limit_rps", 5.0)
	v.SetDefault("zoho.per_page", 200)
	v.SetDefault("zoho.max_pages", 0)
	v.SetDefault("zoho.timeout_secs", 30)
	v.SetDefault("zoho.fields_variable", "aileadscore__AI_Weight")
	v.SetDefault("zoho.prompt_variable", "aileadscore__Prompt")
	v.SetDefault("zoho.score_field", "AI_Score")
	v.SetDefault("zoho.reason_field", "AI_Justification")
	v.SetDefault("zoho.recommendation_field", "AI_Recommendation")

	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")

	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)

	v.SetDefault("vector.driver", "pinecone")
	v.SetDefault("vector.base_index", "contact-scoring")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.top_k", 8)
	v.SetDefault("vector.pinecone.api_key", "")
	v.SetDefault("vector.pinecone.cloud", "aws")
	v.SetDefault("vector.pinecone.region", "us-east-1")
	v.SetDefault("vector.pinecone.control_url", "https://api.pinecone.io")
	v.SetDefault("vector.weaviate.host", "")
	v.SetDefault("vector.weaviate.scheme", "http")
	v.SetDefault("vector.weaviate.api_key", "")

	v.SetDefault("scoring.provider", "openai")
	v.SetDefault("scoring.testing", false)
	v.SetDefault("scoring.embed_sanitized_lead", false)

	for _, kind := range []string{"crm", "vector", "embedding", "chat"} {
		v.SetDefault("retry."+kind+".max_attempts", 3)
		v.SetDefault("retry."+kind+".initial_backoff_ms", 500)
		v.SetDefault("retry."+kind+".max_backoff_ms", 10000)
	}
	v.SetDefault("retry.breaker.failure_threshold", 5)
	v.SetDefault("retry.breaker.cooldown_secs", 30)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadscore.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)

	v.SetDefault("rescore.concurrency", 4)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
