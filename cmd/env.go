package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/config"
	"github.com/sells-group/lead-scoring/internal/cost"
	"github.com/sells-group/lead-scoring/internal/pipeline"
	"github.com/sells-group/lead-scoring/internal/resilience"
	"github.com/sells-group/lead-scoring/internal/scoring"
	"github.com/sells-group/lead-scoring/internal/store"
	"github.com/sells-group/lead-scoring/internal/vectorindex"
	anthropicpkg "github.com/sells-group/lead-scoring/pkg/anthropic"
	"github.com/sells-group/lead-scoring/pkg/openai"
	"github.com/sells-group/lead-scoring/pkg/pinecone"
	"github.com/sells-group/lead-scoring/pkg/zoho"
)

// appEnv holds the initialized clients and pipelines shared by the
// serve, ingest, score and rescore commands.
type appEnv struct {
	Store    store.Store
	CRM      zoho.Client
	Index    vectorindex.Index
	Engine   *scoring.Engine
	Ingester *pipeline.Ingester
	Scorer   *pipeline.Scorer
	Rescorer *pipeline.Rescorer
	Breakers *resilience.Breakers
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates configuration for mode and wires every component.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	breakers := newBreakers(cfg)
	crm := newCRMClient(cfg, breakers)

	index, err := newIndex(cfg, breakers)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	engine, err := newEngine(cfg, breakers)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	scorer := pipeline.NewScorer(crm, index, engine, st, pipeline.ScorerOptions{
		BaseIndex:          cfg.Vector.BaseIndex,
		TopK:               cfg.Vector.TopK,
		PromptVariable:     cfg.Zoho.PromptVariable,
		Testing:            cfg.Scoring.Testing,
		EmbedSanitizedLead: cfg.Scoring.EmbedSanitizedLead,
	})

	zap.L().Info("environment ready",
		zap.String("mode", mode),
		zap.String("vector_driver", cfg.Vector.Driver),
		zap.String("chat_provider", cfg.Scoring.Provider),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("testing", cfg.Scoring.Testing),
	)

	return &appEnv{
		Store:    st,
		CRM:      crm,
		Index:    index,
		Engine:   engine,
		Ingester: pipeline.NewIngester(crm, index, engine, st, cfg.Vector.BaseIndex),
		Scorer:   scorer,
		Rescorer: pipeline.NewRescorer(scorer, cfg.Rescore.Concurrency),
		Breakers: breakers,
	}, nil
}

// initStore opens and migrates the score ledger.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// newBreakers returns nil when breakers are disabled.
func newBreakers(c *config.Config) *resilience.Breakers {
	if c.Retry.Breaker.FailureThreshold <= 0 {
		return nil
	}
	return resilience.NewBreakers(resilience.BreakerConfig{
		FailureThreshold: c.Retry.Breaker.FailureThreshold,
		Cooldown:         time.Duration(c.Retry.Breaker.CooldownSecs) * time.Second,
	})
}

func retryPolicy(kind resilience.Kind, rc config.RetryPolicyConfig, breakers *resilience.Breakers) resilience.Policy {
	return resilience.FromConfig(kind, rc.MaxAttempts, rc.InitialBackoffMs, rc.MaxBackoffMs).
		WithBreaker(breakers.Get(kind))
}

func newCRMClient(c *config.Config, breakers *resilience.Breakers) zoho.Client {
	timeout := time.Duration(c.Zoho.TimeoutSecs) * time.Second
	tokens := zoho.NewTokenManager(c.Zoho.TokenURL, c.Zoho.ClientID, c.Zoho.ClientSecret,
		zoho.WithTokenHTTPClient(&http.Client{Timeout: timeout}),
	)
	return zoho.NewClient(tokens,
		zoho.WithBaseURL(c.Zoho.BaseURL()),
		zoho.WithTimeout(timeout),
		zoho.WithRateLimit(c.Zoho.RateLimitRPS),
		zoho.WithRetryPolicy(retryPolicy(resilience.KindCRM, c.Retry.CRM, breakers)),
		zoho.WithPerPage(c.Zoho.PerPage),
		zoho.WithMaxPages(c.Zoho.MaxPages),
		zoho.WithFieldsVariable(c.Zoho.FieldsVariable),
		zoho.WithFieldNames(zoho.FieldNames{
			Score:          c.Zoho.ScoreField,
			Reason:         c.Zoho.ReasonField,
			Recommendation: c.Zoho.RecommendationField,
		}),
	)
}

func newIndex(c *config.Config, breakers *resilience.Breakers) (vectorindex.Index, error) {
	vectorRetry := retryPolicy(resilience.KindVector, c.Retry.Vector, breakers)

	switch c.Vector.Driver {
	case "pinecone":
		opts := []pinecone.Option{pinecone.WithRetryPolicy(vectorRetry)}
		if c.Vector.Pinecone.ControlURL != "" {
			opts = append(opts, pinecone.WithControlURL(c.Vector.Pinecone.ControlURL))
		}
		client := pinecone.NewClient(c.Vector.Pinecone.APIKey, opts...)
		return vectorindex.NewPinecone(client, vectorindex.PineconeOptions{
			BaseName:  c.Vector.BaseIndex,
			Dimension: c.Vector.Dimension,
			Cloud:     c.Vector.Pinecone.Cloud,
			Region:    c.Vector.Pinecone.Region,
		}), nil
	case "weaviate":
		idx, err := vectorindex.NewWeaviate(vectorindex.WeaviateOptions{
			Host:     c.Vector.Weaviate.Host,
			Scheme:   c.Vector.Weaviate.Scheme,
			APIKey:   c.Vector.Weaviate.APIKey,
			BaseName: c.Vector.BaseIndex,
			Retry:    vectorRetry,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init weaviate")
		}
		return idx, nil
	case "memory":
		zap.L().Warn("using in-memory vector index; contents are lost on exit")
		return vectorindex.NewMemory(c.Vector.BaseIndex, c.Vector.Dimension), nil
	default:
		return nil, eris.Errorf("unknown vector driver %q", c.Vector.Driver)
	}
}

func newEngine(c *config.Config, breakers *resilience.Breakers) (*scoring.Engine, error) {
	oaOpts := []openai.Option{
		openai.WithEmbeddingModel(c.OpenAI.EmbeddingModel),
		openai.WithChatModel(c.OpenAI.ChatModel),
		openai.WithEmbeddingRetry(retryPolicy(resilience.KindEmbedding, c.Retry.Embedding, breakers)),
		openai.WithChatRetry(retryPolicy(resilience.KindChat, c.Retry.Chat, breakers)),
	}
	if c.OpenAI.BaseURL != "" {
		oaOpts = append(oaOpts, openai.WithBaseURL(c.OpenAI.BaseURL))
	}
	oa := openai.NewClient(c.OpenAI.Key, oaOpts...)
	embedder := scoring.NewOpenAIEmbedder(oa, c.OpenAI.EmbeddingModel)

	var chat scoring.ChatModel
	switch c.Scoring.Provider {
	case "", "openai":
		chat = scoring.NewOpenAIChat(oa, c.OpenAI.ChatModel)
	case "anthropic":
		aOpts := []anthropicpkg.Option{
			anthropicpkg.WithRetryPolicy(retryPolicy(resilience.KindChat, c.Retry.Chat, breakers)),
		}
		if c.Anthropic.BaseURL != "" {
			aOpts = append(aOpts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		chat = scoring.NewAnthropicChat(anthropicpkg.NewClient(c.Anthropic.Key, aOpts...), c.Anthropic.Model, c.Anthropic.MaxTokens)
	default:
		return nil, eris.Errorf("unknown scoring provider %q", c.Scoring.Provider)
	}

	return scoring.NewEngine(embedder, chat, scoring.WithCalculator(cost.NewCalculator(c.Pricing))), nil
}
