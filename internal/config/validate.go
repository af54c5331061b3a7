package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the keys the given command needs are present.
// Modes: serve, ingest, score, rescore, history.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch mode {
	case "serve", "ingest", "score", "rescore":
	case "history":
		require(c.Store.Driver != "none", "store.driver must not be none to read history")
		errs = append(errs, c.storeErrors()...)
		return joinErrors(mode, errs)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	require(c.Zoho.ClientID != "", "zoho.client_id is required")
	require(c.Zoho.ClientSecret != "", "zoho.client_secret is required")
	require(c.Zoho.PerPage > 0 && c.Zoho.PerPage <= 200, "zoho.per_page must be between 1 and 200")

	// Ingestion always embeds; scoring only outside testing mode.
	needsModels := mode == "ingest" || mode == "serve" || !c.Scoring.Testing
	if needsModels {
		require(c.OpenAI.Key != "", "openai.key is required")
	}
	if needsModels && mode != "ingest" {
		switch c.Scoring.Provider {
		case "openai":
		case "anthropic":
			require(c.Anthropic.Key != "", "anthropic.key is required when scoring.provider is anthropic")
		default:
			errs = append(errs, "scoring.provider must be openai or anthropic")
		}
	}

	switch c.Vector.Driver {
	case "pinecone":
		require(c.Vector.Pinecone.APIKey != "", "vector.pinecone.api_key is required")
	case "weaviate":
		require(c.Vector.Weaviate.Host != "", "vector.weaviate.host is required")
	case "memory":
	default:
		errs = append(errs, "vector.driver must be pinecone, weaviate or memory")
	}
	require(c.Vector.Dimension > 0, "vector.dimension must be > 0")
	require(c.Vector.TopK > 0, "vector.top_k must be > 0")

	errs = append(errs, c.storeErrors()...)

	require(c.Retry.Breaker.FailureThreshold >= 0, "retry.breaker.failure_threshold must be >= 0")
	require(c.Retry.Breaker.FailureThreshold == 0 || c.Retry.Breaker.CooldownSecs > 0,
		"retry.breaker.cooldown_secs must be > 0 when the breaker is enabled")
	for model, rate := range c.Pricing {
		require(rate.Input >= 0 && rate.Output >= 0, "pricing."+model+" rates must be >= 0")
	}

	if mode == "serve" {
		require(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be > 0")
	}
	if mode == "rescore" {
		require(c.Rescore.Concurrency >= 1 && c.Rescore.Concurrency <= 32, "rescore.concurrency must be between 1 and 32")
	}

	return joinErrors(mode, errs)
}

func (c *Config) storeErrors() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "none":
	default:
		return []string{"store.driver must be sqlite, postgres or none"}
	}
	return nil
}

func joinErrors(mode string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
}
