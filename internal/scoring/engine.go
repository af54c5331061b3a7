// Package scoring turns a lead and its retrieved neighbors into a prompt,
// asks a chat model for a judgment, and parses the answer into a score.
package scoring

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/cost"
	"github.com/sells-group/lead-scoring/internal/model"
)

// SystemMessage is sent ahead of every scoring prompt.
const SystemMessage = "You are a data scientist. Return JSON only."

// Embedding is an embedding vector and the usage of the call that made it.
type Embedding struct {
	Vector []float32
	Usage  cost.Usage
}

// Completion is the raw text of a chat answer and the usage of the call.
type Completion struct {
	Text  string
	Usage cost.Usage
}

// Embedder converts text to an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
}

// ChatModel returns the raw completion text for a system and user message
// at temperature 0.
type ChatModel interface {
	Complete(ctx context.Context, system, prompt string) (Completion, error)
}

// EmbeddingError reports a failed embedding call.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("scoring: embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Engine embeds text and scores prompts.
type Engine struct {
	embedder Embedder
	chat     ChatModel
	calc     *cost.Calculator
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCalculator prices model usage with calc instead of the default rates.
func WithCalculator(calc *cost.Calculator) EngineOption {
	return func(e *Engine) {
		if calc != nil {
			e.calc = calc
		}
	}
}

// NewEngine creates an Engine from its model backends.
func NewEngine(embedder Embedder, chat ChatModel, opts ...EngineOption) *Engine {
	e := &Engine{embedder: embedder, chat: chat}
	for _, o := range opts {
		o(e)
	}
	if e.calc == nil {
		e.calc = cost.NewCalculator(nil)
	}
	return e
}

// Embed returns the embedding of text. Any failure is an *EmbeddingError.
// The call is charged to the cost.Meter attached to ctx, if any.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	e.charge(ctx, callEmbedding, emb.Usage)
	if len(emb.Vector) == 0 {
		return nil, &EmbeddingError{Err: eris.New("scoring: empty embedding")}
	}
	return emb.Vector, nil
}

// Score asks the chat model to judge prompt. Transport failures are
// returned; unusable output falls back to default values and never fails.
func (e *Engine) Score(ctx context.Context, prompt string) (model.ScoreResult, error) {
	completion, err := e.chat.Complete(ctx, SystemMessage, prompt)
	if err != nil {
		return model.ScoreResult{}, eris.Wrap(err, "scoring: chat completion")
	}
	e.charge(ctx, callChat, completion.Usage)
	text := completion.Text

	result := ParseScore(text)
	if result.Fallback {
		parseFallbacks.Inc()
		zap.L().Warn("scoring: model output needed fallback values",
			zap.Int("score", result.Score),
			zap.Int("response_len", len(text)),
		)
	}
	return result, nil
}
