package scoring

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scoring/internal/cost"
	"github.com/sells-group/lead-scoring/pkg/anthropic"
	"github.com/sells-group/lead-scoring/pkg/openai"
)

// OpenAIEmbedder embeds text with the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates an Embedder. An empty model uses the client default.
func NewOpenAIEmbedder(client openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Embedding, error) {
	resp, err := e.client.CreateEmbedding(ctx, openai.EmbeddingRequest{
		Model: e.model,
		Input: []string{text},
	})
	if err != nil {
		return Embedding{}, err
	}
	if len(resp.Data) == 0 {
		return Embedding{}, eris.New("scoring: embeddings response has no data")
	}
	return Embedding{
		Vector: resp.Data[0].Embedding,
		Usage: cost.Usage{
			Model:       firstNonEmpty(resp.Model, e.model),
			InputTokens: int64(resp.Usage.PromptTokens),
		},
	}, nil
}

// OpenAIChat scores prompts with an OpenAI chat model.
type OpenAIChat struct {
	client openai.Client
	model  string
}

// NewOpenAIChat creates a ChatModel. An empty model uses the client default.
func NewOpenAIChat(client openai.Client, model string) *OpenAIChat {
	return &OpenAIChat{client: client, model: model}
}

func (c *OpenAIChat) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	temp := 0.0
	resp, err := c.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, err
	}
	out := Completion{Usage: cost.Usage{
		Model:        firstNonEmpty(resp.Model, c.model),
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	return out, nil
}

// AnthropicChat scores prompts with a Claude model.
type AnthropicChat struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicChat creates a ChatModel backed by the Messages API.
func NewAnthropicChat(client anthropic.Client, model string, maxTokens int64) *AnthropicChat {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicChat{client: client, model: model, maxTokens: maxTokens}
}

func (c *AnthropicChat) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Text: resp.Text(),
		Usage: cost.Usage{
			Model:        firstNonEmpty(resp.Model, c.model),
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
