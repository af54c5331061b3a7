package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-scoring/internal/resilience"
)

func singleAttempt(kind resilience.Kind) resilience.Policy {
	return resilience.NoRetry(kind)
}

func TestCreateEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		wantDim int
	}{
		{
			name:    "success",
			status:  http.StatusOK,
			body:    `{"model":"text-embedding-3-small","data":[{"index":0,"embedding":[0.1,0.2,0.3]}],"usage":{"prompt_tokens":4,"total_tokens":4}}`,
			wantDim: 3,
		},
		{
			name:    "bad_request",
			status:  http.StatusBadRequest,
			body:    `{"error":{"message":"input too long"}}`,
			wantErr: "unexpected status 400",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{not json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/embeddings", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				var req EmbeddingRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "text-embedding-3-small", req.Model)
				assert.Equal(t, []string{"hello"}, req.Input)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL), WithEmbeddingRetry(singleAttempt(resilience.KindEmbedding)))
			resp, err := c.CreateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"hello"}})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			require.Len(t, resp.Data, 1)
			assert.Len(t, resp.Data[0].Embedding, tt.wantDim)
		})
	}
}

func TestChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		if assert.NotNil(t, req.Temperature) {
			assert.Equal(t, 0.0, *req.Temperature)
		}
		assert.Len(t, req.Messages, 2)

		_, _ = w.Write([]byte(`{"id":"chat-1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\":80}"}}]}`))
	}))
	defer srv.Close()

	temp := 0.0
	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "prompt"},
		},
		Temperature: &temp,
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, `{"score":80}`, resp.Choices[0].Message.Content)
}

func TestChatCompletion_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":"chat-2","choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	policy := resilience.Policy{
		Kind:           resilience.KindChat,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
	c := NewClient("test-key", WithBaseURL(srv.URL), WithChatRetry(policy))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "chat-2", resp.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWithChatModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithChatModel("gpt-4o"))
	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.NoError(t, err)
}
