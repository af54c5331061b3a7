// Package pinecone provides a REST client for the Pinecone control plane
// (index management) and data plane (upsert and query).
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-scoring/internal/resilience"
)

const (
	defaultControlURL = "https://api.pinecone.io"
	apiVersion        = "2024-07"
)

// Client defines the Pinecone operations used by the vector index.
type Client interface {
	ListIndexes(ctx context.Context) ([]IndexModel, error)
	DescribeIndex(ctx context.Context, name string) (*IndexModel, error)
	CreateIndex(ctx context.Context, req CreateIndexRequest) (*IndexModel, error)
	Upsert(ctx context.Context, host string, req UpsertRequest) (*UpsertResponse, error)
	Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error)
}

// IndexModel describes an index as returned by the control plane.
type IndexModel struct {
	Name      string      `json:"name"`
	Dimension int         `json:"dimension"`
	Metric    string      `json:"metric"`
	Host      string      `json:"host"`
	Status    IndexStatus `json:"status"`
}

// IndexStatus reports index readiness.
type IndexStatus struct {
	Ready bool   `json:"ready"`
	State string `json:"state"`
}

// CreateIndexRequest is the request body for POST /indexes.
type CreateIndexRequest struct {
	Name      string    `json:"name"`
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	Spec      IndexSpec `json:"spec"`
}

// IndexSpec selects the deployment type of a new index.
type IndexSpec struct {
	Serverless *ServerlessSpec `json:"serverless,omitempty"`
}

// ServerlessSpec places a serverless index in a cloud region.
type ServerlessSpec struct {
	Cloud  string `json:"cloud"`
	Region string `json:"region"`
}

// Vector is a single record in an upsert.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpsertRequest is the request body for POST /vectors/upsert.
type UpsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

// UpsertResponse is the response from POST /vectors/upsert.
type UpsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// QueryRequest is the request body for POST /query.
type QueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeMetadata bool      `json:"includeMetadata"`
	IncludeValues   bool      `json:"includeValues"`
}

// QueryResponse is the response from POST /query.
type QueryResponse struct {
	Matches   []Match `json:"matches"`
	Namespace string  `json:"namespace"`
}

// Match is a single nearest neighbor.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// APIError reports a non-success response from Pinecone.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pinecone: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Option configures the client.
type Option func(*httpClient)

// WithControlURL overrides the control plane base URL.
func WithControlURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.controlURL = u
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryPolicy overrides the retry policy for all calls.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

type httpClient struct {
	apiKey     string
	controlURL string
	http       *http.Client
	retry      resilience.Policy
}

// NewClient creates a Pinecone API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		controlURL: defaultControlURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultPolicy(resilience.KindVector),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) ListIndexes(ctx context.Context) ([]IndexModel, error) {
	var out struct {
		Indexes []IndexModel `json:"indexes"`
	}
	if err := c.do(ctx, "list indexes", http.MethodGet, c.controlURL+"/indexes", nil, &out); err != nil {
		return nil, err
	}
	return out.Indexes, nil
}

func (c *httpClient) DescribeIndex(ctx context.Context, name string) (*IndexModel, error) {
	var out IndexModel
	if err := c.do(ctx, "describe index", http.MethodGet, c.controlURL+"/indexes/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) CreateIndex(ctx context.Context, req CreateIndexRequest) (*IndexModel, error) {
	var out IndexModel
	if err := c.do(ctx, "create index", http.MethodPost, c.controlURL+"/indexes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Upsert(ctx context.Context, host string, req UpsertRequest) (*UpsertResponse, error) {
	var out UpsertResponse
	if err := c.do(ctx, "upsert", http.MethodPost, hostURL(host)+"/vectors/upsert", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error) {
	var out QueryResponse
	if err := c.do(ctx, "query", http.MethodPost, hostURL(host)+"/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// hostURL prefixes a bare index host with https.
func hostURL(host string) string {
	host = strings.TrimSuffix(host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

func (c *httpClient) do(ctx context.Context, op, method, u string, reqBody, out any) error {
	var encoded []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return eris.Wrapf(err, "pinecone: %s: marshal request", op)
		}
		encoded = b
	}

	respBody, err := resilience.Do(ctx, c.retry, "pinecone: "+op, func(ctx context.Context) ([]byte, error) {
		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return nil, eris.Wrapf(err, "pinecone: %s: create request", op)
		}
		req.Header.Set("Api-Key", c.apiKey)
		req.Header.Set("X-Pinecone-API-Version", apiVersion)
		req.Header.Set("Accept", "application/json")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "pinecone: %s: send request", op)
		}
		defer resp.Body.Close() //nolint:errcheck

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "pinecone: %s: read response", op)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
			return nil, resilience.MarkStatus(resilience.KindVector, apiErr, resp.StatusCode)
		}
		return b, nil
	})
	if err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrapf(err, "pinecone: %s: unmarshal response", op)
		}
	}
	return nil
}
