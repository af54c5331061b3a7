// Package zoho provides OAuth-authenticated access to the Zoho CRM REST API.
package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-scoring/internal/model"
	"github.com/sells-group/lead-scoring/internal/resilience"
)

const (
	// DefaultBaseURL is the CRM API root that module paths are appended to.
	DefaultBaseURL = "https://www.zohoapis.com/crm/v2"

	// DefaultPerPage is the page size requested when fetching records.
	DefaultPerPage = 200

	// DefaultFieldsVariable names the org variable listing fields per module.
	DefaultFieldsVariable = "aileadscore__AI_Weight"
)

// Client defines the CRM operations used by the ingestion and scoring pipelines.
type Client interface {
	FetchAllContacts(ctx context.Context, refreshToken string) ([]model.Record, error)
	FetchAllLeads(ctx context.Context, refreshToken string) ([]model.Record, error)
	GetLead(ctx context.Context, refreshToken, leadID string) (model.Record, error)
	UpdateLeadScore(ctx context.Context, refreshToken string, update LeadScoreUpdate) (map[string]any, error)
	FetchOrgVariable(ctx context.Context, name, refreshToken string) (string, bool, error)
	FetchOrgID(ctx context.Context, refreshToken string) (string, error)
}

// LeadScoreUpdate is the score written back onto a lead.
type LeadScoreUpdate struct {
	LeadID         string
	Score          int
	Reason         string
	Recommendation string
}

// FieldNames are the CRM field API names that receive a score write.
type FieldNames struct {
	Score          string
	Reason         string
	Recommendation string
}

// DefaultFieldNames returns the field names used when none are configured.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		Score:          "AI_Score",
		Reason:         "AI_Justification",
		Recommendation: "AI_Recommendation",
	}
}

// UpstreamError reports a non-success response from the CRM.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("zoho: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit sets a per-second rate limit for CRM calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithRetryPolicy overrides the retry policy for CRM calls.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithPerPage overrides the page size for bulk fetches.
func WithPerPage(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// WithMaxPages caps the number of pages read per bulk fetch. Zero means no cap.
func WithMaxPages(n int) Option {
	return func(c *httpClient) {
		c.maxPages = n
	}
}

// WithFieldsVariable overrides the org variable that selects fetched fields.
func WithFieldsVariable(name string) Option {
	return func(c *httpClient) {
		if name != "" {
			c.fieldsVariable = name
		}
	}
}

// WithFieldNames overrides the fields written by UpdateLeadScore.
func WithFieldNames(f FieldNames) Option {
	return func(c *httpClient) {
		c.fields = f
	}
}

type httpClient struct {
	tokens         TokenSource
	baseURL        string
	http           *http.Client
	limiter        *rate.Limiter
	retry          resilience.Policy
	perPage        int
	maxPages       int
	fieldsVariable string
	fields         FieldNames
}

// NewClient creates a CRM client that authenticates every call through tokens.
func NewClient(tokens TokenSource, opts ...Option) Client {
	c := &httpClient{
		tokens:  tokens,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:          resilience.DefaultPolicy(resilience.KindCRM),
		perPage:        DefaultPerPage,
		fieldsVariable: DefaultFieldsVariable,
		fields:         DefaultFieldNames(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// call performs one authenticated request with retries and returns the
// response body of a 2xx answer. Non-2xx answers become *UpstreamError.
func (c *httpClient) call(ctx context.Context, op, refreshToken, method, path string, query url.Values, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrapf(err, "zoho: %s: marshal request", op)
		}
		encoded = b
	}

	return resilience.Do(ctx, c.retry, "zoho: "+op, func(ctx context.Context) ([]byte, error) {
		if err := c.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "zoho: rate limit")
		}

		token, err := c.tokens.AccessToken(ctx, refreshToken)
		if err != nil {
			return nil, err
		}

		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return nil, eris.Wrapf(err, "zoho: %s: create request", op)
		}
		req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "zoho: %s: send request", op)
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "zoho: %s: read response", op)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			upErr := &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
			err := resilience.MarkStatus(resilience.KindCRM, upErr, resp.StatusCode)
			if resilience.Unauthorized(err) {
				c.tokens.Invalidate(refreshToken)
			}
			return nil, err
		}
		return respBody, nil
	})
}
