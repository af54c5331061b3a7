package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/model"
)

type listResponse struct {
	Data []model.Record `json:"data"`
}

type orgVariablesResponse struct {
	OrgVariables []struct {
		Value any `json:"Value"`
	} `json:"Org_Variables"`
}

type orgResponse struct {
	Org []map[string]any `json:"org"`
}

func (c *httpClient) FetchAllContacts(ctx context.Context, refreshToken string) ([]model.Record, error) {
	return c.fetchAll(ctx, refreshToken, "Contacts")
}

func (c *httpClient) FetchAllLeads(ctx context.Context, refreshToken string) ([]model.Record, error) {
	return c.fetchAll(ctx, refreshToken, "Leads")
}

// fetchAll pages through a module until a page comes back empty or short.
// Any failed page aborts the whole fetch.
func (c *httpClient) fetchAll(ctx context.Context, refreshToken, module string) ([]model.Record, error) {
	fields, err := c.selectedFields(ctx, refreshToken, module)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("module", module))
	var collected []model.Record
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))
		if fields != "" {
			q.Set("fields", fields)
		}

		op := fmt.Sprintf("list %s page %d", module, page)
		body, err := c.call(ctx, op, refreshToken, http.MethodGet, "/"+module, q, nil)
		if err != nil {
			return nil, err
		}

		var resp listResponse
		if len(body) > 0 {
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, eris.Wrapf(err, "zoho: %s: unmarshal response", op)
			}
		}
		if len(resp.Data) == 0 {
			break
		}
		collected = append(collected, resp.Data...)
		log.Debug("zoho: fetched page", zap.Int("page", page), zap.Int("records", len(resp.Data)))

		if c.maxPages > 0 && page >= c.maxPages {
			break
		}
		if len(resp.Data) < c.perPage {
			break
		}
	}

	log.Info("zoho: fetch complete", zap.Int("records", len(collected)))
	return collected, nil
}

// selectedFields reads the per-module field list from the fields org
// variable. A missing or unparsable variable yields no field filter.
func (c *httpClient) selectedFields(ctx context.Context, refreshToken, module string) (string, error) {
	raw, ok, err := c.FetchOrgVariable(ctx, c.fieldsVariable, refreshToken)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return "", nil
	}

	var selected map[string]any
	if err := json.Unmarshal([]byte(raw), &selected); err != nil {
		zap.L().Warn("zoho: fields variable is not a JSON object",
			zap.String("variable", c.fieldsVariable),
			zap.Error(err),
		)
		return "", nil
	}

	switch v := selected[module].(type) {
	case string:
		return v, nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ","), nil
	default:
		return "", nil
	}
}

func (c *httpClient) GetLead(ctx context.Context, refreshToken, leadID string) (model.Record, error) {
	body, err := c.call(ctx, "get lead", refreshToken, http.MethodGet, "/Leads/"+url.PathEscape(leadID), nil, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return model.Record{}, nil
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "zoho: get lead: unmarshal response")
	}
	if len(resp.Data) == 0 {
		return model.Record{}, nil
	}
	return resp.Data[0], nil
}

func (c *httpClient) UpdateLeadScore(ctx context.Context, refreshToken string, update LeadScoreUpdate) (map[string]any, error) {
	payload := map[string]any{
		"data": []map[string]any{{
			"id":                    update.LeadID,
			c.fields.Score:          update.Score,
			c.fields.Reason:         update.Reason,
			c.fields.Recommendation: update.Recommendation,
		}},
	}

	body, err := c.call(ctx, "update lead score", refreshToken, http.MethodPut, "/Leads", nil, payload)
	if err != nil {
		return nil, err
	}

	result := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, eris.Wrap(err, "zoho: update lead score: unmarshal response")
		}
	}
	return result, nil
}

// FetchOrgVariable returns the value of an org variable. Any non-success
// answer from the CRM reports ("", false, nil) so callers can apply defaults.
func (c *httpClient) FetchOrgVariable(ctx context.Context, name, refreshToken string) (string, bool, error) {
	body, err := c.call(ctx, "get org variable", refreshToken, http.MethodGet, "/org/variables/"+url.PathEscape(name), nil, nil)
	if err != nil {
		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			zap.L().Debug("zoho: org variable unavailable",
				zap.String("variable", name),
				zap.Int("status", upErr.StatusCode),
			)
			return "", false, nil
		}
		return "", false, err
	}
	if len(body) == 0 {
		return "", false, nil
	}

	var resp orgVariablesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, eris.Wrap(err, "zoho: get org variable: unmarshal response")
	}
	if len(resp.OrgVariables) == 0 || resp.OrgVariables[0].Value == nil {
		return "", false, nil
	}

	switch v := resp.OrgVariables[0].Value.(type) {
	case string:
		return v, true, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false, eris.Wrap(err, "zoho: get org variable: encode value")
		}
		return string(b), true, nil
	}
}

func (c *httpClient) FetchOrgID(ctx context.Context, refreshToken string) (string, error) {
	body, err := c.call(ctx, "get org", refreshToken, http.MethodGet, "/org", nil, nil)
	if err != nil {
		return "", err
	}

	var resp orgResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", eris.Wrap(err, "zoho: get org: unmarshal response")
	}
	if len(resp.Org) == 0 {
		return "", eris.New("zoho: get org: empty org list")
	}

	id := model.Record(resp.Org[0]).String("zgid")
	if id == "" {
		return "", eris.New("zoho: get org: missing zgid")
	}
	return id, nil
}
