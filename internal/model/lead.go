package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Record is a CRM record (Contact or Lead) keyed by CRM field name. Values
// are whatever the CRM returned: primitives, arrays, or nested lookup objects.
type Record map[string]any

// ID returns the CRM-assigned record id as a string, or "" when absent.
func (r Record) ID() string {
	return stringify(r["id"])
}

// String returns the named field as a string, or "" when absent or null.
func (r Record) String(field string) string {
	return stringify(r[field])
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Count is an activity counter from the webhook payload. The CRM sends it as
// a number, a numeric string, or not at all.
type Count int

// UnmarshalJSON accepts numbers and numeric strings. Null, empty and
// unparseable values leave c unchanged.
func (c *Count) UnmarshalJSON(data []byte) error {
	if n, ok := parseCount(data); ok {
		*c = n
	}
	return nil
}

// ParseCount decodes a raw payload counter. Empty, null and unparseable
// values are absent and yield nil.
func ParseCount(raw json.RawMessage) *Count {
	n, ok := parseCount(raw)
	if !ok {
		return nil
	}
	return &n
}

func parseCount(data []byte) (Count, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			zap.L().Debug("model: ignoring undecodable count", zap.String("raw", raw))
			return 0, false
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		zap.L().Debug("model: ignoring non-numeric count", zap.String("raw", raw))
		return 0, false
	}
	return Count(int(f)), true
}

// WebhookPayload is the body the CRM workflow posts when a lead should be
// scored. Everything except Refresh_Token is optional.
type WebhookPayload struct {
	Data             []Record        `json:"data"`
	Notes            json.RawMessage `json:"Notes,omitempty"`
	Emails           json.RawMessage `json:"Emails,omitempty"`
	NumberOfCalls    *Count          `json:"Number_Of_Calls,omitempty"`
	NumberOfMeetings *Count          `json:"Number_Of_Meetings,omitempty"`
	RefreshToken     string          `json:"Refresh_Token"`
}

// UnmarshalJSON decodes the payload. Counters that cannot be read as numbers
// are treated as absent rather than failing the whole payload.
func (p *WebhookPayload) UnmarshalJSON(data []byte) error {
	type plain WebhookPayload
	var aux struct {
		plain
		NumberOfCalls    json.RawMessage `json:"Number_Of_Calls"`
		NumberOfMeetings json.RawMessage `json:"Number_Of_Meetings"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return eris.Wrap(err, "model: decode webhook payload")
	}
	*p = WebhookPayload(aux.plain)
	p.NumberOfCalls = ParseCount(aux.NumberOfCalls)
	p.NumberOfMeetings = ParseCount(aux.NumberOfMeetings)
	return nil
}

// Lead returns the first record in Data, or an empty record.
func (p WebhookPayload) Lead() Record {
	if len(p.Data) == 0 || p.Data[0] == nil {
		return Record{}
	}
	return p.Data[0]
}

// NotesText returns the raw notes content, or "" when absent.
func (p WebhookPayload) NotesText() string {
	return rawText(p.Notes)
}

// EmailsText returns the raw email content, or "" when absent.
func (p WebhookPayload) EmailsText() string {
	return rawText(p.Emails)
}

func rawText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	// Plain strings are rendered without their JSON quoting.
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// IngestRequest is the body of the contact ingestion trigger.
type IngestRequest struct {
	RefreshToken string `json:"Refresh_Token"`
}
