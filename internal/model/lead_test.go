package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordID(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"string id", Record{"id": "5725767000000412001"}, "5725767000000412001"},
		{"numeric id", Record{"id": float64(42)}, "42"},
		{"json number", Record{"id": json.Number("77")}, "77"},
		{"missing", Record{"Last_Name": "Doe"}, ""},
		{"null", Record{"id": nil}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.ID())
		})
	}
}

func TestWebhookPayload_Decode(t *testing.T) {
	body := `{
		"data": [{"id": "1001", "Lead_Status": "Tour Scheduled", "Email": "a@b.co"}],
		"Notes": [{"Note_Content": "Called, very interested"}],
		"Emails": "subject: pricing",
		"Number_Of_Calls": "3",
		"Number_Of_Meetings": 1,
		"Refresh_Token": "rt-1"
	}`

	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	lead := p.Lead()
	assert.Equal(t, "1001", lead.ID())
	assert.Equal(t, "Tour Scheduled", lead.String("Lead_Status"))
	assert.Equal(t, `[{"Note_Content": "Called, very interested"}]`, p.NotesText())
	assert.Equal(t, "subject: pricing", p.EmailsText())
	require.NotNil(t, p.NumberOfCalls)
	assert.Equal(t, Count(3), *p.NumberOfCalls)
	require.NotNil(t, p.NumberOfMeetings)
	assert.Equal(t, Count(1), *p.NumberOfMeetings)
	assert.Equal(t, "rt-1", p.RefreshToken)
}

func TestWebhookPayload_MissingOptionalFields(t *testing.T) {
	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(`{"Refresh_Token": "rt", "Notes": null}`), &p))

	assert.Empty(t, p.Lead())
	assert.Equal(t, "", p.Lead().ID())
	assert.Equal(t, "", p.NotesText())
	assert.Equal(t, "", p.EmailsText())
	assert.Nil(t, p.NumberOfCalls)
	assert.Nil(t, p.NumberOfMeetings)
}

func TestCount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Count
	}{
		{`4`, 4},
		{`4.0`, 4},
		{`"12"`, 12},
		{`""`, 0},
		{`null`, 0},
		{`"many"`, 0},
		{`"N/A"`, 0},
		{`1e20`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var c Count
			require.NoError(t, c.UnmarshalJSON([]byte(tt.in)))
			assert.Equal(t, tt.want, c)
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want *Count
	}{
		{`7`, countOf(7)},
		{`" 2 "`, countOf(2)},
		{`0`, countOf(0)},
		{``, nil},
		{`null`, nil},
		{`""`, nil},
		{`"N/A"`, nil},
		{`true`, nil},
		{`[1]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCount(json.RawMessage(tt.in)))
		})
	}
}

func TestWebhookPayload_UnparseableCountsAreAbsent(t *testing.T) {
	body := `{"data":[{"id":"1"}],"Number_Of_Calls":"N/A","Number_Of_Meetings":{"n":2},"Refresh_Token":"rt"}`

	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	assert.Equal(t, "1", p.Lead().ID())
	assert.Equal(t, "rt", p.RefreshToken)
	assert.Nil(t, p.NumberOfCalls)
	assert.Nil(t, p.NumberOfMeetings)
}

func TestWebhookPayload_InvalidJSON(t *testing.T) {
	var p WebhookPayload
	assert.Error(t, json.Unmarshal([]byte(`{"data": [`), &p))
}

func countOf(n int) *Count {
	c := Count(n)
	return &c
}
