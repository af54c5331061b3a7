package scoring

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/lead-scoring/internal/model"
)

// NoHistoryMarker replaces the neighbor block when retrieval found nothing.
const NoHistoryMarker = "No historical contacts available. Use lead data only."

// StatusPipeline is the ordered lead-status progression the model is asked
// to reason about.
var StatusPipeline = []string{
	"New Prospect",
	"Tour Scheduled",
	"Application Started",
	"Application Completed",
	"Screening Completed",
	"Approved",
	"Ready For Move In",
}

const notProvided = "not provided"

// PromptInput carries everything rendered into a scoring prompt.
type PromptInput struct {
	Lead             model.Record
	Neighbors        []map[string]any
	NumberOfCalls    *model.Count
	NumberOfMeetings *model.Count
	Emails           string
	Notes            string
	LeadStatus       string
	OrgInstructions  string
}

// BuildPrompt renders the scoring prompt. Output is deterministic for a
// given input: lead attributes are listed in sorted key order.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("You are a data scientist.\n")
	b.WriteString("Estimate a 0-100 score for this lead.\n")
	b.WriteString("If there are no Historical Contacts, use the lead data, Number Of Calls, Number Of Meetings, Emails, Notes and Lead Status to generate a score.\n")
	b.WriteString("If there are Historical Contacts then the score depends 50% on historical matches and 50% on lead data, Number Of Calls, Number Of Meetings, Emails, Notes and Lead Status.\n")
	b.WriteString("Focus on timestamps and directions of the SMS and Emails and go through the contents of Notes, also through the subjects of emails as well as they indicate lead sentiments and should impact the score as well.\n")
	b.WriteString("IMPORTANT : Focus on Lead Status as well, and provide precise scores, not just in multiples of 5, even a single score point matters.\n")
	b.WriteString("IMPORTANT : The score, reasoning and recommendations should always take lead status, Number of Calls, Meetings, Notes and emails into account.\n\n")

	b.WriteString("Lead Status Pipeline (STRICT ORDER):\n")
	for i, status := range StatusPipeline {
		b.WriteString("   ")
		b.WriteString(status)
		if i < len(StatusPipeline)-1 {
			b.WriteString(" →")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nHistorical contacts (JSON):\n")
	b.WriteString(renderNeighbors(in.Neighbors))
	b.WriteString("\n\nlead data:\n")
	b.WriteString(FormatLeadText(in.Lead))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Number of Calls : %s\n", renderCount(in.NumberOfCalls))
	fmt.Fprintf(&b, "Number of Meetings : %s\n\n", renderCount(in.NumberOfMeetings))

	b.WriteString("Emails :\n")
	b.WriteString(in.Emails)
	b.WriteString("\n\nNotes :\n")
	b.WriteString(in.Notes)
	b.WriteString("\n\nOrg Specific Custom Prompt :\n")
	b.WriteString(in.OrgInstructions)
	b.WriteString("\n\nImportant : If Org Specific Custom Prompt is mentioned, consider it for scoring as well\n\n")

	fmt.Fprintf(&b, "Lead Status: %s\n", in.LeadStatus)
	b.WriteString(`Return JSON: { "score": <int 0-100>, "reason": "<one-sentence>", "recommendation": "<one-sentence>" }`)
	b.WriteString("\n")

	return b.String()
}

func renderNeighbors(neighbors []map[string]any) string {
	if len(neighbors) == 0 {
		return NoHistoryMarker
	}
	out, err := json.MarshalIndent(neighbors, "", "  ")
	if err != nil {
		return NoHistoryMarker
	}
	return string(out)
}

func renderCount(c *model.Count) string {
	if c == nil {
		return notProvided
	}
	return strconv.Itoa(int(*c))
}

// FormatLeadText flattens a lead into "key: value; ..." over its non-empty
// attributes in sorted key order. A lead with no non-empty attributes is
// rendered as JSON.
func FormatLeadText(lead model.Record) string {
	keys := make([]string, 0, len(lead))
	for k := range lead {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if isEmpty(lead[k]) {
			continue
		}
		parts = append(parts, k+": "+lead.String(k))
	}
	if len(parts) == 0 {
		if len(lead) == 0 {
			return "{}"
		}
		b, err := json.Marshal(lead)
		if err != nil {
			return "{}"
		}
		return string(b)
	}
	return strings.Join(parts, "; ")
}

// isEmpty reports whether v is a zero-like value: nil, false, zero, or an
// empty string, list, or object.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case int:
		return t == 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
