package scoring

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/lead-scoring/internal/model"
)

const (
	// DefaultScore is used when the model output carries no usable score.
	DefaultScore = 50

	// FallbackText replaces a missing reason or recommendation.
	FallbackText = "AI parsing fallback"
)

var parseFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "leadscore",
	Name:      "parse_fallbacks_total",
	Help:      "Model responses that needed fallback values.",
})

// ParseScore extracts a ScoreResult from raw model output. The text between
// the first '{' and the last '}' is decoded as JSON; anything unusable falls
// back to DefaultScore and FallbackText. Scores are truncated to integers and
// clamped to 0..100.
func ParseScore(text string) model.ScoreResult {
	fallback := model.ScoreResult{Score: DefaultScore, Reason: FallbackText, Recommendation: FallbackText, Fallback: true}

	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fallback
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return fallback
	}

	result := model.ScoreResult{Score: DefaultScore, Reason: FallbackText, Recommendation: FallbackText}
	if score, ok := coerceScore(raw["score"]); ok {
		result.Score = score
	} else {
		result.Fallback = true
	}
	if s, ok := textField(raw["reason"]); ok {
		result.Reason = s
	} else {
		result.Fallback = true
	}
	if s, ok := textField(raw["recommendation"]); ok {
		result.Recommendation = s
	} else {
		result.Fallback = true
	}
	return result
}

func coerceScore(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if t {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(clamp(f)), true
}

// clamp bounds f before integer conversion so out-of-range values cannot
// overflow.
func clamp(f float64) float64 {
	return math.Min(math.Max(f, 0), 100)
}

func textField(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
