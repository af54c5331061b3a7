package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-scoring/internal/model"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     model.ScoreResult
		fallback bool
	}{
		{
			name: "json_wrapped_in_prose",
			text: `noise {"score": 77, "reason": "ok", "recommendation": "call now"} trailing`,
			want: model.ScoreResult{Score: 77, Reason: "ok", Recommendation: "call now"},
		},
		{
			name: "code_fence",
			text: "```json\n{\"score\": 64, \"reason\": \"warm\", \"recommendation\": \"email\"}\n```",
			want: model.ScoreResult{Score: 64, Reason: "warm", Recommendation: "email"},
		},
		{
			name:     "no_braces",
			text:     "I cannot score this lead.",
			want:     model.ScoreResult{Score: 50, Reason: FallbackText, Recommendation: FallbackText},
			fallback: true,
		},
		{
			name:     "only_opening_brace",
			text:     `{"score": 80`,
			want:     model.ScoreResult{Score: 50, Reason: FallbackText, Recommendation: FallbackText},
			fallback: true,
		},
		{
			name:     "invalid_json_between_braces",
			text:     `{score: eighty}`,
			want:     model.ScoreResult{Score: 50, Reason: FallbackText, Recommendation: FallbackText},
			fallback: true,
		},
		{
			name:     "empty",
			text:     "",
			want:     model.ScoreResult{Score: 50, Reason: FallbackText, Recommendation: FallbackText},
			fallback: true,
		},
		{
			name:     "missing_score",
			text:     `{"reason": "thin data", "recommendation": "nurture"}`,
			want:     model.ScoreResult{Score: 50, Reason: "thin data", Recommendation: "nurture"},
			fallback: true,
		},
		{
			name:     "missing_recommendation",
			text:     `{"score": 90, "reason": "approved"}`,
			want:     model.ScoreResult{Score: 90, Reason: "approved", Recommendation: FallbackText},
			fallback: true,
		},
		{
			name: "fractional_score_truncated",
			text: `{"score": 72.9, "reason": "r", "recommendation": "x"}`,
			want: model.ScoreResult{Score: 72, Reason: "r", Recommendation: "x"},
		},
		{
			name: "numeric_string_score",
			text: `{"score": " 81 ", "reason": "r", "recommendation": "x"}`,
			want: model.ScoreResult{Score: 81, Reason: "r", Recommendation: "x"},
		},
		{
			name:     "non_numeric_string_score",
			text:     `{"score": "high", "reason": "r", "recommendation": "x"}`,
			want:     model.ScoreResult{Score: 50, Reason: "r", Recommendation: "x"},
			fallback: true,
		},
		{
			name: "score_clamped_high",
			text: `{"score": 140, "reason": "r", "recommendation": "x"}`,
			want: model.ScoreResult{Score: 100, Reason: "r", Recommendation: "x"},
		},
		{
			name: "score_clamped_low",
			text: `{"score": -5, "reason": "r", "recommendation": "x"}`,
			want: model.ScoreResult{Score: 0, Reason: "r", Recommendation: "x"},
		},
		{
			name: "huge_score_clamped_high",
			text: `{"score": 1e20, "reason": "r", "recommendation": "x"}`,
			want: model.ScoreResult{Score: 100, Reason: "r", Recommendation: "x"},
		},
		{
			name: "long_numeric_string_clamped_high",
			text: `{"score": "9999999999999999999999", "reason": "r", "recommendation": "x"}`,
			want: model.ScoreResult{Score: 100, Reason: "r", Recommendation: "x"},
		},
		{
			name: "huge_negative_score_clamped_low",
			text: `{"score": -1e20, "reason": "r", "recommendation": "x"}`,
			want: model.ScoreResult{Score: 0, Reason: "r", Recommendation: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseScore(tt.text)
			assert.Equal(t, tt.fallback, got.Fallback)
			got.Fallback = false
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScore_NeverPanics(t *testing.T) {
	inputs := []string{"}{", "{}", "{{}}", "{\"score\":null}", "\x00{\"score\":1e400}", "[1,2]"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			got := ParseScore(in)
			assert.GreaterOrEqual(t, got.Score, 0)
			assert.LessOrEqual(t, got.Score, 100)
		})
	}
}
