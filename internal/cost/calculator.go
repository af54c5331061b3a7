// Package cost prices embedding and chat model usage.
package cost

import (
	"sort"
	"strings"
)

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps a model name, or a model name prefix, to its pricing.
type Rates map[string]ModelRate

// Usage is the token consumption of one model call.
type Usage struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Tokens returns input plus output tokens.
func (u Usage) Tokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Calculator computes costs for model usage.
type Calculator struct {
	rates Rates

	// prefixes holds rate keys longest first so dated model snapshots such
	// as "gpt-4o-mini-2024-07-18" resolve to "gpt-4o-mini", not "gpt-4o".
	prefixes []string
}

// NewCalculator creates a Calculator with the given rates. Entries in rates
// override DefaultRates; a nil map uses the defaults unchanged.
func NewCalculator(rates Rates) *Calculator {
	merged := DefaultRates()
	for name, r := range rates {
		merged[name] = r
	}

	prefixes := make([]string, 0, len(merged))
	for name := range merged {
		prefixes = append(prefixes, name)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	return &Calculator{rates: merged, prefixes: prefixes}
}

// Rate returns the pricing for model, matching exact names first and then
// the longest configured prefix.
func (c *Calculator) Rate(model string) (ModelRate, bool) {
	if r, ok := c.rates[model]; ok {
		return r, true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(model, p) {
			return c.rates[p], true
		}
	}
	return ModelRate{}, false
}

// Price returns the USD cost of u. Unknown models cost 0 and report false.
func (c *Calculator) Price(u Usage) (float64, bool) {
	rate, ok := c.Rate(u.Model)
	if !ok {
		return 0, false
	}
	in := (float64(u.InputTokens) / 1e6) * rate.Input
	out := (float64(u.OutputTokens) / 1e6) * rate.Output
	return in + out, true
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"text-embedding-3-small": {Input: 0.02},
		"text-embedding-3-large": {Input: 0.13},
		"text-embedding-ada-002": {Input: 0.10},
		"gpt-4o-mini":            {Input: 0.15, Output: 0.60},
		"gpt-4o":                 {Input: 2.50, Output: 10.00},
		"gpt-4.1-mini":           {Input: 0.40, Output: 1.60},
		"claude-haiku-4-5":       {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5":      {Input: 3.00, Output: 15.00},
		"claude-opus-4-6":        {Input: 15.00, Output: 75.00},
	}
}
