package cost

import (
	"context"
	"sync"
)

// Meter accumulates the spend of one unit of work, such as scoring a lead or
// an ingestion run. A nil Meter ignores additions. Safe for concurrent use.
type Meter struct {
	mu     sync.Mutex
	usd    float64
	tokens int64
}

// Add records one priced call.
func (m *Meter) Add(usd float64, tokens int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.usd += usd
	m.tokens += tokens
	m.mu.Unlock()
}

// USD returns the accumulated cost.
func (m *Meter) USD() float64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usd
}

// Tokens returns the accumulated token count.
func (m *Meter) Tokens() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

type meterKey struct{}

// WithMeter returns a context whose model calls are charged to m.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFrom returns the Meter attached to ctx, or nil.
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}
