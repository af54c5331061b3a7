// Package resilience provides bounded retries with backoff and per-upstream
// circuit breakers for calls to the CRM, vector store, and language model.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Kind names the class of upstream call a policy applies to.
type Kind string

const (
	KindCRM       Kind = "crm"
	KindVector    Kind = "vector"
	KindEmbedding Kind = "embedding"
	KindChat      Kind = "chat"
)

var retriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leadscore",
		Name:      "upstream_retries_total",
		Help:      "Retried upstream calls by call kind.",
	},
	[]string{"kind"},
)

// Policy controls retry behavior for one kind of call.
type Policy struct {
	Kind Kind

	// MaxAttempts is the total number of attempts including the first.
	// 1 disables retries.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// Multiplier scales the delay after each attempt.
	Multiplier float64

	// JitterFraction randomizes each delay by up to ±fraction.
	JitterFraction float64

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool

	// Breaker, when set, gates every attempt and records its outcome.
	Breaker *CircuitBreaker
}

// WithBreaker returns a copy of p gated by cb.
func (p Policy) WithBreaker(cb *CircuitBreaker) Policy {
	p.Breaker = cb
	return p
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy(kind Kind) Policy {
	return Policy{
		Kind:           kind,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// NoRetry returns a policy that makes exactly one attempt.
func NoRetry(kind Kind) Policy {
	p := DefaultPolicy(kind)
	p.MaxAttempts = 1
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends, the breaker opens, or the policy's attempts are used up. The last
// error is returned.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := p.Breaker.Allow(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}
		val, err := fn(ctx)
		p.Breaker.Record(err)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt == p.MaxAttempts-1 {
			break
		}

		retriesTotal.WithLabelValues(string(p.Kind)).Inc()
		zap.L().Warn("retrying upstream call",
			zap.String("kind", string(p.Kind)),
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy(p.Kind)
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	if p.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.JitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
