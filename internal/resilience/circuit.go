package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// CircuitState is the state of one upstream's breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the upstream while its
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

var circuitState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "leadscore",
		Name:      "circuit_state",
		Help:      "Circuit breaker state per upstream kind (0 closed, 1 open, 2 half-open).",
	},
	[]string{"kind"},
)

// BreakerConfig controls when a breaker opens and how long it stays open.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures
	// that opens the circuit.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before one trial call
	// is let through.
	Cooldown time.Duration
}

// DefaultBreakerConfig opens after 5 failures and cools down for 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// CircuitBreaker stops calls to one upstream kind after repeated transient
// failures. Any other answer, a 400 or 404 included, shows the upstream is
// reachable and resets the count.
type CircuitBreaker struct {
	kind Kind
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	trial    bool
}

// NewCircuitBreaker creates a closed breaker for kind.
func NewCircuitBreaker(kind Kind, cfg BreakerConfig) *CircuitBreaker {
	d := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = d.Cooldown
	}
	cb := &CircuitBreaker{kind: kind, cfg: cfg, now: time.Now}
	circuitState.WithLabelValues(string(kind)).Set(float64(CircuitClosed))
	return cb
}

// Allow reports whether a call may go out. While half-open only one trial
// call is admitted until it reports back through Record.
func (cb *CircuitBreaker) Allow() error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return fmt.Errorf("%s: %w", cb.kind, ErrCircuitOpen)
		}
		cb.transition(CircuitHalfOpen)
		cb.trial = true
		return nil
	case CircuitHalfOpen:
		if cb.trial {
			return fmt.Errorf("%s: %w", cb.kind, ErrCircuitOpen)
		}
		cb.trial = true
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Record(err error) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trial = false
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if err == nil || !IsTransient(err) {
		cb.failures = 0
		if cb.state != CircuitClosed {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		if cb.state != CircuitOpen {
			cb.transition(CircuitOpen)
			zap.L().Warn("circuit opened",
				zap.String("kind", string(cb.kind)),
				zap.Int("consecutive_failures", cb.failures),
				zap.Duration("cooldown", cb.cfg.Cooldown),
				zap.Error(err),
			)
		}
	}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed reports half-open.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	zap.L().Debug("circuit state change",
		zap.String("kind", string(cb.kind)),
		zap.Stringer("from", cb.state),
		zap.Stringer("to", to),
	)
	cb.state = to
	circuitState.WithLabelValues(string(cb.kind)).Set(float64(to))
}

// Breakers holds one breaker per upstream kind. A nil *Breakers hands out
// nil breakers, which admit every call.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[Kind]*CircuitBreaker
}

// NewBreakers creates an empty registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[Kind]*CircuitBreaker)}
}

// Get returns the breaker for kind, creating it on first use.
func (b *Breakers) Get(kind Kind) *CircuitBreaker {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[kind]
	if !ok {
		cb = NewCircuitBreaker(kind, b.cfg)
		b.breakers[kind] = cb
	}
	return cb
}

// States returns the state of every breaker created so far, keyed by kind.
func (b *Breakers) States() map[string]string {
	out := map[string]string{}
	if b == nil {
		return out
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, cb := range b.breakers {
		out[string(k)] = cb.State().String()
	}
	return out
}
