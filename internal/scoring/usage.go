package scoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/cost"
)

// Call labels for the usage metrics.
const (
	callEmbedding = "embedding"
	callChat      = "chat"
)

var (
	modelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscore",
			Name:      "model_tokens_total",
			Help:      "Tokens consumed by embedding and chat calls.",
		},
		[]string{"call", "model", "direction"},
	)

	modelCostUSDTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscore",
			Name:      "model_cost_usd_total",
			Help:      "Estimated USD spend on embedding and chat calls.",
		},
		[]string{"call", "model"},
	)
)

// charge prices u, updates the usage metrics, and adds the spend to the
// request's meter.
func (e *Engine) charge(ctx context.Context, call string, u cost.Usage) {
	if u.Tokens() == 0 {
		return
	}
	modelTokensTotal.WithLabelValues(call, u.Model, "input").Add(float64(u.InputTokens))
	modelTokensTotal.WithLabelValues(call, u.Model, "output").Add(float64(u.OutputTokens))

	usd, ok := e.calc.Price(u)
	if !ok {
		zap.L().Debug("scoring: no pricing for model", zap.String("model", u.Model))
	}
	modelCostUSDTotal.WithLabelValues(call, u.Model).Add(usd)
	cost.MeterFrom(ctx).Add(usd, u.Tokens())
}
