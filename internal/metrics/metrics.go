// Package metrics exposes Prometheus instrumentation for the hedge engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the engine updates. All collectors are
// registered on the registry passed to New.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	Trades         prometheus.Counter
	TradeFailures  prometheus.Counter
	Rebalances     prometheus.Counter
	ImbalanceBase  prometheus.Gauge
	ImbalanceQuote prometheus.Gauge
	SpreadObserved prometheus.Histogram
	SlippageBps    *prometheus.HistogramVec
	BookStaleness  *prometheus.GaugeVec
}

// New registers all engine collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hedge",
			Name:      "decisions_total",
			Help:      "Gate decisions by result (trade, skip).",
		}, []string{"result"}),
		Trades: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hedge",
			Name:      "trades_total",
			Help:      "Paired trades settled and verified.",
		}),
		TradeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hedge",
			Name:      "trade_failures_total",
			Help:      "Paired trades that failed dispatch or verification.",
		}),
		Rebalances: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hedge",
			Name:      "rebalances_total",
			Help:      "Corrective orders placed to flatten imbalance.",
		}),
		ImbalanceBase: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hedge",
			Name:      "imbalance_base",
			Help:      "Cumulative fill imbalance in base-asset units.",
		}),
		ImbalanceQuote: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hedge",
			Name:      "imbalance_quote",
			Help:      "Cumulative fill imbalance valued in quote units.",
		}),
		SpreadObserved: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hedge",
			Name:      "spread_observed",
			Help:      "Relative spread at each gate evaluation.",
			Buckets:   []float64{-0.005, -0.002, -0.001, 0, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.02},
		}),
		SlippageBps: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hedge",
			Name:      "slippage_bps",
			Help:      "Fill slippage against the decision reference price, basis points.",
			Buckets:   []float64{-20, -10, -5, -2, 0, 2, 5, 10, 20, 50},
		}, []string{"leg"}),
		BookStaleness: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hedge",
			Name:      "book_staleness_seconds",
			Help:      "Age of the most recent top-of-book snapshot per venue.",
		}, []string{"venue"}),
	}
}
