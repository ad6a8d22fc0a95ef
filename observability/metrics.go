package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics records pool engine and price refresh activity for the poold
// service.
type PoolMetrics struct {
	priceRefreshes  *prometheus.CounterVec
	stagedLiability *prometheus.GaugeVec
	amoBorrowed     prometheus.Gauge
	collateralPrice *prometheus.GaugeVec
	requestLatency  *prometheus.HistogramVec
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// Pool returns the lazily-initialised pool metrics registry.
func Pool() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			priceRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dollarpool",
				Subsystem: "oracle",
				Name:      "price_refreshes_total",
				Help:      "Collateral price refresh attempts segmented by symbol and outcome.",
			}, []string{"symbol", "outcome"}),
			stagedLiability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dollarpool",
				Subsystem: "pool",
				Name:      "staged_collateral",
				Help:      "Staged redemption liabilities per collateral, in raw token units.",
			}, []string{"symbol"}),
			amoBorrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dollarpool",
				Subsystem: "amo",
				Name:      "total_borrowed",
				Help:      "Net collateral lent out to AMO strategies.",
			}),
			collateralPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dollarpool",
				Subsystem: "oracle",
				Name:      "collateral_price_usd",
				Help:      "Cached collateral USD price on the 6-decimal scale.",
			}, []string{"symbol"}),
			requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dollarpool",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for poold HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
		}
		prometheus.MustRegister(
			poolRegistry.priceRefreshes,
			poolRegistry.stagedLiability,
			poolRegistry.amoBorrowed,
			poolRegistry.collateralPrice,
			poolRegistry.requestLatency,
		)
	})
	return poolRegistry
}

// ObservePriceRefresh records one refresh attempt for the collateral symbol.
func (m *PoolMetrics) ObservePriceRefresh(symbol string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.priceRefreshes.WithLabelValues(normalizeLabel(symbol), outcome).Inc()
}

// SetStagedLiability publishes the staged redemption total for the symbol.
func (m *PoolMetrics) SetStagedLiability(symbol string, amount *big.Int) {
	if m == nil {
		return
	}
	m.stagedLiability.WithLabelValues(normalizeLabel(symbol)).Set(bigFloat(amount))
}

// SetAmoBorrowed publishes the net AMO borrow total.
func (m *PoolMetrics) SetAmoBorrowed(total *big.Int) {
	if m == nil {
		return
	}
	m.amoBorrowed.Set(bigFloat(total))
}

// SetCollateralPrice publishes the cached 6-decimal USD price for the symbol.
func (m *PoolMetrics) SetCollateralPrice(symbol string, price *big.Int) {
	if m == nil {
		return
	}
	m.collateralPrice.WithLabelValues(normalizeLabel(symbol)).Set(bigFloat(price))
}

// ObserveRequest records the latency of one HTTP request.
func (m *PoolMetrics) ObserveRequest(route, method string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(normalizeLabel(route), strings.ToUpper(method)).Observe(elapsed.Seconds())
}

func normalizeLabel(v string) string {
	trimmed := strings.ToLower(strings.TrimSpace(v))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
