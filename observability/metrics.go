package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	lottoMetricsOnce sync.Once
	lottoRegistry    *LottoMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lotto",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "duplicate" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LottoMetrics tracks ledger operations executed by the runtime.
type LottoMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	airdrops   prometheus.Counter
	slot       prometheus.Gauge
}

// Lotto returns the lazily-initialised ledger metrics registry.
func Lotto() *LottoMetrics {
	lottoMetricsOnce.Do(func() {
		lottoRegistry = &LottoMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation, outcome and error kind.",
			}, []string{"op", "outcome", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lotto",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including lock wait.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			}, []string{"op"}),
			airdrops: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "ledger",
				Name:      "airdrop_lamports_total",
				Help:      "Lamports minted through the development faucet.",
			}),
			slot: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lotto",
				Subsystem: "ledger",
				Name:      "slot",
				Help:      "Slot observed by the most recent ledger operation.",
			}),
		}
		prometheus.MustRegister(
			lottoRegistry.operations,
			lottoRegistry.latency,
			lottoRegistry.airdrops,
			lottoRegistry.slot,
		)
	})
	return lottoRegistry
}

// ObserveOperation records one completed operation. An empty kind denotes
// success.
func (m *LottoMetrics) ObserveOperation(op, kind string, slot uint64, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if kind != "" {
		outcome = "rejected"
	} else {
		kind = "none"
	}
	m.operations.WithLabelValues(op, outcome, kind).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
	m.slot.Set(float64(slot))
}

// RecordAirdrop adds minted lamports to the faucet counter.
func (m *LottoMetrics) RecordAirdrop(lamports uint64) {
	if m == nil {
		return
	}
	m.airdrops.Add(float64(lamports))
}
