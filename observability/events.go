package observability

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"lottochain/core/events"
)

type eventMetrics struct {
	emitted  *prometheus.CounterVec
	lamports *prometheus.CounterVec
	dropped  *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// lamport flow attribute carried by each event type that moves funds.
var lamportFlows = map[string]struct{ flow, attr string }{
	"lotto.round.joined":   {flow: "purchase", attr: "lamportsPaid"},
	"lotto.payout.claimed": {flow: "payout", attr: "amount"},
	"lotto.refund.claimed": {flow: "refund", attr: "amount"},
	"lotto.round.settled":  {flow: "treasury_cut", attr: "treasuryCutLamports"},
}

// Events returns the metrics registry tracking committed ledger events. It
// satisfies events.Emitter so the runtime can fan events into it directly.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed ledger events segmented by type.",
			}, []string{"type"}),
			lamports: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "events",
				Name:      "lamports_total",
				Help:      "Lamports moved by committed operations segmented by flow.",
			}, []string{"flow"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events discarded by slow downstream sinks.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.lamports, eventRegistry.dropped)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	kind := strings.TrimSpace(evt.EventType())
	if kind == "" {
		kind = "unknown"
	}
	m.emitted.WithLabelValues(kind).Inc()
	flow, ok := lamportFlows[kind]
	if !ok {
		return
	}
	payload := events.Render(evt)
	amount, err := strconv.ParseUint(payload.Attr(flow.attr), 10, 64)
	if err != nil || amount == 0 {
		return
	}
	m.lamports.WithLabelValues(flow.flow).Add(float64(amount))
}

// RecordDropped counts events a sink had to discard.
func (m *eventMetrics) RecordDropped(sink string) {
	if m == nil {
		return
	}
	if sink == "" {
		sink = "unknown"
	}
	m.dropped.WithLabelValues(sink).Inc()
}
