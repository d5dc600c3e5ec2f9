package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry
	turns    *latencyWindow

	ActiveCalls         prometheus.Gauge
	ActiveConversations prometheus.Gauge
	CallEvents          *prometheus.CounterVec
	TurnOutcomes        *prometheus.CounterVec
	WebhookRequests     *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	ResponderLatency    prometheus.Histogram
	EventSubscribers    prometheus.Gauge
}

// NewMetrics registers instruments on a dedicated registry so several
// instances (one per test, say) never collide.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		turns:    newLatencyWindow(256),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls that have not reached a terminal lifecycle state.",
		}),
		ActiveConversations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Conversations currently held in memory.",
		}),
		CallEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		TurnOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Speech turns by outcome.",
		}, []string{"outcome"}),
		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Provider webhook requests by endpoint and result.",
		}, []string{"endpoint", "result"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream provider errors by provider and code.",
		}, []string{"provider", "code"}),
		ResponderLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "responder_latency_ms",
			Help:      "Chat backend round trip latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 750, 1000, 1500, 2500, 4000, 8000},
		}),
		EventSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Open call event websocket subscribers.",
		}),
	}
}

func (m *Metrics) ObserveResponderLatency(d time.Duration) {
	ms := float64(d.Milliseconds())
	m.ResponderLatency.Observe(ms)
	m.turns.observe(StageResponder, ms)
}

// ObserveTurn records the full webhook-to-document latency of a speech turn
// together with its outcome.
func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	m.TurnOutcomes.WithLabelValues(outcome).Inc()
	m.turns.observe(StageTurnTotal, float64(d.Milliseconds()))
	m.turns.countOutcome(outcome)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	return m.turns.snapshot(time.Now().UTC())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
