package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments used by the memory core. Tier
// write failures are not surfaced to callers, so these counters are the
// only durable record of them besides logs. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TierRequests    *prometheus.CounterVec
	TierErrors      *prometheus.CounterVec
	TurnsSaved      prometheus.Counter
	AssemblyLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TierRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_requests_total",
			Help:      "Tier operations by tier and operation.",
		}, []string{"tier", "op"}),
		TierErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_errors_total",
			Help:      "Failed tier operations by tier and operation.",
		}, []string{"tier", "op"}),
		TurnsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_saved_total",
			Help:      "Turns accepted by the write path.",
		}),
		AssemblyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_assembly_ms",
			Help:      "End-to-end context assembly latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
	}
}

func (m *Metrics) ObserveTier(tierName, op string, err error) {
	if m == nil {
		return
	}
	m.TierRequests.WithLabelValues(tierName, op).Inc()
	if err != nil {
		m.TierErrors.WithLabelValues(tierName, op).Inc()
	}
}

func (m *Metrics) ObserveAssembly(d time.Duration) {
	if m == nil {
		return
	}
	m.AssemblyLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncTurnsSaved() {
	if m == nil {
		return
	}
	m.TurnsSaved.Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
