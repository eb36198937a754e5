package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing, which keeps unit tests free of
// global-registry collisions.
type Metrics struct {
	InputResults       *prometheus.CounterVec
	ActiveHosts        prometheus.Gauge
	BatchEvents        *prometheus.CounterVec
	HostDeliveryErrors *prometheus.CounterVec
	RenderLatency      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		InputResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_results_total",
			Help:      "Input submissions by admission result.",
		}, []string{"result"}),
		ActiveHosts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_hosts",
			Help:      "Number of registered broadcast hosts.",
		}),
		BatchEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_events_total",
			Help:      "Stream batch events by type (flushed, dropped).",
		}, []string{"event"}),
		HostDeliveryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_delivery_errors_total",
			Help:      "Per-host delivery failures by kind (transient, gone).",
		}, []string{"kind"}),
		RenderLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_cycle_latency_ms",
			Help:      "Latency of one render cycle in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 75, 100, 150, 300},
		}),
	}
}

func (m *Metrics) IncInputResult(result string) {
	if m == nil {
		return
	}
	m.InputResults.WithLabelValues(result).Inc()
}

func (m *Metrics) SetActiveHosts(n int) {
	if m == nil {
		return
	}
	m.ActiveHosts.Set(float64(n))
}

func (m *Metrics) IncBatchEvent(event string) {
	if m == nil {
		return
	}
	m.BatchEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) IncDeliveryError(kind string) {
	if m == nil {
		return
	}
	m.HostDeliveryErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRenderLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.RenderLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
