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
	Requests           *prometheus.CounterVec
	BackendErrors      *prometheus.CounterVec
	IndexWriteFailures prometheus.Counter
	TraceDrops         prometheus.Counter
	RequestLatency     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
	stages   *stageWindow
}

// NewMetricsWithRegistry registers instruments on reg; gatherer backs Handler.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Routed requests by handler and outcome.",
		}, []string{"handler", "outcome"}),
		BackendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Generation backend failures by backend.",
		}, []string{"backend"}),
		IndexWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_write_failures_total",
			Help:      "Similarity index writes that failed or were dropped.",
		}),
		TraceDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_drops_total",
			Help:      "Trace events dropped because the trace queue was full.",
		}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_ms",
			Help:      "End-to-end request latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		}, []string{"handler"}),
		gatherer: gatherer,
		stages:   newStageWindow(256),
	}
}

func (m *Metrics) ObserveRequest(handlerID, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handlerID, outcome).Inc()
	m.RequestLatency.WithLabelValues(handlerID).Observe(float64(d.Milliseconds()))
	m.stages.Observe(StageTotal, durationMS(d))
}

func (m *Metrics) ObserveBackendError(backend string) {
	if m == nil {
		return
	}
	m.BackendErrors.WithLabelValues(backend).Inc()
	m.stages.ObserveIndicator("backend_error")
}

func (m *Metrics) ObserveIndexWriteFailure() {
	if m == nil {
		return
	}
	m.IndexWriteFailures.Inc()
}

func (m *Metrics) ObserveTraceDrop() {
	if m == nil {
		return
	}
	m.TraceDrops.Inc()
}

// ObserveStage records one request stage into the rolling latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, durationMS(d))
}

func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

// Handler exposes the registry this Metrics was registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return MetricsHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
