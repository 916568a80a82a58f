package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus instruments and the in-memory collector.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	collector         *Collector
	jobsTotal         *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	embeddingFailures prometheus.Counter
	jobsRunning       prometheus.Gauge
}

// New creates the instruments on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry:  reg,
		collector: NewCollector(),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "jobs_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docingest",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		embeddingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "embedding_failures_total",
			Help:      "Chunks stored with an empty embedding after a provider failure.",
		}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docingest",
			Name:      "jobs_running",
			Help:      "Pipelines currently executing.",
		}),
	}
	reg.MustRegister(
		m.jobsTotal,
		m.stageDuration,
		m.embeddingFailures,
		m.jobsRunning,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.collector.RecordTiming(stage, d)
}

// JobFinished counts a job reaching status.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}

// EmbeddingFailures adds n failed chunk embeddings.
func (m *Metrics) EmbeddingFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.embeddingFailures.Add(float64(n))
}

// JobStarted and JobDone track running pipelines.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsRunning.Inc()
}

func (m *Metrics) JobDone() {
	if m == nil {
		return
	}
	m.jobsRunning.Dec()
}

// Snapshot returns the in-memory timing snapshot.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return m.collector.Snapshot()
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
