package pipeline

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// processing pipeline.
type Metrics struct {
	StagesCompleted *prometheus.CounterVec   // labels: stage
	StageFailures   *prometheus.CounterVec   // labels: stage
	StageDuration   *prometheus.HistogramVec // labels: stage
	ChunksStale     prometheus.Counter
	ChunksComplete  prometheus.Counter
	WorkersActive   prometheus.Gauge

	registry *prometheus.Registry
}

func newMetrics() *Metrics {
	return &Metrics{
		StagesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bathy",
			Name:      "pipeline_stages_completed_total",
			Help:      "Chunk stage executions completed, by stage.",
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bathy",
			Name:      "pipeline_stage_failures_total",
			Help:      "Chunk stage executions that returned an error, by stage.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bathy",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Wall time per chunk stage execution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}, []string{"stage"}),
		ChunksStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bathy",
			Name:      "pipeline_chunks_stale_total",
			Help:      "Chunks invalidated by an input change and rescheduled.",
		}),
		ChunksComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bathy",
			Name:      "pipeline_chunks_complete_total",
			Help:      "Chunks that reached the complete state.",
		}),
		WorkersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bathy",
			Name:      "pipeline_workers_active",
			Help:      "Workers currently executing a chunk stage.",
		}),
	}
}

// NewMetrics creates the pipeline metrics on a private registry, so
// repeated runs in one process never collide with each other.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.StagesCompleted,
		m.StageFailures,
		m.StageDuration,
		m.ChunksStale,
		m.ChunksComplete,
		m.WorkersActive,
	)
	return m
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
