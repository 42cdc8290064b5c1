package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics records pipeline activity in Prometheus.
type Metrics struct {
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rebuilds      *prometheus.CounterVec
	chunks        prometheus.Gauge
}

// NewMetrics registers the pipeline metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stageRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resume_stage_runs_total",
				Help: "Total number of pipeline stage executions by stage and status",
			},
			[]string{"stage", "status"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resume_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"stage"},
		),
		rebuilds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resume_index_rebuilds_total",
				Help: "Total number of knowledge index rebuilds by status",
			},
			[]string{"status"},
		),
		chunks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "resume_index_chunks",
				Help: "Number of chunks in the current knowledge index",
			},
		),
	}
}

// ObserveStage records one stage execution. A nil receiver records nothing.
func (m *Metrics) ObserveStage(stage string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	m.stageRuns.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveRebuild records a knowledge index rebuild and its chunk count.
func (m *Metrics) ObserveRebuild(success bool, chunks int) {
	if m == nil {
		return
	}
	if !success {
		m.rebuilds.WithLabelValues(StatusError).Inc()
		return
	}
	m.rebuilds.WithLabelValues(StatusSuccess).Inc()
	m.chunks.Set(float64(chunks))
}

// ObserveDispose records that the index was torn down.
func (m *Metrics) ObserveDispose() {
	if m == nil {
		return
	}
	m.chunks.Set(0)
}
