package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// PipelineMetrics tracks stage runs and the volume of records they move.
type PipelineMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	records  *prometheus.CounterVec
	dropped  prometheus.Counter
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
	}, []string{"stage"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_runs_total",
		Help:      "Pipeline stage runs by outcome and error code.",
	}, []string{"stage", "outcome", "code"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_records_total",
		Help:      "Records produced by pipeline stages.",
	}, []string{"stage", "kind"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unknown_skus_dropped_total",
		Help:      "Aggregated SKUs dropped because the catalog does not know them.",
	})
	reg.MustRegister(duration, runs, records, dropped)
	return &PipelineMetrics{duration: duration, runs: runs, records: records, dropped: dropped}
}

// ObserveStage records a finished stage. code is empty on success.
func (m *PipelineMetrics) ObserveStage(stage string, elapsed time.Duration, code string) {
	if m == nil || m.duration == nil {
		return
	}
	stage = normalizeLabel(stage)
	m.duration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if code == "" {
		m.runs.WithLabelValues(stage, OutcomeSuccess, "").Inc()
		return
	}
	m.runs.WithLabelValues(stage, OutcomeFailure, code).Inc()
}

// AddRecords adds n records of the given kind (orders, inventory_rows, items, files...).
func (m *PipelineMetrics) AddRecords(stage, kind string, n int) {
	if m == nil || m.records == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(normalizeLabel(stage), normalizeLabel(kind)).Add(float64(n))
}

func (m *PipelineMetrics) AddDropped(n int) {
	if m == nil || m.dropped == nil || n <= 0 {
		return
	}
	m.dropped.Add(float64(n))
}
