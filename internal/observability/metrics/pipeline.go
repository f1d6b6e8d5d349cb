package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics tracks digest runs on an own registry. A nil receiver is a
// no-op so components can be wired without metrics in tests.
type PipelineMetrics struct {
	registry *prometheus.Registry

	papersTotal        *prometheus.CounterVec
	stageFailures      *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	runDuration        prometheus.Histogram
}

// NewPipelineMetrics registers all collectors.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	papersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arxivdigest",
			Subsystem: "pipeline",
			Name:      "papers_total",
			Help:      "Papers handled per run, by outcome.",
		},
		[]string{"outcome"},
	)
	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arxivdigest",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Terminal per-paper failures by pipeline stage.",
		},
		[]string{"stage"},
	)
	completionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arxivdigest",
			Subsystem: "llm",
			Name:      "completion_duration_seconds",
			Help:      "Completion API attempt duration by operation and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "arxivdigest",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Full digest run duration in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	registry.MustRegister(papersTotal, stageFailures, completionDuration, runDuration)

	return &PipelineMetrics{
		registry:           registry,
		papersTotal:        papersTotal,
		stageFailures:      stageFailures,
		completionDuration: completionDuration,
		runDuration:        runDuration,
	}
}

// Handler serves the registry for scraping.
func (m *PipelineMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AddPapers counts papers finishing with the given outcome (delivered,
// filtered, failed).
func (m *PipelineMetrics) AddPapers(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.papersTotal.WithLabelValues(outcome).Add(float64(count))
}

// AddStageFailure counts one terminal failure at the given stage.
func (m *PipelineMetrics) AddStageFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

// ObserveCompletion records one completion API attempt.
func (m *PipelineMetrics) ObserveCompletion(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.completionDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// ObserveRun records a full pipeline run duration.
func (m *PipelineMetrics) ObserveRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(duration.Seconds())
}
