// Package metrics holds the Prometheus instrumentation for the
// pipeline: per-stage latency, LLM call volume, and GraphRAG retrieval
// latency (§5 resource model, §4.9 stage latencies).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the pipeline registers. A nil
// *Metrics is never passed around; call New once at startup and share
// the handle.
type Metrics struct {
	StageDuration *prometheus.HistogramVec
	StageRuns     *prometheus.CounterVec
	StageFailures *prometheus.CounterVec

	LLMCalls        *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec
	LLMRetries      *prometheus.CounterVec

	EmbeddingBatches *prometheus.CounterVec
	EmbeddingVectors prometheus.Counter

	RetrievalDuration *prometheus.HistogramVec
	RetrievalQueries  *prometheus.CounterVec

	WorkflowsInFlight prometheus.Gauge
}

// New creates and registers every collector against the default
// registry under the given namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "insurekb"
	}

	return &Metrics{
		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of one workflow document stage run in seconds",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 1800},
			},
			[]string{"stage", "status"},
		),
		StageRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_runs_total",
				Help:      "Total number of per-document stage runs started",
			},
			[]string{"stage"},
		),
		StageFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of per-document stage runs that failed",
			},
			[]string{"stage", "error_type"},
		),

		LLMCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Total number of LLM completion calls by capability",
			},
			[]string{"capability", "status"},
		),
		LLMCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_call_duration_seconds",
				Help:      "Duration of LLM completion calls in seconds",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 90},
			},
			[]string{"capability"},
		),
		LLMRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_retries_total",
				Help:      "Total number of LLM call retries by reason",
			},
			[]string{"capability", "reason"},
		),

		EmbeddingBatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_batches_total",
				Help:      "Total number of embedding batch calls",
			},
			[]string{"kind"},
		),
		EmbeddingVectors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_vectors_total",
				Help:      "Total number of vectors produced",
			},
		),

		RetrievalDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_stage_duration_seconds",
				Help:      "Duration of one GraphRAG retrieval pipeline stage in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		RetrievalQueries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_queries_total",
				Help:      "Total number of GraphRAG queries by resolved intent",
			},
			[]string{"intent", "fallback_mode"},
		),

		WorkflowsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workflows_in_flight",
				Help:      "Number of workflows currently running",
			},
		),
	}
}

// ObserveStage records one per-document stage run's outcome and
// duration.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	m.StageRuns.WithLabelValues(stage).Inc()
	m.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
	if status == "failed" {
		m.StageFailures.WithLabelValues(stage, "unspecified").Inc()
	}
}

// ObserveLLMCall records one completion call.
func (m *Metrics) ObserveLLMCall(capability, status string, d time.Duration) {
	m.LLMCalls.WithLabelValues(capability, status).Inc()
	m.LLMCallDuration.WithLabelValues(capability).Observe(d.Seconds())
}

// ObserveRetrievalStage records one GraphRAG pipeline stage's latency.
func (m *Metrics) ObserveRetrievalStage(stage string, d time.Duration) {
	m.RetrievalDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRetrievalQuery records the terminal outcome of one GraphRAG
// query.
func (m *Metrics) ObserveRetrievalQuery(intent string, fallbackMode bool) {
	m.RetrievalQueries.WithLabelValues(intent, boolLabel(fallbackMode)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
