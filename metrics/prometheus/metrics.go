// Package prometheus provides Prometheus metrics exporters for the prompt
// execution pipeline.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "promptforge"

var (
	// stageDuration is a histogram of stage processing duration in seconds.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Histogram of pipeline stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// stagesTotal is a counter of stage executions by outcome.
	stagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_total",
			Help:      "Total number of stage executions",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	// pipelinesActive is a gauge of currently executing requests.
	pipelinesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipelines_active",
			Help:      "Number of currently executing pipeline requests",
		},
	)

	// pipelineDuration is a histogram of total pipeline execution duration.
	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Histogram of total pipeline execution duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"}, // status: success, error
	)

	// gateEvaluationsTotal is a counter of gate evaluations by outcome.
	gateEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_evaluations_total",
			Help:      "Total number of gate evaluations",
		},
		[]string{"gate", "status"}, // status: passed, failed
	)

	// gateRetriesTotal is a counter of gate retry responses emitted.
	gateRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_retries_total",
			Help:      "Total number of gate retry responses emitted",
		},
		[]string{"gate"},
	)

	// scriptDuration is a histogram of script tool execution duration.
	scriptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "script_duration_seconds",
			Help:      "Duration of script tool executions in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"tool"},
	)

	// scriptsTotal is a counter of script tool executions.
	scriptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scripts_total",
			Help:      "Total number of script tool executions",
		},
		[]string{"tool", "status"}, // status: success, error
	)

	// resourceReloadsTotal is a counter of registry hot-reload events.
	resourceReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_reloads_total",
			Help:      "Total number of registry hot-reload events",
		},
		[]string{"kind", "change"}, // change: added, modified, removed
	)

	// sessionCASRetriesTotal counts compare-and-swap conflicts on the
	// chain session store.
	sessionCASRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_cas_retries_total",
			Help:      "Total number of session blueprint CAS conflicts",
		},
	)

	// chainsActive is a gauge of in-flight chain sessions.
	chainsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chains_active",
			Help:      "Number of chain sessions with a stored blueprint",
		},
	)
)

// allMetrics lists every collector for bulk registration.
var allMetrics = []prometheus.Collector{
	stageDuration,
	stagesTotal,
	pipelinesActive,
	pipelineDuration,
	gateEvaluationsTotal,
	gateRetriesTotal,
	scriptDuration,
	scriptsTotal,
	resourceReloadsTotal,
	sessionCASRetriesTotal,
	chainsActive,
}

// RecordStage records a completed stage execution.
func RecordStage(stage, status string, seconds float64) {
	stageDuration.WithLabelValues(stage).Observe(seconds)
	stagesTotal.WithLabelValues(stage, status).Inc()
}

// RecordPipelineStart increments the active pipeline gauge.
func RecordPipelineStart() {
	pipelinesActive.Inc()
}

// RecordPipelineEnd records a finished pipeline run.
func RecordPipelineEnd(status string, seconds float64) {
	pipelinesActive.Dec()
	pipelineDuration.WithLabelValues(status).Observe(seconds)
}

// RecordGateEvaluation records a gate verdict.
func RecordGateEvaluation(gate string, passed bool) {
	status := "passed"
	if !passed {
		status = "failed"
	}
	gateEvaluationsTotal.WithLabelValues(gate, status).Inc()
}

// RecordGateRetry records a retry response emitted for a failing gate.
func RecordGateRetry(gate string) {
	gateRetriesTotal.WithLabelValues(gate).Inc()
}

// RecordScript records a script tool execution.
func RecordScript(tool, status string, seconds float64) {
	scriptDuration.WithLabelValues(tool).Observe(seconds)
	scriptsTotal.WithLabelValues(tool, status).Inc()
}

// RecordResourceReload records a registry hot-reload event.
func RecordResourceReload(kind, change string) {
	resourceReloadsTotal.WithLabelValues(kind, change).Inc()
}

// RecordSessionCASRetry records a blueprint CAS conflict.
func RecordSessionCASRetry() {
	sessionCASRetriesTotal.Inc()
}

// SetChainsActive sets the in-flight chain gauge.
func SetChainsActive(n int) {
	chainsActive.Set(float64(n))
}
