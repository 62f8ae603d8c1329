package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	executionTotal    *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	installTotal      *prometheus.CounterVec

	deploymentTotal    *prometheus.CounterVec
	deploymentDuration prometheus.Histogram

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	llmCallTotal    *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmRetriesTotal *prometheus.CounterVec

	stepTotal       *prometheus.CounterVec
	stepIterations  prometheus.Histogram
	analysisTotal   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	progressDropped prometheus.Counter

	knowledgeSearchDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			executionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "code_execution_total",
					Help: "Total code executions by backend and status.",
				},
				[]string{"backend", "status"},
			),
			executionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "code_execution_duration_seconds",
					Help:    "Code execution duration in seconds by backend.",
					Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
				},
				[]string{"backend"},
			),
			installTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "package_install_total",
					Help: "Total package installations by backend and status.",
				},
				[]string{"backend", "status"},
			),
			deploymentTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "container_deployment_total",
					Help: "Total container deployments by status.",
				},
				[]string{"status"},
			),
			deploymentDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "container_deployment_duration_seconds",
					Help:    "Container build and deploy duration in seconds.",
					Buckets: []float64{5, 10, 20, 30, 60, 90, 120, 180},
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			llmCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_call_total",
					Help: "Total model calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			llmCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "llm_call_duration_seconds",
					Help:    "Model call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			llmRetriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_retries_total",
					Help: "Total model call retries by provider.",
				},
				[]string{"provider"},
			),
			stepTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "analysis_step_total",
					Help: "Total analysis steps by terminal status.",
				},
				[]string{"status"},
			),
			stepIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "analysis_step_iterations",
					Help:    "Worker loop iterations consumed per step.",
					Buckets: []float64{1, 2, 3, 5, 10, 20, 40},
				},
			),
			analysisTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "analysis_total",
					Help: "Total analyses by terminal status.",
				},
				[]string{"status"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active execution session count.",
				},
			),
			progressDropped: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "progress_events_dropped_total",
					Help: "Progress events dropped due to a full subscriber buffer.",
				},
			),
			knowledgeSearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "knowledge_search_duration_seconds",
					Help:    "Knowledge base search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.executionTotal,
			m.executionDuration,
			m.installTotal,
			m.deploymentTotal,
			m.deploymentDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.llmCallTotal,
			m.llmCallDuration,
			m.llmRetriesTotal,
			m.stepTotal,
			m.stepIterations,
			m.analysisTotal,
			m.activeSessions,
			m.progressDropped,
			m.knowledgeSearchDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordExecution(backend string, duration time.Duration, success bool) {
	m := getMetrics()
	m.executionTotal.WithLabelValues(backend, statusLabel(success)).Inc()
	m.executionDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func RecordInstall(backend string, success bool) {
	getMetrics().installTotal.WithLabelValues(backend, statusLabel(success)).Inc()
}

func RecordDeployment(duration time.Duration, success bool) {
	m := getMetrics()
	m.deploymentTotal.WithLabelValues(statusLabel(success)).Inc()
	m.deploymentDuration.Observe(duration.Seconds())
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordLLMCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.llmCallTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.llmCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordLLMRetry(provider string) {
	getMetrics().llmRetriesTotal.WithLabelValues(provider).Inc()
}

func RecordStep(status string, iterations int) {
	m := getMetrics()
	m.stepTotal.WithLabelValues(status).Inc()
	m.stepIterations.Observe(float64(iterations))
}

func RecordAnalysis(status string) {
	getMetrics().analysisTotal.WithLabelValues(status).Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordProgressDropped() {
	getMetrics().progressDropped.Inc()
}

func RecordKnowledgeSearch(duration time.Duration) {
	getMetrics().knowledgeSearchDuration.Observe(duration.Seconds())
}
