package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	runTotal    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	breakerOpen      *prometheus.GaugeVec
	candidatePenalty *prometheus.GaugeVec

	poolSize           *prometheus.GaugeVec
	poolEvictionsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "run_total",
					Help: "Total agent runs by provider and finish reason.",
				},
				[]string{"provider", "reason"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "run_duration_seconds",
					Help:    "Agent run attempt duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
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
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			breakerOpen: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "routing_breaker_open",
					Help: "Circuit breaker open state by ref (1 open, 0 closed).",
				},
				[]string{"ref"},
			),
			candidatePenalty: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "routing_candidate_penalty",
					Help: "Most recent router penalty score by ref.",
				},
				[]string{"ref"},
			),
			poolSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "memory_pool_size",
					Help: "Current entry count per memory pool cache.",
				},
				[]string{"cache"},
			),
			poolEvictionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_pool_evictions_total",
					Help: "Total evictions (capacity or TTL) per memory pool cache.",
				},
				[]string{"cache"},
			),
		}

		prometheus.MustRegister(
			m.runTotal,
			m.runDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.breakerOpen,
			m.candidatePenalty,
			m.poolSize,
			m.poolEvictionsTotal,
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

func RecordRun(provider string, duration time.Duration, reason string) {
	m := getMetrics()
	m.runTotal.WithLabelValues(provider, reason).Inc()
	m.runDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func SetBreakerOpen(ref string, open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	getMetrics().breakerOpen.WithLabelValues(ref).Set(value)
}

func SetCandidatePenalty(ref string, penalty int) {
	getMetrics().candidatePenalty.WithLabelValues(ref).Set(float64(penalty))
}

func SetPoolSize(cache string, size int) {
	getMetrics().poolSize.WithLabelValues(cache).Set(float64(size))
}

func RecordPoolEviction(cache string) {
	getMetrics().poolEvictionsTotal.WithLabelValues(cache).Inc()
}
