// Package metrics exposes batch and per-user counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leetsync_stats"

// Batch outcomes.
const (
	BatchSucceeded = "succeeded"
	BatchPartial   = "partial"
	BatchFailed    = "failed"
)

// User outcomes.
const (
	UserCommitted   = "committed"
	UserSkipped     = "skipped"
	UserAlreadyDone = "already_done"
	UserFailed      = "failed"
)

// Metrics holds the collectors on a private registry, so several instances
// can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	batchRuns     *prometheus.CounterVec
	users         *prometheus.CounterVec
	batchDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
	activeUsers   prometheus.Gauge
	jobRuns       *prometheus.CounterVec
	jobsRunning   *prometheus.GaugeVec
	breakerState  *prometheus.GaugeVec
}

// New registers every collector, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Daily stats batches by outcome.",
		}, []string{"outcome"}),
		users: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_processed_total",
			Help:      "Per-user aggregation results by outcome.",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a daily stats batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last batch with no failed user.",
		}),
		activeUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_active_users",
			Help:      "Active users found by the most recent batch.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduled job executions by job and result.",
		}, []string{"job", "result"}),
		jobsRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_jobs_running",
			Help:      "Scheduler jobs currently executing.",
		}, []string{"job"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
	}

	m.registry.MustRegister(
		m.batchRuns,
		m.users,
		m.batchDuration,
		m.lastSuccess,
		m.activeUsers,
		m.jobRuns,
		m.jobsRunning,
		m.breakerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordBatch records one finished batch.
func (m *Metrics) RecordBatch(outcome string, activeUsers int, d time.Duration, finishedAt time.Time) {
	m.batchRuns.WithLabelValues(outcome).Inc()
	m.batchDuration.Observe(d.Seconds())
	m.activeUsers.Set(float64(activeUsers))
	if outcome == BatchSucceeded {
		m.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// RecordUser records one user's result.
func (m *Metrics) RecordUser(outcome string) {
	m.users.WithLabelValues(outcome).Inc()
}

// JobStarted marks a scheduler execution as in flight.
func (m *Metrics) JobStarted(job string) {
	m.jobsRunning.WithLabelValues(job).Inc()
}

// RecordJob records one finished scheduler execution.
func (m *Metrics) RecordJob(job string, success bool) {
	m.jobsRunning.WithLabelValues(job).Dec()
	result := "success"
	if !success {
		result = "failure"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

// SetBreakerState records a circuit breaker transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
