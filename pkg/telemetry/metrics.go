package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the planner. Every method is safe
// on a nil receiver and on a disabled instance.
type Metrics struct {
	config MetricsConfig

	// Planning request metrics
	planRequests   *prometheus.CounterVec
	planDuration   *prometheus.HistogramVec
	activeRequests prometheus.Gauge

	// Search metrics
	horizonAttempts *prometheus.CounterVec
	solverDuration  *prometheus.HistogramVec
	assertions      *prometheus.CounterVec
	unsatCoreSize   prometheus.Histogram

	// Fact store metrics
	factQueries       *prometheus.CounterVec
	factQueryDuration *prometheus.HistogramVec
	modelReloads      *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		planRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_requests_total",
				Help:      "Total number of planning requests by outcome",
			},
			[]string{"status"},
		),
		planDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_duration_seconds",
				Help:      "Duration of planning requests in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_plan_requests",
				Help:      "Current number of planning requests in flight",
			},
		),
		horizonAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "horizon_attempts_total",
				Help:      "Total number of horizon attempts by outcome",
			},
			[]string{"outcome"},
		),
		solverDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solver_duration_seconds",
				Help:      "Duration of solver calls in seconds",
				Buckets:   buckets,
			},
			[]string{"backend", "status"},
		),
		assertions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assertions_generated_total",
				Help:      "Total number of assertions emitted per generator",
			},
			[]string{"generator"},
		),
		unsatCoreSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unsat_core_size",
				Help:      "Number of assertions in reported minimal unsat cores",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		factQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fact_queries_total",
				Help:      "Total number of fact queries by cache outcome",
			},
			[]string{"dialect", "outcome"},
		),
		factQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fact_query_duration_seconds",
				Help:      "Duration of fact queries in seconds",
				Buckets:   buckets,
			},
			[]string{"dialect"},
		),
		modelReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_reloads_total",
				Help:      "Total number of model file reloads",
			},
			[]string{"status"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.planRequests,
		m.planDuration,
		m.activeRequests,
		m.horizonAttempts,
		m.solverDuration,
		m.assertions,
		m.unsatCoreSize,
		m.factQueries,
		m.factQueryDuration,
		m.modelReloads,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Planning Metrics

// RecordPlanStarted marks a planning request as in flight.
func (m *Metrics) RecordPlanStarted() {
	if !m.enabled() {
		return
	}
	m.activeRequests.Inc()
}

// RecordPlanCompleted records a finished planning request with its status and duration.
func (m *Metrics) RecordPlanCompleted(status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.planRequests.WithLabelValues(status).Inc()
	m.planDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRequests.Dec()
}

// RecordHorizonAttempt records the outcome of one horizon attempt.
func (m *Metrics) RecordHorizonAttempt(outcome string) {
	if !m.enabled() {
		return
	}
	m.horizonAttempts.WithLabelValues(outcome).Inc()
}

// RecordSolverCall records a solver call.
func (m *Metrics) RecordSolverCall(backend, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.solverDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
}

// RecordAssertions adds the number of assertions a generator emitted.
func (m *Metrics) RecordAssertions(generator string, count int) {
	if !m.enabled() {
		return
	}
	m.assertions.WithLabelValues(generator).Add(float64(count))
}

// RecordUnsatCore records the size of a reported unsat core.
func (m *Metrics) RecordUnsatCore(size int) {
	if !m.enabled() {
		return
	}
	m.unsatCoreSize.Observe(float64(size))
}

// Fact Store Metrics

// RecordFactQuery records a fact query with its cache outcome (hit, miss, error).
func (m *Metrics) RecordFactQuery(dialect, outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.factQueries.WithLabelValues(dialect, outcome).Inc()
	m.factQueryDuration.WithLabelValues(dialect).Observe(duration.Seconds())
}

// RecordModelReload records a model reload attempt.
func (m *Metrics) RecordModelReload(err error) {
	if !m.enabled() {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.modelReloads.WithLabelValues(status).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if !m.enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
