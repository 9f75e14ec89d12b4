package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds the collectors behind the optional /metrics scrape
// endpoint. It mirrors the OTel counters for deployments that scrape rather
// than push.
type PrometheusMetrics struct {
	runsTotal       *prometheus.CounterVec
	threatScore     *prometheus.HistogramVec
	runDuration     *prometheus.HistogramVec
	incidentsTotal  *prometheus.CounterVec
	redactionsTotal *prometheus.CounterVec
	trialsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a dedicated registry with all shield metrics
// registered.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_runs_total",
				Help: "Total number of protected runs by domain and outcome",
			},
			[]string{"domain", "outcome"},
		),

		threatScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shield_threat_score",
				Help:    "Threat scores assigned to incoming requests",
				Buckets: []float64{0.1, 0.2, 0.35, 0.5, 0.65, 0.8, 0.9, 1},
			},
			[]string{"domain"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shield_run_duration_seconds",
				Help:    "End to end run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"domain"},
		),

		incidentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_incidents_total",
				Help: "Total number of security incidents by domain and stage",
			},
			[]string{"domain", "stage"},
		),

		redactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_redactions_total",
				Help: "Total number of output redactions applied",
			},
			[]string{"domain"},
		),

		trialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_simulator_trials_total",
				Help: "Total number of simulated attack trials by category and outcome",
			},
			[]string{"category", "outcome"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.runsTotal,
		m.threatScore,
		m.runDuration,
		m.incidentsTotal,
		m.redactionsTotal,
		m.trialsTotal,
	)

	return m
}

// RecordRun records the outcome of one protected run.
func (m *PrometheusMetrics) RecordRun(domain string, blocked bool, score float64, duration time.Duration) {
	outcome := "allowed"
	if blocked {
		outcome = "blocked"
	}
	m.runsTotal.WithLabelValues(domain, outcome).Inc()
	m.threatScore.WithLabelValues(domain).Observe(score)
	m.runDuration.WithLabelValues(domain).Observe(duration.Seconds())
}

// RecordIncident records a security incident raised by a chain stage.
func (m *PrometheusMetrics) RecordIncident(domain, stage string) {
	m.incidentsTotal.WithLabelValues(domain, stage).Inc()
}

// RecordRedactions adds to the redaction counter.
func (m *PrometheusMetrics) RecordRedactions(domain string, n int) {
	if n <= 0 {
		return
	}
	m.redactionsTotal.WithLabelValues(domain).Add(float64(n))
}

// RecordTrial records the outcome of one simulated attack trial.
func (m *PrometheusMetrics) RecordTrial(category, outcome string) {
	m.trialsTotal.WithLabelValues(category, outcome).Inc()
}

// Handler returns the Prometheus scrape handler backed by the shield registry.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}
