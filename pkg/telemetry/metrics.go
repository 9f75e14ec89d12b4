package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

var (
	metricsOnce         sync.Once
	metricsInitErr      error
	runCounter          metric.Int64Counter
	blockCounter        metric.Int64Counter
	incidentCounter     metric.Int64Counter
	redactionCounter    metric.Int64Counter
	trialCounter        metric.Int64Counter
	runLatencyHistogram metric.Float64Histogram
)

// Trial outcome labels recorded on the simulator counter.
const (
	TrialBlocked   = "blocked"
	TrialBypassed  = "bypassed"
	TrialContained = "contained"
)

// RunMetrics captures the fields needed to record one protected run.
type RunMetrics struct {
	Domain      string
	Blocked     bool
	ThreatLevel domain.ThreatLevel
	Redactions  int
	Incidents   int
	Duration    time.Duration
}

// RecordRun emits the counters and histograms that describe one orchestrator run.
func RecordRun(ctx context.Context, m RunMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("shield.domain", m.Domain),
		attribute.Bool("shield.blocked", m.Blocked),
		attribute.String("threat.level", string(m.ThreatLevel)),
	}

	runCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		runLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
	if m.Blocked {
		blockCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.Redactions > 0 {
		redactionCounter.Add(ctx, int64(m.Redactions), metric.WithAttributes(attrs...))
	}
	if m.Incidents > 0 {
		incidentCounter.Add(ctx, int64(m.Incidents), metric.WithAttributes(attrs...))
	}
}

// RecordTrial emits the counter describing one simulated attack trial.
func RecordTrial(ctx context.Context, category domain.AttackCategory, outcome string) {
	if err := ensureMetrics(); err != nil {
		return
	}

	trialCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("attack.category", string(category)),
		attribute.String("trial.outcome", outcome),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("agentshield")

		runCounter, metricsInitErr = meter.Int64Counter(
			"shield.runs_total",
			metric.WithDescription("Protected runs partitioned by domain and verdict"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		blockCounter, metricsInitErr = meter.Int64Counter(
			"shield.blocked_total",
			metric.WithDescription("Runs blocked before reaching the agent"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		incidentCounter, metricsInitErr = meter.Int64Counter(
			"shield.incidents_total",
			metric.WithDescription("Security incidents recorded across chain stages"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		redactionCounter, metricsInitErr = meter.Int64Counter(
			"shield.redactions_total",
			metric.WithDescription("Output redactions applied by the response filter"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		trialCounter, metricsInitErr = meter.Int64Counter(
			"shield.simulator.trials_total",
			metric.WithDescription("Simulated attack trials partitioned by category and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		runLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"shield.run.duration_ms",
			metric.WithDescription("Observed end to end run latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordVerdict attaches a coarse-grained scoring event to the provided span
// without leaking prompt text.
func RecordVerdict(span trace.Span, v domain.Verdict) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.AddEvent("security.verdict", trace.WithAttributes(
		attribute.Bool("security.blocked", v.IsBlocked()),
		attribute.String("threat.level", string(v.Level)),
		attribute.Float64("threat.score", v.Score),
		attribute.Int("security.patterns.count", len(v.MatchedPatterns)),
		attribute.Int("security.structural.count", len(v.StructuralFlags)),
		attribute.Int("security.anomalies.count", len(v.AnomalyFlags)),
	))
}
