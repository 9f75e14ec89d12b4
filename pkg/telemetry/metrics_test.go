package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

func installManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
	})

	ResetMetricsForTest()
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func TestRecordRun(t *testing.T) {
	reader := installManualReader(t)

	RecordRun(context.Background(), RunMetrics{
		Domain:      "healthcare",
		Blocked:     true,
		ThreatLevel: domain.LevelCritical,
		Redactions:  2,
		Incidents:   1,
		Duration:    150 * time.Millisecond,
	})

	metrics := collectMetrics(t, reader)

	runs, ok := metrics["shield.runs_total"]
	if !ok {
		t.Fatalf("missing shield.runs_total metric")
	}
	runData, ok := runs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type for runs metric")
	}
	if len(runData.DataPoints) != 1 {
		t.Fatalf("expected 1 datapoint, got %d", len(runData.DataPoints))
	}
	if runData.DataPoints[0].Value != 1 {
		t.Fatalf("expected run count 1, got %d", runData.DataPoints[0].Value)
	}
	if value, ok := runData.DataPoints[0].Attributes.Value(attribute.Key("shield.domain")); !ok || value.AsString() != "healthcare" {
		t.Fatalf("expected shield.domain attribute to be healthcare, got %v", value)
	}

	blocked, ok := metrics["shield.blocked_total"]
	if !ok {
		t.Fatalf("missing shield.blocked_total metric")
	}
	blockedData := blocked.Data.(metricdata.Sum[int64])
	if blockedData.DataPoints[0].Value != 1 {
		t.Fatalf("expected blocked count 1, got %d", blockedData.DataPoints[0].Value)
	}

	redactions, ok := metrics["shield.redactions_total"]
	if !ok {
		t.Fatalf("missing shield.redactions_total metric")
	}
	redactionData := redactions.Data.(metricdata.Sum[int64])
	if redactionData.DataPoints[0].Value != 2 {
		t.Fatalf("expected redaction count 2, got %d", redactionData.DataPoints[0].Value)
	}

	incidents, ok := metrics["shield.incidents_total"]
	if !ok {
		t.Fatalf("missing shield.incidents_total metric")
	}
	incidentData := incidents.Data.(metricdata.Sum[int64])
	if incidentData.DataPoints[0].Value != 1 {
		t.Fatalf("expected incident count 1, got %d", incidentData.DataPoints[0].Value)
	}

	hist, ok := metrics["shield.run.duration_ms"]
	if !ok {
		t.Fatalf("missing shield.run.duration_ms metric")
	}
	histData := hist.Data.(metricdata.Histogram[float64])
	if histData.DataPoints[0].Count != 1 {
		t.Fatalf("expected histogram count 1, got %d", histData.DataPoints[0].Count)
	}
	if histData.DataPoints[0].Sum != 150 {
		t.Fatalf("expected histogram sum 150, got %v", histData.DataPoints[0].Sum)
	}
}

func TestRecordRunBenignSkipsBlockCounter(t *testing.T) {
	reader := installManualReader(t)

	RecordRun(context.Background(), RunMetrics{
		Domain:      "general",
		ThreatLevel: domain.LevelBenign,
		Duration:    10 * time.Millisecond,
	})

	metrics := collectMetrics(t, reader)

	if _, ok := metrics["shield.runs_total"]; !ok {
		t.Fatalf("missing shield.runs_total metric")
	}
	if _, ok := metrics["shield.blocked_total"]; ok {
		t.Fatalf("blocked counter should not be emitted for a benign run")
	}
	if _, ok := metrics["shield.redactions_total"]; ok {
		t.Fatalf("redaction counter should not be emitted without redactions")
	}
}

func TestRecordTrial(t *testing.T) {
	reader := installManualReader(t)

	RecordTrial(context.Background(), domain.CategoryPromptInjection, TrialBlocked)
	RecordTrial(context.Background(), domain.CategoryPromptInjection, TrialBypassed)

	metrics := collectMetrics(t, reader)

	trials, ok := metrics["shield.simulator.trials_total"]
	if !ok {
		t.Fatalf("missing shield.simulator.trials_total metric")
	}
	trialData, ok := trials.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type for trials metric")
	}
	if len(trialData.DataPoints) != 2 {
		t.Fatalf("expected 2 datapoints, got %d", len(trialData.DataPoints))
	}

	var sawBypassed bool
	for _, dp := range trialData.DataPoints {
		if dp.Value != 1 {
			t.Fatalf("expected trial count 1 per outcome, got %d", dp.Value)
		}
		if value, ok := dp.Attributes.Value(attribute.Key("trial.outcome")); ok && value.AsString() == TrialBypassed {
			sawBypassed = true
		}
	}
	if !sawBypassed {
		t.Fatalf("expected a datapoint labelled with the bypassed outcome")
	}
}

func TestRecordVerdict(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "guard")
	RecordVerdict(span, domain.Verdict{
		Level:           domain.LevelMalicious,
		Score:           0.85,
		MatchedPatterns: []string{"direct_override"},
		StructuralFlags: []string{"fake_chat_marker"},
	})
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 verdict event, got %d", len(events))
	}
	event := events[0]
	if event.Name != "security.verdict" {
		t.Fatalf("unexpected event name %q", event.Name)
	}

	attrs := attribute.NewSet(event.Attributes...)
	if value, ok := attrs.Value(attribute.Key("security.blocked")); !ok || !value.AsBool() {
		t.Fatalf("expected security.blocked attribute true")
	}
	if value, ok := attrs.Value(attribute.Key("threat.level")); !ok || value.AsString() != "malicious" {
		t.Fatalf("expected threat.level 'malicious', got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("security.patterns.count")); !ok || value.AsInt64() != 1 {
		t.Fatalf("expected patterns count 1, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("security.structural.count")); !ok || value.AsInt64() != 1 {
		t.Fatalf("expected structural count 1, got %v", value)
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown tracer provider: %v", err)
	}
}

func TestRecordToolDecision(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "tool_validation")
	RecordToolDecision(span, "delete_database", false, "not on allowlist")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	attrs := attribute.NewSet(spans[0].Attributes()...)
	if value, ok := attrs.Value(attribute.Key("tool.name")); !ok || value.AsString() != "delete_database" {
		t.Fatalf("expected tool.name attribute, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("tool.allowed")); !ok || value.AsBool() {
		t.Fatalf("expected tool.allowed attribute false")
	}

	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "tool.denied" {
		t.Fatalf("expected a tool.denied event, got %v", events)
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown tracer provider: %v", err)
	}
}

func TestRecordDocumentScan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "docscan")
	RecordDocumentScan(span, "kb://articles/42", false, []string{"doc_injection_override"})
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	attrs := attribute.NewSet(spans[0].Attributes()...)
	if value, ok := attrs.Value(attribute.Key("document.source")); !ok || value.AsString() != "kb://articles/42" {
		t.Fatalf("expected document.source attribute, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("document.safe")); !ok || value.AsBool() {
		t.Fatalf("expected document.safe attribute false")
	}
	if value, ok := attrs.Value(attribute.Key("document.flags.count")); !ok || value.AsInt64() != 1 {
		t.Fatalf("expected document.flags.count 1, got %v", value)
	}

	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "document.quarantined" {
		t.Fatalf("expected a document.quarantined event, got %v", events)
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown tracer provider: %v", err)
	}
}

func TestRecordDocumentScanSafeDocumentAddsNoEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "docscan")
	RecordDocumentScan(span, "kb://articles/7", true, nil)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if events := spans[0].Events(); len(events) != 0 {
		t.Fatalf("expected no events for a safe document, got %v", events)
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown tracer provider: %v", err)
	}
}
