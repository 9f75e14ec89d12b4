package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordToolDecision annotates the span with the outcome of a tool
// authorisation check.
func RecordToolDecision(span trace.Span, tool string, allowed bool, reason string) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.String("tool.name", tool),
		attribute.Bool("tool.allowed", allowed),
	)

	if reason != "" {
		span.SetAttributes(attribute.String("tool.decision.reason", reason))
	}

	if !allowed {
		span.AddEvent("tool.denied")
	}
}

// RecordDocumentScan attaches the outcome of a document integrity scan to the
// span. Flag names are safe to export; document content never is.
func RecordDocumentScan(span trace.Span, source string, safe bool, flags []string) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.String("document.source", source),
		attribute.Bool("document.safe", safe),
		attribute.Int("document.flags.count", len(flags)),
	)

	if !safe {
		span.AddEvent("document.quarantined", trace.WithAttributes(
			attribute.StringSlice("document.flags", flags),
		))
	}
}
