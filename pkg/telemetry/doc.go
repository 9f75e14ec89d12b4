// Package telemetry wires OpenTelemetry tracing and metrics for AgentShield.
//
// It centralises tracer provider setup, exposes counters that describe run
// and simulation outcomes, and offers span helpers that record verdicts and
// tool decisions without leaking prompt or response text into exported
// telemetry. A Prometheus registry mirrors the core counters for scrape
// endpoints.
package telemetry
