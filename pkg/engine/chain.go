package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
	"github.com/alaabenhmida/AgentShield/pkg/telemetry"
)

// Next resumes the remainder of the chain. A stage that returns without
// calling it short-circuits every stage downstream.
type Next func(ctx context.Context, rc *domain.RequestContext) error

// Stage is one protective layer in the execution chain. Implementations
// must be safe for concurrent use: per-request state belongs in the
// RequestContext, never on the stage itself.
type Stage interface {
	Name() string
	Process(ctx context.Context, rc *domain.RequestContext, next Next) error
}

// Chain is an ordered, named list of stages executed in continuation-passing
// style. Mutation methods are configuration actions and are not synchronised
// against in-flight Execute calls; callers own that exclusion. Execute
// snapshots the stage list when it starts, so edits only affect later runs.
type Chain struct {
	stages []Stage
	logger *slog.Logger
	tracer trace.Tracer
}

// NewChain creates a chain that executes the given stages in order.
func NewChain(logger *slog.Logger, stages ...Stage) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		stages: append([]Stage(nil), stages...),
		logger: logger,
		tracer: otel.Tracer("agentshield"),
	}
}

// Names returns the stage names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.stages))
	for i, stage := range c.stages {
		names[i] = stage.Name()
	}
	return names
}

// Append adds a stage at the end of the chain.
func (c *Chain) Append(stage Stage) {
	c.stages = append(c.stages, stage)
}

// Prepend adds a stage at the front of the chain.
func (c *Chain) Prepend(stage Stage) {
	c.stages = append([]Stage{stage}, c.stages...)
}

// InsertBefore places stage immediately before the named stage.
func (c *Chain) InsertBefore(name string, stage Stage) error {
	i := c.index(name)
	if i < 0 {
		return fmt.Errorf("engine: no stage named %q in the chain: %w", name, domain.ErrStageNotFound)
	}
	c.insert(i, stage)
	return nil
}

// InsertAfter places stage immediately after the named stage.
func (c *Chain) InsertAfter(name string, stage Stage) error {
	i := c.index(name)
	if i < 0 {
		return fmt.Errorf("engine: no stage named %q in the chain: %w", name, domain.ErrStageNotFound)
	}
	c.insert(i+1, stage)
	return nil
}

// Remove deletes the named stage from the chain.
func (c *Chain) Remove(name string) error {
	i := c.index(name)
	if i < 0 {
		return fmt.Errorf("engine: no stage named %q in the chain: %w", name, domain.ErrStageNotFound)
	}
	out := make([]Stage, 0, len(c.stages)-1)
	out = append(out, c.stages[:i]...)
	out = append(out, c.stages[i+1:]...)
	c.stages = out
	return nil
}

// Replace swaps the named stage for the given one, keeping its position.
func (c *Chain) Replace(name string, stage Stage) error {
	i := c.index(name)
	if i < 0 {
		return fmt.Errorf("engine: no stage named %q in the chain: %w", name, domain.ErrStageNotFound)
	}
	out := append([]Stage(nil), c.stages...)
	out[i] = stage
	c.stages = out
	return nil
}

// Execute runs rc through every stage in order. The continuation handed to
// each stage is built inside out from a snapshot of the stage list, so a
// stage observes context mutations made upstream but never edits made to
// the chain while the run is in flight.
func (c *Chain) Execute(ctx context.Context, rc *domain.RequestContext) error {
	stages := append([]Stage(nil), c.stages...)

	next := Next(func(ctx context.Context, rc *domain.RequestContext) error {
		return nil
	})

	for i := len(stages) - 1; i >= 0; i-- {
		stage := stages[i]
		downstream := next
		next = func(ctx context.Context, rc *domain.RequestContext) error {
			return c.runStage(ctx, stage, rc, downstream)
		}
	}

	return next(ctx, rc)
}

func (c *Chain) runStage(ctx context.Context, stage Stage, rc *domain.RequestContext, next Next) error {
	ctx, span := c.tracer.Start(ctx, "stage."+stage.Name())
	defer span.End()

	rc.Trace = append(rc.Trace, stage.Name())

	if err := stage.Process(ctx, rc, next); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if span.IsRecording() {
		span.SetAttributes(telemetry.RedactAttributes([]attribute.KeyValue{
			attribute.String("stage.name", stage.Name()),
			attribute.Bool("shield.blocked", rc.Blocked),
		})...)
	}

	c.logger.Debug("stage complete",
		slog.String("stage", stage.Name()),
		slog.Bool("blocked", rc.Blocked))

	return nil
}

func (c *Chain) index(name string) int {
	for i, stage := range c.stages {
		if stage.Name() == name {
			return i
		}
	}
	return -1
}

func (c *Chain) insert(at int, stage Stage) {
	out := make([]Stage, 0, len(c.stages)+1)
	out = append(out, c.stages[:at]...)
	out = append(out, stage)
	out = append(out, c.stages[at:]...)
	c.stages = out
}
