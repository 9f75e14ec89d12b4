package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alaabenhmida/AgentShield/pkg/agent"
	"github.com/alaabenhmida/AgentShield/pkg/domain"
	"github.com/alaabenhmida/AgentShield/pkg/filter"
	"github.com/alaabenhmida/AgentShield/pkg/guard"
	"github.com/alaabenhmida/AgentShield/pkg/profiles"
	"github.com/alaabenhmida/AgentShield/pkg/telemetry"
)

// SessionRecorder persists per-session conversation history.
type SessionRecorder interface {
	Append(sessionID string, entry domain.SessionEntry)
}

// Config tunes a Shield. The zero value yields full protection for the
// general domain: guard, boundary, invoke and output filter, with incident
// logging on.
type Config struct {
	// Domain selects the protection profile. Empty means "general".
	Domain string

	// BlockThreshold is the minimum threat level that blocks a run.
	// Empty defaults to malicious.
	BlockThreshold domain.ThreatLevel

	// SkipBoundary leaves the input unwrapped.
	SkipBoundary bool

	// SkipOutputFilter passes agent output through unredacted.
	SkipOutputFilter bool

	// SkipIncidentLog disables the audit trail and incident notifications.
	SkipIncidentLog bool

	Logger   *slog.Logger
	Registry *profiles.Registry

	// Store, when set, records session history for RunSession calls.
	Store SessionRecorder

	// Metrics, when set, mirrors run outcomes to a Prometheus registry.
	Metrics *telemetry.PrometheusMetrics
}

// Shield runs agent requests through the protection chain and keeps the
// incident audit trail. The chain can be reshaped between runs through
// Chain; the audit trail and subscriber set are mutex-guarded and safe
// for concurrent runs.
type Shield struct {
	domain       string
	agent        agent.Agent
	chain        *Chain
	scorer       *guard.Scorer
	filter       *filter.Filter
	logger       *slog.Logger
	tracer       trace.Tracer
	store        SessionRecorder
	metrics      *telemetry.PrometheusMetrics
	logIncidents bool

	mu          sync.Mutex
	incidents   []domain.Incident
	subscribers []domain.Subscriber
}

// NewShield wraps the agent in the default protection chain.
func NewShield(a agent.Agent, cfg Config) (*Shield, error) {
	if a == nil {
		return nil, fmt.Errorf("engine: agent is required")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = profiles.GlobalRegistry()
	}
	domainName := cfg.Domain
	if domainName == "" {
		domainName = "general"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	profile := registry.Lookup(domainName)

	scorer, err := guard.New(guard.Config{
		Domain:   domainName,
		Keywords: profile.Keywords,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: build scorer: %w", err)
	}
	outFilter, err := filter.New(filter.Config{
		Domain:      domainName,
		DomainRules: profile.Redactions,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: build output filter: %w", err)
	}

	stages := []Stage{NewPromptGuardStage(scorer, cfg.BlockThreshold, logger)}
	if !cfg.SkipBoundary {
		stages = append(stages, NewBoundaryStage())
	}
	stages = append(stages, NewInvokeStage(a))
	if !cfg.SkipOutputFilter {
		stages = append(stages, NewOutputFilterStage(outFilter))
	}

	return &Shield{
		domain:       domainName,
		agent:        a,
		chain:        NewChain(logger, stages...),
		scorer:       scorer,
		filter:       outFilter,
		logger:       logger,
		tracer:       otel.Tracer("agentshield"),
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		logIncidents: !cfg.SkipIncidentLog,
	}, nil
}

// Chain exposes the protection chain for reshaping. Mutating it while runs
// are in flight is the caller's race to manage.
func (s *Shield) Chain() *Chain { return s.chain }

// Domain reports the active protection profile.
func (s *Shield) Domain() string { return s.domain }

// Subscribe registers a subscriber for run notifications.
func (s *Shield) Subscribe(sub domain.Subscriber) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	s.mu.Unlock()
}

// Run passes one input through the protection chain.
func (s *Shield) Run(ctx context.Context, input string) (*domain.RequestContext, error) {
	return s.run(ctx, "", input)
}

// RunSession is Run with session history recording.
func (s *Shield) RunSession(ctx context.Context, sessionID, input string) (*domain.RequestContext, error) {
	return s.run(ctx, sessionID, input)
}

func (s *Shield) run(ctx context.Context, sessionID, input string) (*domain.RequestContext, error) {
	runID := uuid.NewString()
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "shield.run")
	defer span.End()
	span.SetAttributes(telemetry.RedactAttributes([]attribute.KeyValue{
		attribute.String("shield.domain", s.domain),
		attribute.String("shield.run.id", runID),
		attribute.String("shield.session.id", sessionID),
		attribute.Int("shield.input.length", len(input)),
	})...)

	rc := domain.NewRequestContext(input, s.domain)
	rc.Metadata["run_id"] = runID
	if sessionID != "" {
		rc.Metadata["session_id"] = sessionID
	}

	s.notify(ctx, domain.EventBeforeRun, runID, sessionID, rc, nil)

	if err := s.chain.Execute(ctx, rc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("run failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
		return rc, err
	}

	if rc.Response == nil {
		rc.Response = &domain.AgentResponse{Err: "no response produced; check chain configuration"}
	}

	s.recordIncidents(ctx, runID, sessionID, rc)

	if rc.Blocked {
		s.logger.Warn("run blocked",
			slog.String("run_id", runID),
			slog.String("reason", rc.BlockReason))
		s.notify(ctx, domain.EventOnBlock, runID, sessionID, rc, nil)
	}

	duration := time.Since(start)
	level := domain.LevelBenign
	score := 0.0
	if rc.Verdict != nil {
		level = rc.Verdict.Level
		score = rc.Verdict.Score
	}
	telemetry.RecordRun(ctx, telemetry.RunMetrics{
		Domain:      s.domain,
		Blocked:     rc.Blocked,
		ThreatLevel: level,
		Redactions:  len(rc.Redactions),
		Incidents:   len(rc.Incidents),
		Duration:    duration,
	})
	if s.metrics != nil {
		s.metrics.RecordRun(s.domain, rc.Blocked, score, duration)
		s.metrics.RecordRedactions(s.domain, len(rc.Redactions))
		for _, inc := range rc.Incidents {
			s.metrics.RecordIncident(s.domain, inc.Stage)
		}
	}

	if s.store != nil && sessionID != "" {
		output := ""
		if rc.Response != nil {
			output = rc.Response.Output
		}
		s.store.Append(sessionID, domain.SessionEntry{
			Timestamp:   time.Now().UTC(),
			Input:       input,
			Output:      output,
			Blocked:     rc.Blocked,
			ThreatScore: score,
		})
	}

	s.notify(ctx, domain.EventAfterRun, runID, sessionID, rc, nil)

	s.logger.Info("run complete",
		slog.String("run_id", runID),
		slog.String("domain", s.domain),
		slog.Bool("blocked", rc.Blocked),
		slog.Duration("duration", duration))
	return rc, nil
}

// recordIncidents moves this run's incidents onto the audit trail and
// notifies subscribers about each one.
func (s *Shield) recordIncidents(ctx context.Context, runID, sessionID string, rc *domain.RequestContext) {
	if !s.logIncidents || len(rc.Incidents) == 0 {
		return
	}
	s.mu.Lock()
	s.incidents = append(s.incidents, rc.Incidents...)
	s.mu.Unlock()
	for i := range rc.Incidents {
		s.notify(ctx, domain.EventOnIncident, runID, sessionID, rc, &rc.Incidents[i])
	}
}

// Incidents returns a copy of the audit trail.
func (s *Shield) Incidents() []domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Incident, len(s.incidents))
	copy(out, s.incidents)
	return out
}

// IncidentsAbove filters the audit trail by recorded threat score.
func (s *Shield) IncidentsAbove(min float64) []domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Incident
	for _, inc := range s.incidents {
		score, ok := inc.Details["score"].(float64)
		if ok && score >= min {
			out = append(out, inc)
		}
	}
	return out
}

func (s *Shield) notify(ctx context.Context, event domain.Event, runID, sessionID string, rc *domain.RequestContext, inc *domain.Incident) {
	s.mu.Lock()
	subs := append([]domain.Subscriber(nil), s.subscribers...)
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	n := domain.Notification{
		Event:       event,
		Timestamp:   time.Now().UTC(),
		RunID:       runID,
		SessionID:   sessionID,
		Domain:      s.domain,
		Input:       rc.UserInput,
		Blocked:     rc.Blocked,
		BlockReason: rc.BlockReason,
		Incident:    inc,
	}
	if rc.Response != nil {
		n.Output = rc.Response.Output
	}
	if rc.Verdict != nil {
		n.ThreatScore = rc.Verdict.Score
	}
	for _, sub := range subs {
		s.deliver(ctx, sub, n)
	}
}

// deliver isolates subscriber panics from the run loop.
func (s *Shield) deliver(ctx context.Context, sub domain.Subscriber, n domain.Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panic",
				slog.String("event", string(n.Event)),
				slog.Any("panic", r))
		}
	}()
	sub.Notify(ctx, n)
}
