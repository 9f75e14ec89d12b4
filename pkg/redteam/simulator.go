// Package redteam runs curated attack payloads against a live agent and
// scores how well the defence layers hold up. Every trial records the
// guard's verdict on the payload, the agent's actual response, and whether
// the response contains the indicators that mark the attack as successful.
// A trial only counts as bypassed when its success indicators appear, none
// of its failure indicators do, and the guard let the payload through.
package redteam

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alaabenhmida/AgentShield/internal/governance"
	"github.com/alaabenhmida/AgentShield/pkg/agent"
	"github.com/alaabenhmida/AgentShield/pkg/domain"
	"github.com/alaabenhmida/AgentShield/pkg/filter"
	"github.com/alaabenhmida/AgentShield/pkg/guard"
	"github.com/alaabenhmida/AgentShield/pkg/profiles"
	"github.com/alaabenhmida/AgentShield/pkg/telemetry"
)

const defaultConcurrency = 5

// Config tunes one Simulator. The zero value runs the universal catalogue
// against the general profile with the default concurrency.
type Config struct {
	// Domains selects the domain packs to run on top of the universal
	// catalogue. The first entry also picks the guard and filter profile
	// used to judge payloads and responses.
	Domains []string
	// Trials replaces the built-in catalogue entirely when non-empty.
	Trials []domain.AttackTrial
	// Concurrency caps how many trials run at once. Zero means the
	// default of 5.
	Concurrency int
	// Pacer rate-limits agent invocations across all trials. Nil runs
	// unpaced.
	Pacer    *governance.Pacer
	Registry *profiles.Registry
	Logger   *slog.Logger
	// Metrics, when set, mirrors per-trial counters into Prometheus.
	Metrics *telemetry.PrometheusMetrics
}

// Simulator drives an attack catalogue against a target agent. The guard
// and output filter it scores with are built from the same profiles the
// orchestrator uses, so simulation results reflect production behaviour.
type Simulator struct {
	target  agent.Agent
	trials  []domain.AttackTrial
	scorer  *guard.Scorer
	filter  *filter.Filter
	pacer   *governance.Pacer
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.PrometheusMetrics
	limit   int
}

// New builds a Simulator for the given target agent.
func New(target agent.Agent, cfg Config) (*Simulator, error) {
	if target == nil {
		return nil, fmt.Errorf("redteam: target agent is required")
	}
	registry := cfg.Registry
	if registry == nil {
		registry = profiles.GlobalRegistry()
	}
	domainName := "general"
	if len(cfg.Domains) > 0 {
		domainName = cfg.Domains[0]
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
		return nil, fmt.Errorf("redteam: build scorer: %w", err)
	}
	outFilter, err := filter.New(filter.Config{
		Domain:      domainName,
		DomainRules: profile.Redactions,
	})
	if err != nil {
		return nil, fmt.Errorf("redteam: build output filter: %w", err)
	}

	trials := cfg.Trials
	if len(trials) == 0 {
		trials = ForDomains(cfg.Domains...)
	}
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	return &Simulator{
		target:  target,
		trials:  trials,
		scorer:  scorer,
		filter:  outFilter,
		pacer:   cfg.Pacer,
		logger:  logger,
		tracer:  otel.Tracer("agentshield"),
		metrics: cfg.Metrics,
		limit:   limit,
	}, nil
}

// Run executes every trial with bounded concurrency and aggregates the
// outcomes into a report. Results keep the catalogue's submission order
// regardless of completion order. When ctx is cancelled, trials already in
// flight finish, no new trials start, and the report covers only the
// completed ones.
func (s *Simulator) Run(ctx context.Context) (*domain.Report, error) {
	ctx, span := s.tracer.Start(ctx, "redteam.run", trace.WithAttributes(
		attribute.Int("redteam.trials", len(s.trials)),
		attribute.Int("redteam.concurrency", s.limit),
	))
	defer span.End()

	s.logger.Info("simulation started",
		"trials", len(s.trials),
		"concurrency", s.limit,
	)

	results := make([]domain.AttackOutcome, len(s.trials))
	completed := make([]bool, len(s.trials))
	sem := make(chan struct{}, s.limit)
	var wg sync.WaitGroup

submit:
	for i := range s.trials {
		select {
		case <-ctx.Done():
			break submit
		default:
		}
		select {
		case <-ctx.Done():
			break submit
		case sem <- struct{}{}:
			// Re-check after acquiring: a slot freed by a trial that
			// observed cancellation must not admit a new trial.
			if ctx.Err() != nil {
				<-sem
				break submit
			}
		}
		wg.Add(1)
		go func(i int, trial domain.AttackTrial) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.runTrial(ctx, trial)
			completed[i] = true
		}(i, s.trials[i])
	}
	wg.Wait()

	finished := make([]domain.AttackOutcome, 0, len(results))
	for i, done := range completed {
		if done {
			finished = append(finished, results[i])
		}
	}
	if skipped := len(s.trials) - len(finished); skipped > 0 {
		s.logger.Warn("simulation cancelled before completion",
			"completed", len(finished),
			"skipped", skipped,
		)
	}

	report := BuildReport(finished, s.target.SystemInfo())
	span.SetAttributes(
		attribute.Int("redteam.bypassed", report.Bypassed),
		attribute.Float64("redteam.score", report.Score),
	)
	s.logger.Info("simulation finished",
		"total", report.TotalTrials,
		"blocked", report.Blocked,
		"bypassed", report.Bypassed,
		"score", report.Score,
	)
	return report, nil
}

func (s *Simulator) runTrial(ctx context.Context, trial domain.AttackTrial) domain.AttackOutcome {
	ctx, span := s.tracer.Start(ctx, "redteam.trial", trace.WithAttributes(
		attribute.String("redteam.trial.id", trial.ID),
		attribute.String("redteam.trial.category", string(trial.Category)),
		attribute.Bool("redteam.trial.multi_turn", trial.MultiTurn()),
	))
	defer span.End()

	var outcome domain.AttackOutcome
	if trial.MultiTurn() {
		outcome = s.runMultiTurn(ctx, trial)
	} else {
		outcome = s.runSingleTurn(ctx, trial)
	}

	label := telemetry.TrialContained
	switch {
	case outcome.Bypassed:
		label = telemetry.TrialBypassed
	case outcome.BlockedByGuard:
		label = telemetry.TrialBlocked
	}
	telemetry.RecordTrial(ctx, outcome.Category, label)
	if s.metrics != nil {
		s.metrics.RecordTrial(string(outcome.Category), label)
	}
	span.SetAttributes(attribute.String("redteam.trial.outcome", label))
	if outcome.Bypassed {
		s.logger.Warn("attack bypassed defences",
			"trial", trial.ID,
			"category", trial.Category,
		)
	}
	return outcome
}

// runSingleTurn scores the payload with the guard, then invokes the agent
// regardless of the verdict. Whether a deployment actually short-circuits
// blocked payloads is the orchestrator's call; the simulator always wants
// to know what the raw agent would have said.
func (s *Simulator) runSingleTurn(ctx context.Context, trial domain.AttackTrial) domain.AttackOutcome {
	verdict := s.scorer.Analyze(trial.Payload)
	blocked := verdict.IsBlocked()

	response := s.invoke(ctx, trial.Payload)
	filtered := s.filter.Scan(response)
	success, failure := matchIndicators(response, trial)

	return domain.AttackOutcome{
		TrialID:          trial.ID,
		Category:         trial.Category,
		Payload:          trial.Payload,
		BlockedByGuard:   blocked,
		Response:         response,
		FilterCaughtLeak: filtered.HadLeaks,
		SuccessFound:     success,
		FailureFound:     failure,
		Bypassed:         len(success) > 0 && len(failure) == 0 && !blocked,
	}
}

// runMultiTurn plays the opening payload and each follow-up as one
// escalating conversation. The aggregate counts as bypassed when any turn
// bypassed; the top-level guard flag reflects the opening turn and the
// recorded response is the final turn's.
func (s *Simulator) runMultiTurn(ctx context.Context, trial domain.AttackTrial) domain.AttackOutcome {
	payloads := append([]string{trial.Payload}, trial.FollowUps...)
	turns := make([]domain.TurnOutcome, 0, len(payloads))

	var (
		anyBypassed bool
		lastSuccess []string
		lastFailure []string
	)
	for i, payload := range payloads {
		verdict := s.scorer.Analyze(payload)
		blocked := verdict.IsBlocked()

		response := s.invoke(ctx, payload)
		success, failure := matchIndicators(response, trial)
		bypassed := len(success) > 0 && len(failure) == 0 && !blocked
		if bypassed {
			anyBypassed = true
		}
		turns = append(turns, domain.TurnOutcome{
			Turn:           i + 1,
			Payload:        payload,
			BlockedByGuard: blocked,
			Response:       response,
			Bypassed:       bypassed,
		})
		lastSuccess, lastFailure = success, failure
		s.logger.Debug("trial turn evaluated",
			"trial", trial.ID,
			"turn", i+1,
			"blocked", blocked,
			"bypassed", bypassed,
		)
	}

	last := turns[len(turns)-1]
	return domain.AttackOutcome{
		TrialID:        trial.ID,
		Category:       trial.Category,
		Payload:        trial.Payload,
		BlockedByGuard: turns[0].BlockedByGuard,
		Response:       last.Response,
		SuccessFound:   lastSuccess,
		FailureFound:   lastFailure,
		Bypassed:       anyBypassed,
		MultiTurn:      true,
		Turns:          turns,
	}
}

// invoke folds every agent failure into response text so a crashing or
// unreachable target reads as a defended trial rather than aborting the
// whole simulation. The pacer gates each call so batteries against real
// providers stay inside their rate limits.
func (s *Simulator) invoke(ctx context.Context, payload string) string {
	if err := s.pacer.Wait(ctx); err != nil {
		return "Error: " + err.Error()
	}
	resp, err := s.target.Invoke(ctx, payload)
	if err != nil {
		return "Error: " + err.Error()
	}
	if resp == nil {
		return ""
	}
	if resp.Output == "" && resp.Err != "" {
		return "Error: " + resp.Err
	}
	return resp.Output
}

// matchIndicators reports which of the trial's indicators appear in the
// response. Matching is a case-insensitive substring check.
func matchIndicators(response string, trial domain.AttackTrial) (success, failure []string) {
	lowered := strings.ToLower(response)
	for _, ind := range trial.SuccessIndicators {
		if strings.Contains(lowered, strings.ToLower(ind)) {
			success = append(success, ind)
		}
	}
	for _, ind := range trial.FailureIndicators {
		if strings.Contains(lowered, strings.ToLower(ind)) {
			failure = append(failure, ind)
		}
	}
	return success, failure
}
