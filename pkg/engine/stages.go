package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/alaabenhmida/AgentShield/pkg/agent"
	"github.com/alaabenhmida/AgentShield/pkg/boundary"
	"github.com/alaabenhmida/AgentShield/pkg/domain"
	"github.com/alaabenhmida/AgentShield/pkg/filter"
	"github.com/alaabenhmida/AgentShield/pkg/guard"
	"github.com/alaabenhmida/AgentShield/pkg/telemetry"
)

// Names of the built-in stages.
const (
	StagePromptGuard    = "prompt_guard"
	StageBoundary       = "boundary"
	StageInvoke         = "invoke"
	StageOutputFilter   = "output_filter"
	StageInterAgent     = "inter_agent"
	StageToolValidation = "tool_validation"
)

// RefusalMessage is the output of a blocked run.
const RefusalMessage = "I'm sorry, but I cannot process this request. It has been flagged for security reasons."

// Runs scoring above this log an incident even when not blocked.
const elevatedScoreThreshold = 0.3

// PromptGuardStage scores the incoming input and short-circuits the chain
// when the verdict reaches the configured block threshold. Suspicious but
// unblocked inputs continue with the scorer's sanitized rewrite.
type PromptGuardStage struct {
	scorer  *guard.Scorer
	blockAt domain.ThreatLevel
	logger  *slog.Logger
}

// NewPromptGuardStage builds the scoring stage. An empty blockAt defaults
// to blocking at malicious.
func NewPromptGuardStage(scorer *guard.Scorer, blockAt domain.ThreatLevel, logger *slog.Logger) *PromptGuardStage {
	if blockAt == "" {
		blockAt = domain.LevelMalicious
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptGuardStage{scorer: scorer, blockAt: blockAt, logger: logger}
}

func (s *PromptGuardStage) Name() string { return StagePromptGuard }

func (s *PromptGuardStage) Process(ctx context.Context, rc *domain.RequestContext, next Next) error {
	verdict := s.scorer.Analyze(rc.UserInput)
	rc.Verdict = &verdict

	telemetry.RecordVerdict(trace.SpanFromContext(ctx), verdict)

	if verdict.Level.AtLeast(s.blockAt) {
		rc.Blocked = true
		rc.BlockReason = fmt.Sprintf("Blocked: threat_level=%s, score=%.2f, matched_patterns=%v",
			verdict.Level, verdict.Score, verdict.MatchedPatterns)
		rc.LogIncident(rc.UserInput, StagePromptGuard, map[string]any{
			"threat_level":     string(verdict.Level),
			"score":            verdict.Score,
			"matched_patterns": verdict.MatchedPatterns,
		})
		rc.Response = &domain.AgentResponse{Output: RefusalMessage, Err: rc.BlockReason}
		s.logger.Warn("request blocked",
			slog.String("threat_level", string(verdict.Level)),
			slog.Float64("score", verdict.Score))
		return nil
	}

	if verdict.Sanitized != "" {
		rc.EffectiveInput = verdict.Sanitized
	}

	if verdict.Score > elevatedScoreThreshold {
		rc.LogIncident(rc.UserInput, "elevated_score", map[string]any{
			"threat_level":     string(verdict.Level),
			"score":            verdict.Score,
			"matched_patterns": verdict.MatchedPatterns,
			"structural_flags": verdict.StructuralFlags,
			"anomaly_flags":    verdict.AnomalyFlags,
		})
	}

	return next(ctx, rc)
}

// BoundaryStage brackets the effective input with sentinel tokens so the
// agent receives an unambiguous untrusted region.
type BoundaryStage struct{}

func NewBoundaryStage() *BoundaryStage { return &BoundaryStage{} }

func (s *BoundaryStage) Name() string { return StageBoundary }

func (s *BoundaryStage) Process(ctx context.Context, rc *domain.RequestContext, next Next) error {
	rc.EffectiveInput = boundary.Wrap(rc.EffectiveInput)
	return next(ctx, rc)
}

// InvokeStage hands the effective input to the protected agent and captures
// its response. Agent failures become error-carrying responses, never chain
// failures.
type InvokeStage struct {
	agent agent.Agent
}

func NewInvokeStage(a agent.Agent) *InvokeStage { return &InvokeStage{agent: a} }

func (s *InvokeStage) Name() string { return StageInvoke }

func (s *InvokeStage) Process(ctx context.Context, rc *domain.RequestContext, next Next) error {
	resp, err := s.agent.Invoke(ctx, rc.EffectiveInput)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		resp = &domain.AgentResponse{Err: err.Error()}
	}
	if resp == nil {
		resp = &domain.AgentResponse{Err: "agent returned no response"}
	}
	rc.Response = resp
	return next(ctx, rc)
}

// OutputFilterStage redacts sensitive data and leak patterns from the agent
// response before it leaves the chain.
type OutputFilterStage struct {
	filter *filter.Filter
}

func NewOutputFilterStage(f *filter.Filter) *OutputFilterStage {
	return &OutputFilterStage{filter: f}
}

func (s *OutputFilterStage) Name() string { return StageOutputFilter }

func (s *OutputFilterStage) Process(ctx context.Context, rc *domain.RequestContext, next Next) error {
	if rc.Response != nil && rc.Response.Output != "" {
		result := s.filter.Scan(rc.Response.Output)
		if result.HadLeaks {
			rc.Response.Output = result.Text
			rc.Redactions = append(rc.Redactions, result.Redactions...)
			rc.LogIncident(result.Text, StageOutputFilter, map[string]any{
				"redactions": result.Redactions,
			})
		}
	}
	return next(ctx, rc)
}

// Inter-agent manipulation patterns, matched against intermediate steps
// after the run completes.
var interAgentRules = []struct {
	name string
	expr *regexp.Regexp
}{
	{"agent_msg_override", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior)\s+instructions?`)},
	{"agent_msg_fake_tag", regexp.MustCompile(`(?i)\[SYSTEM\]|\[ADMIN\]`)},
	{"agent_msg_prompt_leak", regexp.MustCompile(`(?i)(reveal|show|print)\s+(your\s+)?system\s+prompt`)},
	{"agent_msg_persona_override", regexp.MustCompile(`(?i)you\s+are\s+now`)},
	{"agent_msg_data_exfil", regexp.MustCompile(`(?i)transfer\s+all|send\s+all|forward\s+all`)},
}

// InterAgentStage scans the intermediate steps of a completed run for
// signs of agent-to-agent injection. It only audits; routing decisions
// stay with the caller.
type InterAgentStage struct {
	logger *slog.Logger
}

func NewInterAgentStage(logger *slog.Logger) *InterAgentStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &InterAgentStage{logger: logger}
}

func (s *InterAgentStage) Name() string { return StageInterAgent }

func (s *InterAgentStage) Process(ctx context.Context, rc *domain.RequestContext, next Next) error {
	if err := next(ctx, rc); err != nil {
		return err
	}
	if rc.Response == nil {
		return nil
	}

	for i, step := range rc.Response.IntermediateSteps {
		for _, rule := range interAgentRules {
			if rule.expr.MatchString(step) {
				rc.LogIncident(step, StageInterAgent, map[string]any{
					"flag":       rule.name,
					"step_index": i,
				})
				s.logger.Warn("suspicious inter-agent message",
					slog.String("flag", rule.name),
					slog.Int("step_index", i))
			}
		}
	}
	return nil
}

// Fragments in the effective input that read as payloads for downstream
// interpreters rather than as conversation.
var dangerousToolRules = []struct {
	name string
	expr *regexp.Regexp
}{
	{"sql_injection", regexp.MustCompile(`(?i);\s*(DROP|DELETE|INSERT|UPDATE)\s+`)},
	{"os_command", regexp.MustCompile(`(?i)os\.(system|popen|exec)`)},
	{"subprocess_exec", regexp.MustCompile(`(?i)subprocess\.(run|Popen|call)`)},
	{"code_eval", regexp.MustCompile(`(?i)eval\(|exec\(`)},
	{"dynamic_import", regexp.MustCompile(`(?i)__import__\(`)},
	{"destructive_cmd", regexp.MustCompile(`(?i)rm\s+-rf|del\s+/[fqs]`)},
}

// ToolAuthorizer decides whether an observed tool call is permitted. A deny
// escalates the run from audited to blocked.
type ToolAuthorizer interface {
	Authorize(ctx context.Context, tool string, rc *domain.RequestContext) (bool, error)
}

// ToolValidationStage audits a completed run: tool calls are checked
// against a static allowlist, and the effective input is scanned for
// interpreter payloads. When an authorizer is attached, its deny
// decisions block the run outright.
type ToolValidationStage struct {
	allowed    map[string]struct{}
	authorizer ToolAuthorizer
	logger     *slog.Logger
}

// NewToolValidationStage builds the tool audit stage. An empty allowlist
// disables the allowlist check; a nil authorizer disables policy decisions.
func NewToolValidationStage(allowedTools []string, authorizer ToolAuthorizer, logger *slog.Logger) *ToolValidationStage {
	allowed := make(map[string]struct{}, len(allowedTools))
	for _, tool := range allowedTools {
		tool = strings.ToLower(strings.TrimSpace(tool))
		if tool != "" {
			allowed[tool] = struct{}{}
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolValidationStage{allowed: allowed, authorizer: authorizer, logger: logger}
}

func (s *ToolValidationStage) Name() string { return StageToolValidation }

func (s *ToolValidationStage) Process(ctx context.Context, rc *domain.RequestContext, next Next) error {
	if err := next(ctx, rc); err != nil {
		return err
	}
	if rc.Response == nil {
		return nil
	}

	span := trace.SpanFromContext(ctx)
	for _, call := range rc.Response.ToolsCalled {
		name := toolName(call)

		if len(s.allowed) > 0 {
			if _, ok := s.allowed[strings.ToLower(name)]; !ok {
				rc.LogIncident(call, StageToolValidation, map[string]any{
					"flag": "unauthorised_tool",
					"tool": call,
				})
				s.logger.Warn("unauthorised tool call", slog.String("tool", call))
			}
		}

		if s.authorizer == nil {
			continue
		}
		allowed, err := s.authorizer.Authorize(ctx, name, rc)
		if err != nil {
			s.logger.Error("tool authorisation failed",
				slog.String("tool", name),
				slog.String("error", err.Error()))
			rc.LogIncident(call, StageToolValidation, map[string]any{
				"flag": "policy_error",
				"tool": call,
			})
			continue
		}
		if allowed {
			telemetry.RecordToolDecision(span, name, true, "")
			continue
		}
		telemetry.RecordToolDecision(span, name, false, "denied by policy")
		rc.LogIncident(call, StageToolValidation, map[string]any{
			"flag": "policy_denied",
			"tool": call,
		})
		rc.Blocked = true
		rc.BlockReason = fmt.Sprintf("Blocked: tool %q denied by policy", name)
		rc.Response = &domain.AgentResponse{Output: RefusalMessage, Err: rc.BlockReason}
		return nil
	}

	// Payloads aimed at interpreters behind the tools travel in the input,
	// so the scan covers what the agent actually saw.
	for _, rule := range dangerousToolRules {
		if rule.expr.MatchString(rc.EffectiveInput) {
			rc.LogIncident(rc.EffectiveInput, StageToolValidation, map[string]any{
				"flag": rule.name,
			})
			s.logger.Warn("dangerous pattern in input", slog.String("flag", rule.name))
		}
	}
	return nil
}

// toolName strips a call's argument list, leaving the bare tool name.
func toolName(call string) string {
	if i := strings.IndexByte(call, '('); i >= 0 {
		call = call[:i]
	}
	return strings.TrimSpace(call)
}
