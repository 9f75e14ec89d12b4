package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 legacy paths kept until the v1 API migration
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 legacy paths kept until the v1 API migration
	"github.com/open-policy-agent/opa/rego"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

const defaultEntrypoint = "agentshield/tools"

// Options control engine construction.
type Options struct {
	// Entrypoint is the decision path evaluated for tool calls. The
	// default "agentshield/tools" queries data.agentshield.tools, whose
	// document must carry an "allow" rule; an entrypoint addressing a
	// boolean rule directly also works.
	Entrypoint string
	// Modules maps module names to Rego source, parsed as Rego v1.
	Modules map[string]string
	Logger  *slog.Logger
}

// Engine evaluates tool-call authorizations with an embedded OPA
// instance. It satisfies the orchestration layer's ToolAuthorizer
// contract: a false decision escalates the run from audited to blocked.
// An undefined decision allows; modules wanting fail-closed behaviour
// declare their own default deny.
type Engine struct {
	moduleOrder []string
	parsed      map[string]*ast.Module
	entrypoint  string
	logger      *slog.Logger

	mu      sync.RWMutex
	queries map[string]*rego.PreparedEvalQuery
}

// NewEngine parses and compiles the supplied modules. Compile errors
// surface here rather than on the first tool call.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}
	if len(opts.Modules) == 0 {
		return nil, fmt.Errorf("policy: at least one rego module is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	order := make([]string, 0, len(opts.Modules))
	for name := range opts.Modules {
		order = append(order, name)
	}
	sort.Strings(order)

	parsed := make(map[string]*ast.Module, len(opts.Modules))
	for _, name := range order {
		module, err := ast.ParseModuleWithOpts(name, opts.Modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("policy: parse rego module %q: %w", name, err)
		}
		parsed[name] = module
	}

	engine := &Engine{
		moduleOrder: order,
		parsed:      parsed,
		entrypoint:  entry,
		logger:      logger,
		queries:     make(map[string]*rego.PreparedEvalQuery),
	}
	if _, err := engine.preparedQuery(ctx, entry); err != nil {
		return nil, fmt.Errorf("policy: compile rego modules: %w", err)
	}
	return engine, nil
}

// Authorize evaluates the configured entrypoint for one observed tool
// call. The policy input carries the tool name, the run's domain and
// effective input, and the guard verdict when one exists.
func (e *Engine) Authorize(ctx context.Context, tool string, rc *domain.RequestContext) (bool, error) {
	payload := map[string]any{
		"tool":   tool,
		"domain": "",
		"input":  "",
	}
	if rc != nil {
		payload["domain"] = rc.Domain
		payload["input"] = rc.EffectiveInput
		if rc.Verdict != nil {
			payload["threat_level"] = string(rc.Verdict.Level)
			payload["threat_score"] = rc.Verdict.Score
		}
	}

	prepared, err := e.preparedQuery(ctx, e.entrypoint)
	if err != nil {
		return false, fmt.Errorf("policy: prepare query: %w", err)
	}
	results, err := prepared.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return false, fmt.Errorf("policy: evaluate tool %q: %w: %v", tool, domain.ErrPolicyEvalFailed, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		e.logger.Warn("tool policy decision undefined, allowing",
			"tool", tool,
			"entrypoint", e.entrypoint,
		)
		return true, nil
	}

	switch value := results[0].Expressions[0].Value.(type) {
	case bool:
		return value, nil
	case map[string]any:
		allowed, _ := value["allow"].(bool)
		if !allowed {
			if reason, ok := value["reason"].(string); ok && reason != "" {
				e.logger.Info("tool denied by policy", "tool", tool, "reason", reason)
			}
		}
		return allowed, nil
	default:
		return false, fmt.Errorf("policy: unexpected decision type %T: %w", value, domain.ErrPolicyEvalFailed)
	}
}

func (e *Engine) preparedQuery(ctx context.Context, entry string) (*rego.PreparedEvalQuery, error) {
	e.mu.RLock()
	if prepared, ok := e.queries[entry]; ok {
		e.mu.RUnlock()
		return prepared, nil
	}
	e.mu.RUnlock()

	query := "data." + strings.ReplaceAll(entry, "/", ".")
	opts := make([]func(*rego.Rego), 0, len(e.parsed)+1)
	opts = append(opts, rego.Query(query))
	for _, name := range e.moduleOrder {
		opts = append(opts, rego.ParsedModule(e.parsed[name]))
	}
	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Another goroutine may have prepared the same query; keep the first.
	if existing, ok := e.queries[entry]; ok {
		return existing, nil
	}
	e.queries[entry] = &prepared
	return &prepared, nil
}
