// Package filter scans agent output for sensitive data and structural
// leaks, redacting matches in place. Rules run in a fixed order:
// universal sensitive-data redactions, then domain-specific redactions,
// then leak detectors. Scanning is idempotent: filtered text re-scans
// clean.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

// Rule declares one redaction pattern. When Replacement is empty the
// rule redacts with "[<NAME>_REDACTED]" derived from its name.
type Rule struct {
	Name        string `json:"name" yaml:"name"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement,omitempty" yaml:"replacement,omitempty"`
	IgnoreCase  bool   `json:"ignore_case,omitempty" yaml:"ignore_case,omitempty"`
}

// Config bundles the filter configuration for one protected domain.
type Config struct {
	Domain string
	// DomainRules run between the universal redactions and the leak
	// detectors, typically sourced from the domain's profile.
	DomainRules []Rule
}

// Filter applies the configured redaction pipeline to output text.
// It holds no per-request state and is safe for concurrent use.
type Filter struct {
	domain string
	rules  []compiledRule
}

type compiledRule struct {
	name        string
	expr        *regexp.Regexp
	replacement string
}

// New constructs a Filter using the provided configuration.
func New(cfg Config) (*Filter, error) {
	rules := make([]compiledRule, 0, len(universalRules)+len(cfg.DomainRules)+len(leakRules))
	rules = append(rules, universalRules...)
	for _, rule := range cfg.DomainRules {
		compiled, err := compileRule(rule)
		if err != nil {
			return nil, err
		}
		rules = append(rules, compiled)
	}
	rules = append(rules, leakRules...)
	return &Filter{domain: cfg.Domain, rules: rules}, nil
}

// Scan redacts sensitive data and leak patterns from text. Each rule
// that substituted anything contributes its replacement token once to
// the redaction list; HadLeaks is true iff that list is non-empty.
func (f *Filter) Scan(text string) domain.FilterResult {
	out := text
	var redactions []string
	for _, rule := range f.rules {
		if !rule.expr.MatchString(out) {
			continue
		}
		out = rule.expr.ReplaceAllString(out, rule.replacement)
		redactions = append(redactions, rule.replacement)
	}
	return domain.FilterResult{
		Text:       out,
		Redactions: redactions,
		HadLeaks:   len(redactions) > 0,
	}
}

// Domain returns the profile name the filter was built for.
func (f *Filter) Domain() string { return f.domain }

func compileRule(rule Rule) (compiledRule, error) {
	name := strings.TrimSpace(rule.Name)
	if name == "" {
		return compiledRule{}, fmt.Errorf("filter: rule name is required")
	}
	pattern := strings.TrimSpace(rule.Pattern)
	if pattern == "" {
		return compiledRule{}, fmt.Errorf("filter: pattern is required for rule %s", name)
	}
	if rule.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	expr, err := regexp.Compile(pattern)
	if err != nil {
		return compiledRule{}, fmt.Errorf("filter: invalid pattern for rule %s: %w", name, err)
	}
	replacement := rule.Replacement
	if replacement == "" {
		replacement = redactionToken(name)
	}
	return compiledRule{name: name, expr: expr, replacement: replacement}, nil
}

func redactionToken(name string) string {
	return "[" + strings.ToUpper(name) + "_REDACTED]"
}
