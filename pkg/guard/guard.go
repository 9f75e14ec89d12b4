// Package guard implements deterministic, rule-based threat scoring for
// inbound agent input. Four independent signal layers contribute to one
// numeric score: known injection phrasings (including payloads hidden in
// base64 blobs), structural anomalies, domain relevance, and statistical
// character anomalies.
package guard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

// Level thresholds, evaluated in this exact order.
const (
	criticalThreshold   = 0.90
	maliciousThreshold  = 0.65
	suspiciousThreshold = 0.35
)

const (
	defaultLengthCeiling = 2000

	lengthWeight  = 0.2
	anomalyWeight = 0.15
	encodedWeight = 0.8

	entropyThreshold      = 5.5
	specialRatioThreshold = 0.3
)

// Rule declares an additional weighted detection pattern. Patterns are
// matched case-insensitively as a search; a rule contributes its weight
// at most once per input.
type Rule struct {
	Name    string
	Pattern string
	Weight  float64
}

// Config bundles the scoring configuration for one protected domain.
type Config struct {
	// Domain names the subject-matter profile the scorer runs under.
	Domain string
	// Keywords drive the domain-relevance layer. An empty list means
	// every input counts as relevant.
	Keywords []string
	// ExtraRules are appended after the built-in pattern layer.
	ExtraRules []Rule
	// LengthCeiling is the input size above which the structural layer
	// flags excessive length. Zero selects the default.
	LengthCeiling int
}

// Scorer evaluates input text against the configured signal layers.
// It holds no per-request state and is safe for concurrent use.
type Scorer struct {
	domain   string
	keywords []string
	rules    []compiledRule
	ceiling  int
}

type compiledRule struct {
	name   string
	expr   *regexp.Regexp
	weight float64
}

// New constructs a Scorer using the provided configuration.
func New(cfg Config) (*Scorer, error) {
	rules := make([]compiledRule, 0, len(universalRules)+len(cfg.ExtraRules))
	rules = append(rules, universalRules...)
	for _, rule := range cfg.ExtraRules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return nil, fmt.Errorf("guard: rule name is required")
		}
		if rule.Weight <= 0 || rule.Weight > 1 {
			return nil, fmt.Errorf("guard: invalid weight %v for rule %s", rule.Weight, name)
		}
		expr, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("guard: invalid pattern for rule %s: %w", name, err)
		}
		rules = append(rules, compiledRule{name: name, expr: expr, weight: rule.Weight})
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}

	ceiling := cfg.LengthCeiling
	if ceiling <= 0 {
		ceiling = defaultLengthCeiling
	}

	return &Scorer{
		domain:   cfg.Domain,
		keywords: keywords,
		rules:    rules,
		ceiling:  ceiling,
	}, nil
}

// Analyze scores a single input. Any string, including empty, is valid;
// the same input always yields an identical verdict.
func (s *Scorer) Analyze(text string) domain.Verdict {
	var (
		score      float64
		matched    []string
		structural []string
		anomalies  []string
	)

	for _, rule := range s.rules {
		if rule.expr.MatchString(text) {
			matched = append(matched, rule.name)
			score += rule.weight
		}
	}

	// Attacks hidden inside encoded blobs must still be caught: decode
	// base64-looking tokens and check the plaintext for danger words.
	for _, token := range base64Token.FindAllString(text, -1) {
		decoded, ok := decodeBase64(token)
		if !ok {
			continue
		}
		lower := strings.ToLower(decoded)
		for _, word := range encodedDangerWords {
			if strings.Contains(lower, word) {
				matched = append(matched, "base64_hidden_payload")
				score += encodedWeight
				break
			}
		}
	}

	for _, rule := range structuralRules {
		if rule.expr.MatchString(text) {
			structural = append(structural, rule.name)
			score += rule.weight
		}
	}
	if len(text) > s.ceiling {
		structural = append(structural, "excessive_length")
		score += lengthWeight
	}

	if e := shannonEntropy(text); e > entropyThreshold {
		anomalies = append(anomalies, fmt.Sprintf("high_entropy:%.2f", e))
		score += anomalyWeight
	}
	if r := specialCharRatio(text); r > specialRatioThreshold {
		anomalies = append(anomalies, fmt.Sprintf("high_special_char_ratio:%.2f", r))
		score += anomalyWeight
	}

	if score > 1 {
		score = 1
	}

	level := levelFor(score)
	verdict := domain.Verdict{
		Level:           level,
		Score:           score,
		MatchedPatterns: matched,
		StructuralFlags: structural,
		DomainRelevant:  s.relevant(text),
		AnomalyFlags:    anomalies,
	}
	if level == domain.LevelSuspicious {
		verdict.Sanitized = sanitize(text)
	}
	return verdict
}

// Domain returns the profile name the scorer was built for.
func (s *Scorer) Domain() string { return s.domain }

func levelFor(score float64) domain.ThreatLevel {
	switch {
	case score >= criticalThreshold:
		return domain.LevelCritical
	case score >= maliciousThreshold:
		return domain.LevelMalicious
	case score >= suspiciousThreshold:
		return domain.LevelSuspicious
	default:
		return domain.LevelBenign
	}
}

func (s *Scorer) relevant(text string) bool {
	if len(s.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// sanitize strips recognized fake-role tags and delimiter runs, giving
// downstream stages a safer rewrite of a suspicious input.
func sanitize(text string) string {
	out := fakeTagPattern.ReplaceAllString(text, "")
	out = dashRunPattern.ReplaceAllString(out, "")
	out = equalsRunPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
