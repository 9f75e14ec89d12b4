// Package docscan inspects retrieval-augmented generation source
// documents for embedded instructions, hidden markup and content
// tampering against registered baselines.
package docscan

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

const redactedMarker = "[REDACTED]"

const untrustedFlagPrefix = "untrusted_source:"

// injectionRules are matched case-insensitively inside document content;
// every match is sanitized and flagged.
var injectionRules = []struct {
	name string
	expr *regexp.Regexp
}{
	{"doc_injection_override", regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`)},
	{"doc_fake_system_tag", regexp.MustCompile(`(?i)\[SYSTEM\]|\[ADMIN\]`)},
	{"doc_persona_override", regexp.MustCompile(`(?i)you\s+are\s+now`)},
	{"doc_prompt_leak", regexp.MustCompile(`(?i)(reveal|show|print)\s+(your\s+)?system\s+prompt`)},
	{"html_comment_hiding", regexp.MustCompile(`(?i)<!--[\s\S]*?-->`)},
	{"script_injection", regexp.MustCompile(`(?i)<script`)},
}

// Config bundles the scanner configuration.
type Config struct {
	// TrustedSources is a substring allowlist. Empty disables the
	// source check entirely.
	TrustedSources []string
}

// Scanner validates retrieval documents before they reach the agent.
// Baseline registration is safe for concurrent use.
type Scanner struct {
	trusted []string

	mu        sync.RWMutex
	baselines map[string]string
}

// New constructs a Scanner using the provided configuration.
func New(cfg Config) *Scanner {
	trusted := make([]string, 0, len(cfg.TrustedSources))
	for _, src := range cfg.TrustedSources {
		src = strings.TrimSpace(src)
		if src != "" {
			trusted = append(trusted, src)
		}
	}
	return &Scanner{
		trusted:   trusted,
		baselines: make(map[string]string),
	}
}

// ScanDocument checks one document. An untrusted source is flagged but
// not disqualifying on its own; injection matches and baseline
// mismatches make the verdict unsafe. Any string is valid input.
func (s *Scanner) ScanDocument(doc, source string) domain.DocumentVerdict {
	var flags []string
	content := doc

	if len(s.trusted) > 0 && source != "unknown" && !s.isTrusted(source) {
		flags = append(flags, untrustedFlagPrefix+source)
	}

	for _, rule := range injectionRules {
		if rule.expr.MatchString(content) {
			flags = append(flags, rule.name)
			content = rule.expr.ReplaceAllString(content, redactedMarker)
		}
	}

	contentHash := hashContent(doc)
	registered := s.baseline(source)
	if registered != "" && registered != contentHash {
		flags = append(flags, "integrity_mismatch")
	}

	return domain.DocumentVerdict{
		Safe:           safeFlags(flags),
		Content:        content,
		Source:         source,
		Flags:          flags,
		ContentHash:    contentHash,
		RegisteredHash: registered,
	}
}

// FilterDocuments returns the safe (possibly sanitized) subset of docs,
// preserving relative order. Missing sources count as "unknown".
func (s *Scanner) FilterDocuments(docs, sources []string) []string {
	out := make([]string, 0, len(docs))
	for i, doc := range docs {
		source := "unknown"
		if i < len(sources) {
			source = sources[i]
		}
		verdict := s.ScanDocument(doc, source)
		if verdict.Safe {
			out = append(out, verdict.Content)
		}
	}
	return out
}

// RegisterDocument stores the content digest for a source, establishing
// the baseline for future tamper detection, and returns the digest.
func (s *Scanner) RegisterDocument(source, doc string) string {
	digest := hashContent(doc)
	s.mu.Lock()
	s.baselines[source] = digest
	s.mu.Unlock()
	return digest
}

func (s *Scanner) baseline(source string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baselines[source]
}

func (s *Scanner) isTrusted(source string) bool {
	for _, t := range s.trusted {
		if strings.Contains(source, t) {
			return true
		}
	}
	return false
}

// safeFlags reports whether every flag is a bare source warning.
func safeFlags(flags []string) bool {
	for _, f := range flags {
		if !strings.HasPrefix(f, untrustedFlagPrefix) {
			return false
		}
	}
	return true
}

func hashContent(doc string) string {
	sum := sha256.Sum256([]byte(doc))
	return hex.EncodeToString(sum[:])
}
