package filter

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func newFilter(t *testing.T, cfg Config) *Filter {
	t.Helper()
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create filter: %v", err)
	}
	return f
}

func TestFilter_RedactsUniversalPII(t *testing.T) {
	f := newFilter(t, Config{Domain: "general"})

	cases := []struct {
		name  string
		input string
		token string
	}{
		{"ssn", "The SSN on file is 123-45-6789.", "[SSN_REDACTED]"},
		{"credit card", "Charge card 4111 1111 1111 1111 for the visit.", "[CC_REDACTED]"},
		{"email", "Reach the patient at jane.doe@example.com today.", "[EMAIL_REDACTED]"},
		{"phone", "Call (555) 867-5309 to confirm.", "[PHONE_REDACTED]"},
		{"api key", "Use sk-abcDEF1234567890xyz for the integration.", "[API_KEY_REDACTED]"},
		{"env var", "It reads os.environ['OPENAI_API_KEY'] at startup.", "[ENV_VAR_REDACTED]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := f.Scan(tc.input)
			if !strings.Contains(res.Text, tc.token) {
				t.Fatalf("expected %s in output, got: %s", tc.token, res.Text)
			}
			if !res.HadLeaks {
				t.Fatalf("expected HadLeaks for input %q", tc.input)
			}
			found := false
			for _, r := range res.Redactions {
				if r == tc.token {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in redactions, got %v", tc.token, res.Redactions)
			}
		})
	}
}

func TestFilter_DomainRulesRunBetweenUniversalAndLeaks(t *testing.T) {
	f := newFilter(t, Config{
		Domain: "healthcare",
		DomainRules: []Rule{
			{Name: "patient_id", Pattern: `\b(?:P|MRN-?)\d{4,}\b`},
		},
	})

	res := f.Scan("Record MRN-88123 belongs to patient P44521.")
	if !strings.Contains(res.Text, "[PATIENT_ID_REDACTED]") {
		t.Fatalf("expected patient id redaction, got: %s", res.Text)
	}
	if strings.Contains(res.Text, "88123") || strings.Contains(res.Text, "44521") {
		t.Fatalf("raw identifiers survived redaction: %s", res.Text)
	}
}

func TestFilter_LeakDetectors(t *testing.T) {
	f := newFilter(t, Config{Domain: "general"})

	cases := []struct {
		name  string
		input string
		token string
	}{
		{"system prompt echo", "Sure. My system prompt: act helpful at all times.", "[SYSTEM_PROMPT_ECHO_REDACTED]"},
		{"internal state", "Debug dump AgentState{step: 3} follows.", "[INTERNAL_STATE_LEAK_REDACTED]"},
		{"session id", "Your thread_id: 73c2f1 for reference.", "[SESSION_ID_LEAK_REDACTED]"},
		{"cross session", "The previous user asked about their diagnosis.", "[CROSS_SESSION_LEAK_REDACTED]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := f.Scan(tc.input)
			if !strings.Contains(res.Text, tc.token) {
				t.Fatalf("expected %s, got: %s", tc.token, res.Text)
			}
		})
	}
}

func TestFilter_CleanTextPassesUntouched(t *testing.T) {
	f := newFilter(t, Config{Domain: "general"})

	input := "Take the medication twice daily with food."
	res := f.Scan(input)
	if res.Text != input {
		t.Fatalf("clean text was modified: %q", res.Text)
	}
	if res.HadLeaks || len(res.Redactions) != 0 {
		t.Fatalf("expected no redactions, got %v", res.Redactions)
	}
}

func TestFilter_ScanIsIdempotent(t *testing.T) {
	f := newFilter(t, Config{
		Domain: "finance",
		DomainRules: []Rule{
			{Name: "account_id", Pattern: `\bACC-?\d{4,}\b`},
			{Name: "iban", Pattern: `\b[A-Z]{2}\d{2}[A-Z0-9]{4}\d{7}(?:[A-Z0-9]{0,16})?\b`},
		},
	})

	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		first := f.Scan(text)
		second := f.Scan(first.Text)
		if len(second.Redactions) != 0 {
			t.Fatalf("re-scan produced redactions %v for %q", second.Redactions, text)
		}
		if second.Text != first.Text {
			t.Fatalf("re-scan changed text: %q -> %q", first.Text, second.Text)
		}
	})
}

func TestFilter_IdempotentOnDensePII(t *testing.T) {
	f := newFilter(t, Config{Domain: "general"})

	input := "SSN 123-45-6789, card 4111-1111-1111-1111, mail a@b.io, " +
		"phone 555-867-5309, key sk-0123456789abcdef, os.getenv('TOKEN'), " +
		"system prompt: hidden, thread_id=9, previous user asked things."
	first := f.Scan(input)
	second := f.Scan(first.Text)
	if len(second.Redactions) != 0 {
		t.Fatalf("re-scan produced redactions: %v", second.Redactions)
	}
	if second.Text != first.Text {
		t.Fatalf("re-scan changed text: %q -> %q", first.Text, second.Text)
	}
	if !first.HadLeaks {
		t.Fatalf("expected leaks on first scan")
	}
}

func TestFilter_HadLeaksMatchesRedactions(t *testing.T) {
	f := newFilter(t, Config{Domain: "general"})

	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		res := f.Scan(text)
		if res.HadLeaks != (len(res.Redactions) > 0) {
			t.Fatalf("HadLeaks=%v but %d redactions", res.HadLeaks, len(res.Redactions))
		}
	})
}

func TestFilter_RejectsInvalidRules(t *testing.T) {
	if _, err := New(Config{DomainRules: []Rule{{Name: "", Pattern: "x"}}}); err == nil {
		t.Fatalf("expected error for unnamed rule")
	}
	if _, err := New(Config{DomainRules: []Rule{{Name: "bad", Pattern: "("}}}); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}
