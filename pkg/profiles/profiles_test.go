package profiles

import (
	"testing"

	"github.com/alaabenhmida/AgentShield/pkg/filter"
)

func TestRegistry_LookupUnknownReturnsEmptyProfile(t *testing.T) {
	r := NewRegistry()

	p := r.Lookup("maritime")
	if p.Name != "maritime" {
		t.Fatalf("expected name to carry through, got %q", p.Name)
	}
	if len(p.Keywords) != 0 || len(p.Redactions) != 0 || len(p.TrustedSources) != 0 {
		t.Fatalf("expected empty tables for unknown domain, got %+v", p)
	}
}

func TestRegistry_RegisterAndLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Profile{Name: "Healthcare", Keywords: []string{"insulin"}}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	p := r.Lookup("healthcare")
	if len(p.Keywords) != 1 || p.Keywords[0] != "insulin" {
		t.Fatalf("lookup miss after register: %+v", p)
	}
}

func TestRegistry_RejectsUnnamedProfile(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Profile{Name: "  "}); err == nil {
		t.Fatalf("expected error for blank profile name")
	}
}

func TestRegistry_ExtendMergesTables(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Profile{
		Name:     "finance",
		Keywords: []string{"account"},
		Redactions: []filter.Rule{
			{Name: "account_id", Pattern: `\bACC-?\d{4,}\b`},
		},
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	err := r.Extend("finance", Profile{
		Keywords:       []string{"swift"},
		TrustedSources: []string{"sec.gov"},
	})
	if err != nil {
		t.Fatalf("extend failed: %v", err)
	}

	p := r.Lookup("finance")
	if len(p.Keywords) != 2 {
		t.Fatalf("expected merged keywords, got %v", p.Keywords)
	}
	if len(p.TrustedSources) != 1 {
		t.Fatalf("expected merged trusted sources, got %v", p.TrustedSources)
	}
	if len(p.Redactions) != 1 {
		t.Fatalf("base redactions lost in merge: %v", p.Redactions)
	}
}

func TestRegistry_ExtendCreatesMissingProfile(t *testing.T) {
	r := NewRegistry()
	if err := r.Extend("aviation", Profile{Keywords: []string{"runway"}}); err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if p := r.Lookup("aviation"); len(p.Keywords) != 1 {
		t.Fatalf("expected created profile, got %+v", p)
	}
}

func TestGlobalRegistry_HasBuiltins(t *testing.T) {
	r := GlobalRegistry()

	for _, name := range []string{"healthcare", "finance", "legal", "general"} {
		p := r.Lookup(name)
		if p.Name != name {
			t.Fatalf("missing builtin profile %s", name)
		}
	}

	hc := r.Lookup("healthcare")
	if len(hc.Keywords) == 0 || len(hc.Redactions) == 0 || len(hc.TrustedSources) == 0 {
		t.Fatalf("healthcare builtin incomplete: %+v", hc)
	}
	if g := r.Lookup("general"); len(g.Keywords) != 0 {
		t.Fatalf("general profile must have no keywords, got %v", g.Keywords)
	}

	// Builtin redaction tables must compile into a working filter.
	for _, name := range []string{"healthcare", "finance", "legal"} {
		p := r.Lookup(name)
		if _, err := filter.New(filter.Config{Domain: name, DomainRules: p.Redactions}); err != nil {
			t.Fatalf("builtin %s redactions failed to compile: %v", name, err)
		}
	}
}
