// Package profiles catalogs per-domain protection tables: relevance
// keywords for the threat scorer, redaction rules for the output filter,
// and trusted sources for the document scanner. Domain extension is an
// explicit registry merge, never a hidden global mutation.
package profiles

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alaabenhmida/AgentShield/pkg/filter"
)

// Profile bundles the protection tables for one subject-matter domain.
type Profile struct {
	Name           string        `json:"name" yaml:"name"`
	Keywords       []string      `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Redactions     []filter.Rule `json:"redactions,omitempty" yaml:"redactions,omitempty"`
	TrustedSources []string      `json:"trusted_sources,omitempty" yaml:"trusted_sources,omitempty"`
}

// Registry is a threadsafe catalog of domain profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry constructs an empty Registry instance.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

// Register inserts or replaces a profile keyed by its lowercased name.
func (r *Registry) Register(p Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profiles: profile name is required")
	}
	key := strings.ToLower(p.Name)

	r.mu.Lock()
	r.profiles[key] = p
	r.mu.Unlock()
	return nil
}

// Extend merges additional entries into an existing profile, creating
// it when absent. Keyword, redaction and trusted-source lists append.
func (r *Registry) Extend(name string, extra Profile) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("profiles: profile name is required")
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	base, ok := r.profiles[key]
	if !ok {
		base = Profile{Name: name}
	}
	base.Keywords = append(base.Keywords, extra.Keywords...)
	base.Redactions = append(base.Redactions, extra.Redactions...)
	base.TrustedSources = append(base.TrustedSources, extra.TrustedSources...)
	r.profiles[key] = base
	return nil
}

// Lookup retrieves a profile by domain name. Unknown domains resolve to
// an empty profile rather than an error, so the caller always gets
// usable (if empty) tables.
func (r *Registry) Lookup(name string) Profile {
	key := strings.ToLower(name)

	r.mu.RLock()
	p, ok := r.profiles[key]
	r.mu.RUnlock()
	if !ok {
		return Profile{Name: name}
	}
	return p
}

// Names returns the registered domain names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// GlobalRegistry returns the process-wide registry populated with the
// builtin healthcare, finance, legal and general profiles.
func GlobalRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, p := range builtinProfiles() {
			_ = defaultRegistry.Register(p)
		}
	})
	return defaultRegistry
}
