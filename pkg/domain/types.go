package domain

import (
	"time"

	"github.com/google/uuid"
)

// ThreatLevel grades the severity of a scored input.
type ThreatLevel string

// Severity order: benign < suspicious < malicious < critical.
const (
	LevelBenign     ThreatLevel = "benign"
	LevelSuspicious ThreatLevel = "suspicious"
	LevelMalicious  ThreatLevel = "malicious"
	LevelCritical   ThreatLevel = "critical"
)

// Rank returns the position of the level in the severity order.
// Unknown levels rank below benign.
func (l ThreatLevel) Rank() int {
	switch l {
	case LevelBenign:
		return 0
	case LevelSuspicious:
		return 1
	case LevelMalicious:
		return 2
	case LevelCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether l is as severe as other.
func (l ThreatLevel) AtLeast(other ThreatLevel) bool {
	return l.Rank() >= other.Rank()
}

// Verdict is the immutable result of one threat-scoring pass.
type Verdict struct {
	Level           ThreatLevel `json:"level"`
	Score           float64     `json:"score"`
	MatchedPatterns []string    `json:"matched_patterns,omitempty"`
	StructuralFlags []string    `json:"structural_flags,omitempty"`
	DomainRelevant  bool        `json:"domain_relevant"`
	AnomalyFlags    []string    `json:"anomaly_flags,omitempty"`
	Sanitized       string      `json:"sanitized,omitempty"`
}

// IsBlocked reports whether the verdict alone warrants refusing the input.
func (v Verdict) IsBlocked() bool {
	return v.Level == LevelMalicious || v.Level == LevelCritical
}

// Signals returns every matched label across the pattern, structural and
// anomaly layers, in detection order.
func (v Verdict) Signals() []string {
	out := make([]string, 0, len(v.MatchedPatterns)+len(v.StructuralFlags)+len(v.AnomalyFlags))
	out = append(out, v.MatchedPatterns...)
	out = append(out, v.StructuralFlags...)
	out = append(out, v.AnomalyFlags...)
	return out
}

// FilterResult is the immutable outcome of one output-filter scan.
type FilterResult struct {
	Text       string   `json:"text"`
	Redactions []string `json:"redactions,omitempty"`
	HadLeaks   bool     `json:"had_leaks"`
}

// DocumentVerdict is the immutable outcome of scanning one retrieval
// document. Tampering is only detectable once a baseline hash has been
// registered for the source.
type DocumentVerdict struct {
	Safe           bool     `json:"safe"`
	Content        string   `json:"content"`
	Source         string   `json:"source"`
	Flags          []string `json:"flags,omitempty"`
	ContentHash    string   `json:"content_hash,omitempty"`
	RegisteredHash string   `json:"registered_hash,omitempty"`
}

// WasTampered reports whether the document diverged from its registered
// baseline. False when no baseline exists.
func (d DocumentVerdict) WasTampered() bool {
	return d.ContentHash != "" && d.RegisteredHash != "" && d.ContentHash != d.RegisteredHash
}

// AgentResponse is what a protected agent returns from one invocation.
// Adapters never fail outright: internal errors surface in Err with an
// empty Output so the chain can keep processing.
type AgentResponse struct {
	Output            string   `json:"output"`
	AgentsInvolved    []string `json:"agents_involved,omitempty"`
	ToolsCalled       []string `json:"tools_called,omitempty"`
	ContextRetrieved  []string `json:"context_retrieved,omitempty"`
	IntermediateSteps []string `json:"intermediate_steps,omitempty"`
	Err               string   `json:"error,omitempty"`
	Raw               any      `json:"-"`
}

// Incident is one audit-trail entry, recorded when a request's risk
// crossed the logging threshold or a stage observed a violation.
type Incident struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Stage     string         `json:"stage"`
	Preview   string         `json:"content_preview"`
	Details   map[string]any `json:"details,omitempty"`
}

// incidentPreviewLen caps how much of the observed content an incident
// retains.
const incidentPreviewLen = 200

// RequestContext is the mutable, single-request record threaded through
// the execution chain. Exactly one Orchestrator.Run call owns it; it is
// never shared across concurrent requests.
type RequestContext struct {
	UserInput      string
	EffectiveInput string
	Domain         string
	Verdict        *Verdict
	Blocked        bool
	BlockReason    string
	Response       *AgentResponse
	Redactions     []string
	Incidents      []Incident
	Metadata       map[string]any
	Trace          []string
}

// NewRequestContext seeds a context for one run. EffectiveInput starts
// equal to UserInput; stages rewrite it as they go.
func NewRequestContext(input, domain string) *RequestContext {
	return &RequestContext{
		UserInput:      input,
		EffectiveInput: input,
		Domain:         domain,
		Metadata:       map[string]any{},
	}
}

// LogIncident appends an audit entry. The preview keeps the first 200
// bytes of whatever content the stage observed, never the full text.
func (rc *RequestContext) LogIncident(content, stage string, details map[string]any) {
	if len(content) > incidentPreviewLen {
		content = content[:incidentPreviewLen]
	}
	rc.Incidents = append(rc.Incidents, Incident{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Preview:   content,
		Details:   details,
	})
}

// SessionEntry is one recorded turn of a protected session's history.
type SessionEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Input       string    `json:"input"`
	Output      string    `json:"output"`
	Blocked     bool      `json:"blocked"`
	ThreatScore float64   `json:"threat_score"`
}
