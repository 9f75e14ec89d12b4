package domain

// AttackCategory tags a trial with the class of technique it exercises.
type AttackCategory string

const (
	CategoryPromptInjection     AttackCategory = "prompt_injection"
	CategoryJailbreak           AttackCategory = "jailbreak"
	CategoryDataExfiltration    AttackCategory = "data_exfiltration"
	CategoryRAGPoisoning        AttackCategory = "rag_poisoning"
	CategoryRoleManipulation    AttackCategory = "role_manipulation"
	CategoryMultiTurnEscalation AttackCategory = "multi_turn_escalation"
	CategoryAgentHijacking      AttackCategory = "agent_hijacking"
	CategoryCrossAgentLeak      AttackCategory = "cross_agent_leak"
	CategoryToolAbuse           AttackCategory = "tool_abuse"
	CategoryRoutingManipulation AttackCategory = "routing_manipulation"
)

// AttackTrial is one adversarial payload plus the textual indicators that
// decide whether a response counts as a successful attack. FollowUps, when
// present, turn the trial into a sequential multi-turn escalation.
type AttackTrial struct {
	ID                string         `json:"id" yaml:"id"`
	Category          AttackCategory `json:"category" yaml:"category"`
	Payload           string         `json:"payload" yaml:"payload"`
	SuccessIndicators []string       `json:"success_indicators" yaml:"success_indicators"`
	FailureIndicators []string       `json:"failure_indicators" yaml:"failure_indicators"`
	FollowUps         []string       `json:"follow_ups,omitempty" yaml:"follow_ups,omitempty"`
}

// MultiTurn reports whether the trial escalates over several turns.
func (t AttackTrial) MultiTurn() bool { return len(t.FollowUps) > 0 }

// TurnOutcome is the evaluation of a single turn inside a multi-turn trial.
type TurnOutcome struct {
	Turn           int    `json:"turn"`
	Payload        string `json:"payload"`
	BlockedByGuard bool   `json:"blocked_by_guard"`
	Response       string `json:"response"`
	Bypassed       bool   `json:"bypassed"`
}

// AttackOutcome is the result of running one trial against the pipeline.
// Bypassed means the attack achieved its stated goal without the guard
// blocking it: success indicators present, failure indicators absent.
type AttackOutcome struct {
	TrialID          string         `json:"trial_id"`
	Category         AttackCategory `json:"category"`
	Payload          string         `json:"payload"`
	BlockedByGuard   bool           `json:"blocked_by_guard"`
	Response         string         `json:"response"`
	FilterCaughtLeak bool           `json:"filter_caught_leak"`
	SuccessFound     []string       `json:"success_indicators_found,omitempty"`
	FailureFound     []string       `json:"failure_indicators_found,omitempty"`
	Bypassed         bool           `json:"bypassed"`
	MultiTurn        bool           `json:"multi_turn,omitempty"`
	Turns            []TurnOutcome  `json:"turns,omitempty"`
}

// Report aggregates one full simulation run. Blocked counts every trial
// the pipeline defended (all trials that did not bypass), so
// Blocked+Bypassed always equals TotalTrials.
type Report struct {
	TotalTrials     int                        `json:"total_attacks"`
	Blocked         int                        `json:"blocked"`
	Bypassed        int                        `json:"bypassed"`
	Score           float64                    `json:"score"`
	CategoryScores  map[AttackCategory]float64 `json:"category_scores"`
	Results         []AttackOutcome            `json:"results"`
	Recommendations []string                   `json:"recommendations"`
	SystemInfo      map[string]string          `json:"system_info,omitempty"`
}
