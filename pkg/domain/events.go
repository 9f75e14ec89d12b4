package domain

import (
	"context"
	"time"
)

// Event identifies an orchestrator observation point.
type Event string

const (
	EventBeforeRun  Event = "before_run"
	EventAfterRun   Event = "after_run"
	EventOnBlock    Event = "on_block"
	EventOnIncident Event = "on_incident"
)

// Notification is the fixed payload delivered at each observation point.
// Incident is set only for EventOnIncident.
type Notification struct {
	Event       Event     `json:"event"`
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	Input       string    `json:"input,omitempty"`
	Output      string    `json:"output,omitempty"`
	Blocked     bool      `json:"blocked"`
	BlockReason string    `json:"block_reason,omitempty"`
	ThreatScore float64   `json:"threat_score,omitempty"`
	Incident    *Incident `json:"incident,omitempty"`
}

// Subscriber receives orchestrator notifications. Implementations must be
// safe for concurrent use and must not block the run loop; slow delivery
// belongs behind the subscriber's own queue.
type Subscriber interface {
	Notify(ctx context.Context, n Notification)
}
