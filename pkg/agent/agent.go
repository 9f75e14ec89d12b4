// Package agent defines the invoke contract the execution chain drives and
// the adapters that bind real model backends to it.
//
// Adapters never surface model-side failures as errors: they populate
// AgentResponse.Err instead, so the protective chain always has a response
// to filter and return. The error return is reserved for conditions no
// response can express, and the invoke stage folds even those into the
// response as a last resort.
package agent

import (
	"context"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

// Agent is an in-process callable protected by the shield.
type Agent interface {
	// Invoke runs one turn against the agent with the prepared input.
	Invoke(ctx context.Context, input string) (*domain.AgentResponse, error)

	// SystemInfo describes the agent for reports and diagnostics.
	SystemInfo() map[string]string
}
