package agent

import (
	"context"
	"fmt"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

// FuncAgent adapts a plain function into an Agent. It is the cheapest way
// to protect an in-process agent that has no transport of its own.
type FuncAgent struct {
	name string
	fn   func(ctx context.Context, input string) (string, error)
}

// NewFunc wraps fn as an Agent. Errors and panics inside fn become
// error-carrying responses.
func NewFunc(name string, fn func(ctx context.Context, input string) (string, error)) *FuncAgent {
	if name == "" {
		name = "func"
	}
	return &FuncAgent{name: name, fn: fn}
}

func (a *FuncAgent) Invoke(ctx context.Context, input string) (resp *domain.AgentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = &domain.AgentResponse{Err: fmt.Sprintf("agent panicked: %v", r)}
			err = nil
		}
	}()

	if a.fn == nil {
		return &domain.AgentResponse{Err: "no function configured"}, nil
	}
	out, ferr := a.fn(ctx, input)
	if ferr != nil {
		return &domain.AgentResponse{Err: ferr.Error()}, nil
	}
	return &domain.AgentResponse{Output: out}, nil
}

func (a *FuncAgent) SystemInfo() map[string]string {
	return map[string]string{"provider": "func", "name": a.name}
}
