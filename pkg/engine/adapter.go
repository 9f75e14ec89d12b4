package engine

import (
	"context"

	"github.com/alaabenhmida/AgentShield/pkg/agent"
	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

// shieldAgent adapts a Shield to the agent contract.
type shieldAgent struct {
	shield *Shield
}

// AsAgent exposes the shield as an agent, so a guarded agent can stand
// anywhere a bare one does. The red-team simulator is the main consumer:
// pointing it at AsAgent(shield) scores the protection chain instead of
// the naked agent. Blocked runs come back as ordinary refusal responses
// rather than errors, which is what a caller of a guarded deployment
// sees.
func AsAgent(s *Shield) agent.Agent {
	return &shieldAgent{shield: s}
}

func (a *shieldAgent) Invoke(ctx context.Context, input string) (*domain.AgentResponse, error) {
	rc, err := a.shield.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	return rc.Response, nil
}

func (a *shieldAgent) SystemInfo() map[string]string {
	inner := a.shield.agent.SystemInfo()
	info := make(map[string]string, len(inner)+2)
	for k, v := range inner {
		info[k] = v
	}
	info["shield"] = "enabled"
	info["shield_domain"] = a.shield.domain
	return info
}
