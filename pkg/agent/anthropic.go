package agent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/alaabenhmida/AgentShield/pkg/boundary"
	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

const defaultMaxTokens = 1024

// AnthropicConfig holds the settings for the Anthropic adapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string // optional custom endpoint
	Model        string
	MaxTokens    int    // defaults to 1024
	SystemPrompt string // security preamble is always prepended
}

// AnthropicAgent invokes a Claude model through the official SDK.
type AnthropicAgent struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	system    string
}

// NewAnthropicAgent validates the config and builds the adapter.
func NewAnthropicAgent(cfg AnthropicConfig) (*AnthropicAgent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent: api_key is required for anthropic")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent: model is required for anthropic")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicAgent{
		client:    &client,
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		system:    boundary.PrefixSystem(cfg.SystemPrompt),
	}, nil
}

func (a *AnthropicAgent) Invoke(ctx context.Context, input string) (*domain.AgentResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
		},
		System: []anthropic.TextBlockParam{{Text: a.system}},
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return &domain.AgentResponse{Err: err.Error()}, nil
	}

	resp := &domain.AgentResponse{Raw: msg}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Output += block.Text
		case "tool_use":
			resp.ToolsCalled = append(resp.ToolsCalled,
				fmt.Sprintf("%s(%s)", block.Name, string(block.Input)))
		}
	}
	return resp, nil
}

func (a *AnthropicAgent) SystemInfo() map[string]string {
	return map[string]string{"provider": "anthropic", "model": a.model}
}
