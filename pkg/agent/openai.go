package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/alaabenhmida/AgentShield/pkg/boundary"
	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

// OpenAIConfig holds the settings for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string // optional custom endpoint
	Model        string
	MaxTokens    int    // defaults to 1024
	SystemPrompt string // security preamble is always prepended
}

// OpenAIAgent invokes a GPT model through the official SDK.
type OpenAIAgent struct {
	client    *openai.Client
	model     string
	maxTokens int64
	system    string
}

// NewOpenAIAgent validates the config and builds the adapter.
func NewOpenAIAgent(cfg OpenAIConfig) (*OpenAIAgent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent: api_key is required for openai")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent: model is required for openai")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIAgent{
		client:    &client,
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		system:    boundary.PrefixSystem(cfg.SystemPrompt),
	}, nil
}

func (a *OpenAIAgent) Invoke(ctx context.Context, input string) (*domain.AgentResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(a.system),
			openai.UserMessage(input),
		},
		MaxTokens: openai.Int(a.maxTokens),
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return &domain.AgentResponse{Err: err.Error()}, nil
	}

	resp := &domain.AgentResponse{Raw: completion}
	if len(completion.Choices) == 0 {
		resp.Err = "no completion choices returned"
		return resp, nil
	}

	choice := completion.Choices[0]
	resp.Output = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolsCalled = append(resp.ToolsCalled,
			fmt.Sprintf("%s(%s)", tc.Function.Name, tc.Function.Arguments))
	}
	return resp, nil
}

func (a *OpenAIAgent) SystemInfo() map[string]string {
	return map[string]string{"provider": "openai", "model": a.model}
}
