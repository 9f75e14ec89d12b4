package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/alaabenhmida/AgentShield/pkg/boundary"
	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPConfig holds the settings for the OpenAI-compatible HTTP adapter.
// It covers self-hosted runtimes like Ollama, vLLM and LM Studio.
type HTTPConfig struct {
	BaseURL      string // e.g. http://localhost:11434/v1
	APIKey       string // optional bearer token
	Model        string
	SystemPrompt string        // security preamble is always prepended
	Timeout      time.Duration // defaults to 30s
	Client       *http.Client  // optional override, e.g. for tests
}

// HTTPAgent talks to any chat-completions endpoint over plain HTTP.
type HTTPAgent struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	system  string
	logger  *slog.Logger
}

// NewHTTPAgent validates the config and builds the adapter. Outbound
// requests carry trace headers through the instrumented transport.
func NewHTTPAgent(cfg HTTPConfig, logger *slog.Logger) (*HTTPAgent, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("agent: base_url is required for http")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent: model is required for http")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &HTTPAgent{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		system:  boundary.PrefixSystem(cfg.SystemPrompt),
		logger:  logger,
	}, nil
}

func (a *HTTPAgent) Invoke(ctx context.Context, input string) (*domain.AgentResponse, error) {
	payload := map[string]any{
		"model": a.model,
		"messages": []map[string]string{
			{"role": "system", "content": a.system},
			{"role": "user", "content": input},
		},
	}
	bodyBytes, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return &domain.AgentResponse{Err: fmt.Sprintf("build request: %v", err)}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &domain.AgentResponse{Err: fmt.Sprintf("llm request failed: %v", err)}, nil
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			a.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &domain.AgentResponse{
			Err: fmt.Sprintf("llm returned status %d: %s", resp.StatusCode, string(body)),
		}, nil
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return &domain.AgentResponse{Err: fmt.Sprintf("decode response: %v", err)}, nil
	}
	if len(completion.Choices) == 0 {
		return &domain.AgentResponse{Err: "no completion choices returned"}, nil
	}

	out := &domain.AgentResponse{Output: completion.Choices[0].Message.Content}
	for _, tc := range completion.Choices[0].Message.ToolCalls {
		out.ToolsCalled = append(out.ToolsCalled,
			fmt.Sprintf("%s(%s)", tc.Function.Name, tc.Function.Arguments))
	}
	return out, nil
}

func (a *HTTPAgent) SystemInfo() map[string]string {
	return map[string]string{"provider": "http", "model": a.model, "base_url": a.baseURL}
}
