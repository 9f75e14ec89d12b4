package agent

import (
	"context"
	"errors"
	"testing"
)

func TestNewAnthropicAgentValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AnthropicConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     AnthropicConfig{APIKey: "test-key", Model: "claude-sonnet-4-20250514"},
			wantErr: false,
		},
		{
			name:    "missing api key",
			cfg:     AnthropicConfig{Model: "claude-sonnet-4-20250514"},
			wantErr: true,
		},
		{
			name:    "missing model",
			cfg:     AnthropicConfig{APIKey: "test-key"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAnthropicAgent(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAnthropicAgent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewOpenAIAgentValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OpenAIConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     OpenAIConfig{APIKey: "test-key", Model: "gpt-4o"},
			wantErr: false,
		},
		{
			name:    "missing api key",
			cfg:     OpenAIConfig{Model: "gpt-4o"},
			wantErr: true,
		},
		{
			name:    "missing model",
			cfg:     OpenAIConfig{APIKey: "test-key"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenAIAgent(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewOpenAIAgent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewHTTPAgentValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HTTPConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     HTTPConfig{BaseURL: "http://localhost:11434/v1", Model: "llama3"},
			wantErr: false,
		},
		{
			name:    "api key optional for local runtimes",
			cfg:     HTTPConfig{BaseURL: "http://localhost:1234/v1", Model: "local-model"},
			wantErr: false,
		},
		{
			name:    "missing base url",
			cfg:     HTTPConfig{Model: "llama3"},
			wantErr: true,
		},
		{
			name:    "missing model",
			cfg:     HTTPConfig{BaseURL: "http://localhost:11434/v1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPAgent(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewHTTPAgent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFuncAgentInvoke(t *testing.T) {
	a := NewFunc("upper", func(_ context.Context, input string) (string, error) {
		return "got: " + input, nil
	})

	resp, err := a.Invoke(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Output != "got: hello" {
		t.Errorf("Output = %q, want %q", resp.Output, "got: hello")
	}
	if resp.Err != "" {
		t.Errorf("Err = %q, want empty", resp.Err)
	}
}

func TestFuncAgentFoldsError(t *testing.T) {
	a := NewFunc("broken", func(context.Context, string) (string, error) {
		return "", errors.New("backend unavailable")
	})

	resp, err := a.Invoke(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v, want nil", err)
	}
	if resp.Err != "backend unavailable" {
		t.Errorf("Err = %q, want %q", resp.Err, "backend unavailable")
	}
}

func TestFuncAgentRecoversPanic(t *testing.T) {
	a := NewFunc("panicky", func(context.Context, string) (string, error) {
		panic("boom")
	})

	resp, err := a.Invoke(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v, want nil", err)
	}
	if resp == nil {
		t.Fatal("Invoke() returned nil response after panic")
	}
	if resp.Err == "" {
		t.Error("Err is empty, want panic message")
	}
}

func TestFuncAgentNilFunction(t *testing.T) {
	a := NewFunc("", nil)

	resp, err := a.Invoke(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v, want nil", err)
	}
	if resp.Err == "" {
		t.Error("Err is empty, want configuration error")
	}
	if info := a.SystemInfo(); info["name"] != "func" {
		t.Errorf("SystemInfo name = %q, want %q", info["name"], "func")
	}
}
