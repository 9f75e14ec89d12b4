package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alaabenhmida/AgentShield/pkg/boundary"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestHTTPAgentInvoke(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Hello from mock server!"}},
			},
		})
	}))
	defer server.Close()

	a, err := NewHTTPAgent(HTTPConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	}, nil)
	if err != nil {
		t.Fatalf("NewHTTPAgent() error = %v", err)
	}

	resp, err := a.Invoke(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Err != "" {
		t.Fatalf("Err = %q, want empty", resp.Err)
	}
	if resp.Output != "Hello from mock server!" {
		t.Errorf("Output = %q, want %q", resp.Output, "Hello from mock server!")
	}

	if gotPath != "/chat/completions" {
		t.Errorf("request path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotPayload.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotPayload.Model)
	}
	if len(gotPayload.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(gotPayload.Messages))
	}
	if gotPayload.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", gotPayload.Messages[0].Role)
	}
	if !strings.Contains(gotPayload.Messages[0].Content, boundary.SecurityPreamble) {
		t.Error("system message does not carry the security preamble")
	}
	if gotPayload.Messages[1].Role != "user" || gotPayload.Messages[1].Content != "Hello" {
		t.Errorf("user message = %+v, want role=user content=Hello", gotPayload.Messages[1])
	}
}

func TestHTTPAgentToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"role":    "assistant",
						"content": "",
						"tool_calls": []map[string]any{
							{
								"id":   "call_123",
								"type": "function",
								"function": map[string]any{
									"name":      "read",
									"arguments": `{"path": "/test.txt"}`,
								},
							},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	a, err := NewHTTPAgent(HTTPConfig{BaseURL: server.URL, Model: "test-model"}, nil)
	if err != nil {
		t.Fatalf("NewHTTPAgent() error = %v", err)
	}

	resp, err := a.Invoke(context.Background(), "Read the file")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(resp.ToolsCalled) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolsCalled))
	}
	want := `read({"path": "/test.txt"})`
	if resp.ToolsCalled[0] != want {
		t.Errorf("tool call = %q, want %q", resp.ToolsCalled[0], want)
	}
}

func TestHTTPAgentServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model crashed"))
	}))
	defer server.Close()

	a, err := NewHTTPAgent(HTTPConfig{BaseURL: server.URL, Model: "test-model"}, nil)
	if err != nil {
		t.Fatalf("NewHTTPAgent() error = %v", err)
	}

	resp, err := a.Invoke(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v, want nil", err)
	}
	if !strings.Contains(resp.Err, "status 500") {
		t.Errorf("Err = %q, want status 500 mention", resp.Err)
	}
	if !strings.Contains(resp.Err, "model crashed") {
		t.Errorf("Err = %q, want upstream body included", resp.Err)
	}
}

func TestHTTPAgentUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	a, err := NewHTTPAgent(HTTPConfig{BaseURL: url, Model: "test-model"}, nil)
	if err != nil {
		t.Fatalf("NewHTTPAgent() error = %v", err)
	}

	resp, err := a.Invoke(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v, want nil", err)
	}
	if !strings.Contains(resp.Err, "llm request failed") {
		t.Errorf("Err = %q, want transport failure", resp.Err)
	}
}

func TestHTTPAgentEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	a, err := NewHTTPAgent(HTTPConfig{BaseURL: server.URL, Model: "test-model"}, nil)
	if err != nil {
		t.Fatalf("NewHTTPAgent() error = %v", err)
	}

	resp, err := a.Invoke(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Invoke() error = %v, want nil", err)
	}
	if resp.Err != "no completion choices returned" {
		t.Errorf("Err = %q, want no-choices error", resp.Err)
	}
}
