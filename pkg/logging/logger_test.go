package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	logger.Info("request blocked", "reason", "threat level critical")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "request blocked" {
		t.Errorf("unexpected msg: %v", record["msg"])
	}
	if record["reason"] != "threat level critical" {
		t.Errorf("unexpected reason: %v", record["reason"])
	}
}

func TestNewLoggerTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "text", Output: &buf})

	logger.Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text format, got: %s", buf.String())
	}
}

func TestNewLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should have been filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record missing from output")
	}
}

func TestNewLoggerDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "shouting", Format: "xml", Output: &buf})

	// Unknown settings degrade to info-level JSON.
	logger.Debug("dropped")
	logger.Info("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("debug record should have been filtered at the info fallback")
	}
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("fallback format is not JSON: %v", err)
	}
}
