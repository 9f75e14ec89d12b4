// Package testhelpers provides shared fixtures for the integration
// suites: policy engines built from the checked-in rego files.
package testhelpers

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/alaabenhmida/AgentShield/pkg/policy"
)

const toolPolicyDir = "tests/fixtures/policy"

// NewToolPolicyEngine constructs a policy engine from the tool policy
// fixture: search is always allowed, the calculator only for low-threat
// requests, everything else denied.
func NewToolPolicyEngine(ctx context.Context, t testing.TB) *policy.Engine {
	t.Helper()

	regoPath := fixturePath(t, toolPolicyDir, "tools.rego")
	// #nosec G304 - fixture path is controlled by test code
	regoBytes, err := os.ReadFile(regoPath)
	if err != nil {
		t.Fatalf("failed to read rego fixture: %v", err)
	}

	engine, err := policy.NewEngine(ctx, policy.Options{
		Entrypoint: "agentshield/tools",
		Modules:    map[string]string{"tools.rego": string(regoBytes)},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func fixturePath(t testing.TB, elements ...string) string {
	t.Helper()

	path := filepath.Join(append([]string{moduleRoot()}, elements...)...)
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatalf("failed to resolve fixture path: %v", err)
	}
	return abs
}

var (
	cachedRoot string
	rootOnce   sync.Once
)

func moduleRoot() string {
	rootOnce.Do(func() {
		_, currentFile, _, ok := runtime.Caller(0)
		if !ok {
			panic("unable to determine caller for fixture helpers")
		}
		cachedRoot = filepath.Clean(filepath.Join(filepath.Dir(currentFile), "..", ".."))
	})
	return cachedRoot
}
