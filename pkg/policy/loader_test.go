package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const noGrabRego = `# Grabbing is reserved for supervised runs.
# severity: error
package custom.no_grab

import rego.v1

# this comment is not part of the description
deny contains "grab" if {
	some step in input.plan.plan_steps
	some app in step.capability_applications
	app.capability_iri == "urn:robot:grab"
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "no-grab.rego")
	writeFile(t, path, noGrabRego)

	policy, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "no-grab" {
		t.Errorf("Expected name 'no-grab', got '%s'", policy.Name)
	}
	if policy.Description != "Grabbing is reserved for supervised runs." {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected severity error, got %s", policy.Severity)
	}
	if policy.Rego != noGrabRego {
		t.Error("Rego content doesn't match")
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "always.json")
	writeFile(t, path, `{
	"name": "always",
	"description": "Always complains",
	"rego": "package custom.always\n\nimport rego.v1\n\ndeny contains \"always\" if true\n",
	"tags": ["test"]
}`)

	policy, err := loader.loadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "always" || policy.Description != "Always complains" {
		t.Errorf("Unexpected policy %+v", policy)
	}
	if !policy.Enabled {
		t.Error("JSON policies without 'enabled' should default to enabled")
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %s", policy.Severity)
	}
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	tests := map[string]string{
		"garbage.json":  "{ not json",
		"nameless.json": `{"rego": "package x"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			writeFile(t, path, content)
			if _, err := loader.loadFromFile(path); err == nil {
				t.Fatal("Expected error for invalid JSON policy")
			}
		})
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")
	writeFile(t, filepath.Join(dir, "nested", "b.rego"), "package b\n")
	writeFile(t, filepath.Join(dir, "nested", "README.md"), "ignored")
	single := filepath.Join(t.TempDir(), "c.rego")
	writeFile(t, single, "package c\n")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir, single})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	var names []string
	for _, p := range policies {
		names = append(names, p.Name)
	}
	if len(names) != 3 {
		t.Fatalf("Expected 3 policies, got %v", names)
	}
}

func TestLoadFromPaths_Glob(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x", "one.rego"), "package one\n")
	writeFile(t, filepath.Join(dir, "y", "z", "two.rego"), "package two\n")
	writeFile(t, filepath.Join(dir, "y", "three.json"), `{"name": "three", "rego": "package three"}`)

	policies, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "**", "*.rego")})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 2 || policies[0].Name != "one" || policies[1].Name != "two" {
		t.Fatalf("Expected [one two], got %+v", policies)
	}
}

func TestLoadFromPaths_Errors(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	txt := filepath.Join(dir, "policy.txt")
	writeFile(t, txt, "nope")

	tests := map[string]string{
		"missing file":     filepath.Join(dir, "missing.rego"),
		"unsupported type": txt,
		"empty glob":       filepath.Join(dir, "**", "*.none.rego"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := loader.LoadFromPaths(context.Background(), []string{path}); err == nil {
				t.Fatalf("Expected error for %s", path)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		description string
		severity    Severity
	}{
		{
			name:        "no comments",
			content:     "package x\n",
			description: "",
			severity:    SeverityWarning,
		},
		{
			name:        "multi-line description",
			content:     "# First line.\n#\n# Second line.\npackage x\n# not included\n",
			description: "First line. Second line.",
			severity:    SeverityWarning,
		},
		{
			name:        "severity only",
			content:     "\n# severity: critical\npackage x\n",
			description: "",
			severity:    SeverityCritical,
		},
		{
			name:        "unknown severity",
			content:     "# severity: catastrophic\npackage x\n",
			description: "",
			severity:    SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			description, severity := header(tt.content)
			if description != tt.description {
				t.Errorf("Expected description %q, got %q", tt.description, description)
			}
			if severity != tt.severity {
				t.Errorf("Expected severity %s, got %s", tt.severity, severity)
			}
		})
	}
}

func TestWatch_Reload(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var reloaded []Policy
	done := make(chan struct{}, 1)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		mu.Lock()
		reloaded = policies
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer func() { _ = loader.StopWatching() }()

	writeFile(t, filepath.Join(dir, "b.rego"), "package b\n")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for policy reload")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reloaded) != 2 {
		t.Fatalf("Expected 2 policies after reload, got %d", len(reloaded))
	}
}
