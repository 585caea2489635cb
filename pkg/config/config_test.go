package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/openfroyo/capplan/pkg/stores"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader()
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	return l
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to validate, got %v", err)
	}
	if cfg.Planner.MaxHappenings != 20 {
		t.Fatalf("Expected default max happenings 20, got %d", cfg.Planner.MaxHappenings)
	}
	if !cfg.Planner.Minimize {
		t.Fatal("Expected minimisation on by default")
	}
}

func TestParse_YAML(t *testing.T) {
	l := newTestLoader(t)

	cfg, err := l.Parse("capplan.yaml", []byte(`
planner:
  max_happenings: 5
  parallelism: 4
  minimize: false
  solver: gini
  timeout: 90s
  artifacts:
    plan: true
facts:
  models:
    - "models/**/*.mg"
stores:
  sqlite_path: runs.db
  s3:
    bucket: plans
    path_style: true
telemetry:
  logging:
    level: debug
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Planner.MaxHappenings != 5 || cfg.Planner.Parallelism != 4 {
		t.Fatalf("Unexpected planner section: %+v", cfg.Planner)
	}
	if cfg.Planner.Minimize {
		t.Fatal("Expected minimize to be overridden to false")
	}
	if cfg.Planner.Timeout != 90*time.Second {
		t.Fatalf("Expected timeout 90s, got %v", cfg.Planner.Timeout)
	}
	if diff := cmp.Diff([]stores.ArtifactKind{stores.ArtifactPlan}, cfg.Planner.Artifacts.Kinds()); diff != "" {
		t.Fatalf("Unexpected artifact kinds (-want +got):\n%s", diff)
	}
	if cfg.Stores.S3 == nil || cfg.Stores.S3.Bucket != "plans" || !cfg.Stores.S3.PathStyle {
		t.Fatalf("Unexpected s3 section: %+v", cfg.Stores.S3)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Fatalf("Expected log level debug, got %s", cfg.Telemetry.Logging.Level)
	}

	// Untouched sections keep their defaults.
	if cfg.Facts.CacheSize != 1024 || cfg.Facts.Mode != ModeFile {
		t.Fatalf("Expected facts defaults to survive, got %+v", cfg.Facts)
	}
	if cfg.Server.Address != "127.0.0.1:8080" {
		t.Fatalf("Expected default server address, got %s", cfg.Server.Address)
	}
}

func TestParse_CUE(t *testing.T) {
	l := newTestLoader(t)

	cfg, err := l.Parse("capplan.cue", []byte(`
planner: {
	max_happenings: 3
	solver:         "z3"
	z3_path:        "/opt/z3/bin/z3"
}
facts: {
	mode:     "sparql-endpoint"
	endpoint: "http://localhost:3030/ds/query"
}
policy: {
	max_plan_length: 2
	forbidden: ["urn:robot:grab"]
}
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Planner.Solver != "z3" || cfg.Planner.Z3Path != "/opt/z3/bin/z3" {
		t.Fatalf("Unexpected planner section: %+v", cfg.Planner)
	}
	if cfg.Facts.Mode != ModeSPARQL || cfg.Facts.Endpoint != "http://localhost:3030/ds/query" {
		t.Fatalf("Unexpected facts section: %+v", cfg.Facts)
	}
	if diff := cmp.Diff([]string{"urn:robot:grab"}, cfg.Policy.Forbidden); diff != "" {
		t.Fatalf("Unexpected forbidden list (-want +got):\n%s", diff)
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	l := newTestLoader(t)

	tests := []struct {
		name string
		file string
		doc  string
		path string
	}{
		{name: "unknown key", file: "c.yaml", doc: "planner:\n  horizon: 3\n", path: "planner.horizon"},
		{name: "bad solver", file: "c.yaml", doc: "planner:\n  solver: cvc5\n", path: "planner.solver"},
		{name: "zero happenings", file: "c.yaml", doc: "planner:\n  max_happenings: 0\n", path: "planner.max_happenings"},
		{name: "huge horizon", file: "c.yaml", doc: "planner:\n  max_happenings: 100000\n", path: "planner.max_happenings"},
		{name: "too many workers", file: "c.yaml", doc: "planner:\n  parallelism: 1000\n", path: "planner.parallelism"},
		{name: "bad duration", file: "c.cue", doc: `planner: timeout: "soon"`, path: "planner.timeout"},
		{name: "bad sampling rate", file: "c.yaml", doc: "telemetry:\n  tracing:\n    sampling_rate: 2\n", path: "telemetry.tracing.sampling_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Parse(tt.file, []byte(tt.doc))
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Expected ValidationErrors, got %v", err)
			}
			found := false
			for _, v := range verrs {
				if strings.HasPrefix(v.Path, tt.path) {
					found = true
				}
			}
			if !found {
				t.Fatalf("Expected an error at %s, got %v", tt.path, verrs)
			}
		})
	}
}

func TestParse_StructValidation(t *testing.T) {
	l := newTestLoader(t)

	// The schema allows a missing endpoint; the struct tags do not.
	_, err := l.Parse("c.yaml", []byte("facts:\n  mode: sparql-endpoint\n"))
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Expected ValidationErrors, got %v", err)
	}
	if len(verrs) != 1 || verrs[0].Path != "facts.endpoint" {
		t.Fatalf("Expected a facts.endpoint error, got %v", verrs)
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	l := newTestLoader(t)
	if _, err := l.Parse("capplan.toml", []byte("")); err == nil {
		t.Fatal("Expected error for unsupported format")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capplan.yml")
	if err := os.WriteFile(path, []byte("server:\n  address: \":9090\"\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("Expected address :9090, got %s", cfg.Server.Address)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestValidationError_String(t *testing.T) {
	tests := []struct {
		err  ValidationError
		want string
	}{
		{ValidationError{Message: "boom"}, "boom"},
		{ValidationError{Path: "planner.solver", Message: "boom"}, "planner.solver: boom"},
		{ValidationError{File: "c.cue", Line: 3, Column: 9, Path: "a", Message: "boom"}, "c.cue:3:9: a: boom"},
	}
	for _, tt := range tests {
		if got := tt.err.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}
