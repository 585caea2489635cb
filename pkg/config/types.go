package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/capplan/pkg/stores"
	"github.com/openfroyo/capplan/pkg/telemetry"
)

// Config is the complete capplan configuration.
type Config struct {
	// Planner configures the horizon search.
	Planner PlannerConfig `yaml:"planner" json:"planner"`

	// Facts configures where the capability model is read from.
	Facts FactsConfig `yaml:"facts" json:"facts"`

	// Stores configures run persistence and artifact sinks.
	Stores StoresConfig `yaml:"stores" json:"stores"`

	// Policy configures plan admission policies.
	Policy PolicyConfig `yaml:"policy" json:"policy"`

	// Server configures the HTTP front end.
	Server ServerConfig `yaml:"server" json:"server"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
}

// PlannerConfig configures the horizon search.
type PlannerConfig struct {
	// MaxHappenings is the largest horizon tried before giving up.
	MaxHappenings int `yaml:"max_happenings" json:"max_happenings" validate:"min=1,max=256"`

	// Parallelism is the number of horizons solved concurrently. 1 searches
	// sequentially.
	Parallelism int `yaml:"parallelism" json:"parallelism" validate:"min=1,max=64"`

	// Minimize asks the solver for the fewest invoked capabilities within
	// the winning horizon.
	Minimize bool `yaml:"minimize" json:"minimize"`

	// Solver is the back end: auto, z3 or gini.
	Solver string `yaml:"solver" json:"solver" validate:"oneof=auto z3 gini"`

	// Z3Path is the z3 binary; empty means "z3" on PATH.
	Z3Path string `yaml:"z3_path" json:"z3_path"`

	// Timeout bounds a single solver call. Zero means no limit.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`

	// Artifacts selects what is persisted for each run.
	Artifacts ArtifactsConfig `yaml:"artifacts" json:"artifacts"`
}

// ArtifactsConfig toggles persisted artifacts.
type ArtifactsConfig struct {
	Problem bool `yaml:"problem" json:"problem"`
	Model   bool `yaml:"model" json:"model"`
	Plan    bool `yaml:"plan" json:"plan"`
}

// Kinds returns the enabled artifact kinds.
func (a ArtifactsConfig) Kinds() []stores.ArtifactKind {
	var kinds []stores.ArtifactKind
	if a.Problem {
		kinds = append(kinds, stores.ArtifactProblem)
	}
	if a.Model {
		kinds = append(kinds, stores.ArtifactModel)
	}
	if a.Plan {
		kinds = append(kinds, stores.ArtifactPlan)
	}
	return kinds
}

// Fact source modes.
const (
	ModeFile   = "file"
	ModeSPARQL = "sparql-endpoint"
)

// FactsConfig configures the fact store.
type FactsConfig struct {
	// Mode is "file" (Mangle model files) or "sparql-endpoint".
	Mode string `yaml:"mode" json:"mode" validate:"oneof=file sparql-endpoint"`

	// Models are doublestar globs of Mangle model files.
	Models []string `yaml:"models" json:"models"`

	// Endpoint is the SPARQL query endpoint.
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"required_if=Mode sparql-endpoint,omitempty,url"`

	// Timeout bounds a single SPARQL request.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`

	// CacheSize is the number of query results kept per request.
	CacheSize int `yaml:"cache_size" json:"cache_size" validate:"min=1"`

	// Watch reloads model files when they change (serve only).
	Watch bool `yaml:"watch" json:"watch"`
}

// StoresConfig configures persistence.
type StoresConfig struct {
	// SQLitePath enables the run store. Empty disables it.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`

	// ArtifactDir writes artifacts below a directory.
	ArtifactDir string `yaml:"artifact_dir" json:"artifact_dir"`

	// S3 uploads artifacts to a bucket.
	S3 *stores.S3Config `yaml:"s3" json:"s3,omitempty"`
}

// PolicyConfig configures plan admission policies.
type PolicyConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Paths are policy files, directories or globs loaded on top of the
	// built-in policies.
	Paths []string `yaml:"paths" json:"paths"`

	// MaxPlanLength feeds the plan-length-limit policy. Zero disables it.
	MaxPlanLength int `yaml:"max_plan_length" json:"max_plan_length" validate:"min=0"`

	// Forbidden lists capability IRIs no plan may invoke.
	Forbidden []string `yaml:"forbidden" json:"forbidden"`

	// Watch reloads policy files when they change (serve only).
	Watch bool `yaml:"watch" json:"watch"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address      string        `yaml:"address" json:"address" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"min=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"min=0"`

	// RemotePlanners bounds the planners kept for request-supplied SPARQL
	// endpoints. The least recently used one is dropped first.
	RemotePlanners int `yaml:"remote_planners" json:"remote_planners" validate:"min=1,max=1024"`

	// AllowedEndpoints restricts sparql-endpoint requests to these URLs.
	// Empty allows any endpoint.
	AllowedEndpoints []string `yaml:"allowed_endpoints" json:"allowed_endpoints" validate:"dive,url"`
}

// ValidationError is a single configuration problem with its location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path, e.g. "planner.solver".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (v ValidationError) String() string {
	var loc string
	switch {
	case v.File != "" && v.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", v.File, v.Line, v.Column)
	case v.File != "":
		loc = v.File + ": "
	}
	if v.Path != "" {
		return fmt.Sprintf("%s%s: %s", loc, v.Path, v.Message)
	}
	return loc + v.Message
}

// ValidationErrors is returned when a configuration does not validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.String()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}
