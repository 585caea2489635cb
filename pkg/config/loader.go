package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/capplan/pkg/telemetry"
)

//go:embed schema.cue
var schemaSource string

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Planner: PlannerConfig{
			MaxHappenings: 20,
			Parallelism:   1,
			Minimize:      true,
			Solver:        "auto",
		},
		Facts: FactsConfig{
			Mode:      ModeFile,
			Timeout:   30 * time.Second,
			CacheSize: 1024,
		},
		Policy: PolicyConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Address:        "127.0.0.1:8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			RemotePlanners: 16,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Validate checks struct constraints and the telemetry section.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			msg := fmt.Sprintf("failed on '%s' validation", fe.Tag())
			if fe.Param() != "" {
				msg = fmt.Sprintf("failed on '%s=%s' validation", fe.Tag(), fe.Param())
			}
			errs = append(errs, ValidationError{
				Path:    strings.TrimPrefix(fe.Namespace(), "Config."),
				Message: msg,
			})
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, ValidationError{Path: "telemetry", Message: err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Loader reads configuration documents and checks them against the
// embedded CUE schema.
type Loader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewLoader compiles the embedded schema.
func NewLoader() (*Loader, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}
	schema := val.LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema has no #Config: %w", err)
	}
	return &Loader{ctx: ctx, schema: schema}, nil
}

// Load reads a configuration file. The format follows the extension:
// .cue is CUE, anything else is YAML (which includes JSON).
func Load(path string) (*Config, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}
	return l.Load(path)
}

// Load reads and validates a configuration file.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return l.Parse(path, data)
}

// Parse decodes a configuration document on top of DefaultConfig.
// filename selects the format and is used in error positions.
func (l *Loader) Parse(filename string, data []byte) (*Config, error) {
	var val cue.Value
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".cue":
		val = l.ctx.CompileBytes(data, cue.Filename(filename))
	case ".yaml", ".yml", ".json", "":
		f, err := cueyaml.Extract(filename, data)
		if err != nil {
			return nil, ValidationErrors(l.convertCUEErrors(err))
		}
		val = l.ctx.BuildFile(f)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err := val.Err(); err != nil {
		return nil, ValidationErrors(l.convertCUEErrors(err))
	}

	unified := l.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, ValidationErrors(l.convertCUEErrors(err))
	}

	out, err := cueyaml.Encode(unified)
	if err != nil {
		return nil, fmt.Errorf("failed to export config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(out, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// convertCUEErrors flattens a CUE error list into positioned errors.
func (l *Loader) convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}
