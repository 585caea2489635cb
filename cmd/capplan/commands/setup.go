package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/config"
	"github.com/openfroyo/capplan/pkg/facts"
	"github.com/openfroyo/capplan/pkg/planner"
	"github.com/openfroyo/capplan/pkg/policy"
	"github.com/openfroyo/capplan/pkg/solver"
	"github.com/openfroyo/capplan/pkg/stores"
	"github.com/openfroyo/capplan/pkg/telemetry"
)

// loadConfig reads --config, or returns the defaults when it is unset.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}

// app holds what one command invocation wires together.
type app struct {
	cfg     *config.Config
	tel     *telemetry.Telemetry
	logger  zerolog.Logger
	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return &app{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.Zerolog(),
	}, nil
}

// Close releases everything the app opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// factSource is the configured fact store. Mangle is set in file mode so
// serve can watch its files, and cache is reset after each reload.
type factSource struct {
	store  facts.Store
	mangle *facts.MangleStore
	cache  *facts.CachedStore
	label  string
}

func (a *app) openFacts() (*factSource, error) {
	var src factSource
	switch a.cfg.Facts.Mode {
	case config.ModeSPARQL:
		src.store = facts.NewSPARQLStore(a.logger, a.cfg.Facts.Endpoint, a.cfg.Facts.Timeout)
		src.label = a.cfg.Facts.Endpoint
	default:
		if len(a.cfg.Facts.Models) == 0 {
			return nil, errors.New("no model files: set --model or facts.models")
		}
		mangle, err := facts.OpenMangleFiles(a.logger, a.cfg.Facts.Models...)
		if err != nil {
			return nil, err
		}
		src.store = mangle
		src.mangle = mangle
		src.label = strings.Join(a.cfg.Facts.Models, ",")
	}

	cached, err := facts.NewCachedStore(src.store, a.cfg.Facts.CacheSize, a.tel.Metrics)
	if err != nil {
		_ = src.store.Close()
		return nil, err
	}
	src.store = cached
	src.cache = cached
	a.closers = append(a.closers, cached.Close)
	return &src, nil
}

func (a *app) newSolver() (solver.Solver, error) {
	return solver.New(a.logger, a.cfg.Planner.Solver, a.cfg.Planner.Z3Path)
}

// openRuns opens the run store, or returns nil when none is configured.
func (a *app) openRuns(ctx context.Context) (*stores.SQLiteStore, error) {
	if a.cfg.Stores.SQLitePath == "" {
		return nil, nil
	}
	runs, err := stores.Open(ctx, stores.Config{Path: a.cfg.Stores.SQLitePath})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, runs.Close)
	if a.cfg.Telemetry.Events.Enabled {
		a.tel.Events.Subscribe(stores.EventRecorder(runs, a.logger), nil)
	}
	return runs, nil
}

// newSink combines every configured artifact sink. files adds explicit
// per-kind output paths.
func (a *app) newSink(ctx context.Context, runs *stores.SQLiteStore, files stores.FileSink) (stores.ArtifactSink, error) {
	var sinks stores.MultiSink
	if a.cfg.Stores.ArtifactDir != "" {
		sinks = append(sinks, stores.NewDirSink(a.cfg.Stores.ArtifactDir))
	}
	if s3cfg := a.cfg.Stores.S3; s3cfg != nil && s3cfg.Bucket != "" {
		s3sink, err := stores.NewS3Sink(ctx, *s3cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3sink)
	}
	if runs != nil {
		sinks = append(sinks, runs)
	}
	if len(files) > 0 {
		sinks = append(sinks, files)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

func (a *app) newPolicies(ctx context.Context) (*policy.Engine, error) {
	if !a.cfg.Policy.Enabled {
		return nil, nil
	}
	eng, err := policy.NewEngine(a.logger)
	if err != nil {
		return nil, err
	}
	if len(a.cfg.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, a.cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// plannerParts are the shared collaborators of every planner an
// invocation creates.
type plannerParts struct {
	solver   solver.Solver
	runs     *stores.SQLiteStore
	sink     stores.ArtifactSink
	policies *policy.Engine
	kinds    []stores.ArtifactKind
}

func (a *app) newPlannerParts(ctx context.Context, files stores.FileSink) (*plannerParts, error) {
	s, err := a.newSolver()
	if err != nil {
		return nil, err
	}
	runs, err := a.openRuns(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.newSink(ctx, runs, files)
	if err != nil {
		return nil, err
	}
	pols, err := a.newPolicies(ctx)
	if err != nil {
		return nil, err
	}

	kinds := a.cfg.Planner.Artifacts.Kinds()
	for _, kind := range []stores.ArtifactKind{stores.ArtifactProblem, stores.ArtifactModel, stores.ArtifactPlan} {
		if _, ok := files[kind]; ok && !containsKind(kinds, kind) {
			kinds = append(kinds, kind)
		}
	}
	return &plannerParts{solver: s, runs: runs, sink: sink, policies: pols, kinds: kinds}, nil
}

func (a *app) newPlanner(parts *plannerParts, src *factSource) (*planner.Planner, error) {
	deps := planner.Dependencies{
		Facts:     src.store,
		Solver:    parts.solver,
		Telemetry: a.tel,
		Sink:      parts.sink,
		Policies:  parts.policies,
	}
	if parts.runs != nil {
		deps.Runs = parts.runs
	}
	return planner.New(deps, planner.Options{
		MaxHappenings: a.cfg.Planner.MaxHappenings,
		Parallelism:   a.cfg.Planner.Parallelism,
		Minimize:      a.cfg.Planner.Minimize,
		Timeout:       a.cfg.Planner.Timeout,
		Artifacts:     parts.kinds,
		MaxPlanLength: a.cfg.Policy.MaxPlanLength,
		Forbidden:     a.cfg.Policy.Forbidden,
		Source:        src.label,
	})
}

func containsKind(kinds []stores.ArtifactKind, kind stores.ArtifactKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
