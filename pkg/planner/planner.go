package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/capplan/pkg/constraints"
	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/equivalence"
	"github.com/openfroyo/capplan/pkg/facts"
	"github.com/openfroyo/capplan/pkg/model"
	"github.com/openfroyo/capplan/pkg/openmath"
	"github.com/openfroyo/capplan/pkg/plan"
	"github.com/openfroyo/capplan/pkg/policy"
	"github.com/openfroyo/capplan/pkg/smt"
	"github.com/openfroyo/capplan/pkg/solver"
	"github.com/openfroyo/capplan/pkg/stores"
	"github.com/openfroyo/capplan/pkg/telemetry"
)

// DefaultMaxHappenings bounds the horizon when neither the request nor the
// options do.
const DefaultMaxHappenings = 20

// Hard limits on the search settings. Options beyond them are rejected by
// New; requests may only lower the configured values.
const (
	MaxHappeningsLimit = 256
	MaxParallelism     = 64
)

// Status is the final state of a planning request.
type Status string

const (
	StatusFound     Status = "found"
	StatusExhausted Status = "exhausted"
)

// Attempt outcomes.
const (
	OutcomeSat   = "sat"
	OutcomeUnsat = "unsat"
)

// Options are the planner-wide defaults. Requests may override the search
// settings.
type Options struct {
	MaxHappenings int
	Parallelism   int
	Minimize      bool
	// Timeout bounds each solver call.
	Timeout time.Duration
	// Artifacts lists the artifact kinds written to the sink.
	Artifacts []stores.ArtifactKind
	// MaxPlanLength and Forbidden feed the policy request.
	MaxPlanLength int
	Forbidden     []string
	// Source describes where facts come from, for run records.
	Source string
}

// Dependencies are the collaborators of a Planner. Facts and Solver are
// required; the rest may be nil.
type Dependencies struct {
	Facts     facts.Store
	Solver    solver.Solver
	Telemetry *telemetry.Telemetry
	Runs      stores.RunStore
	Sink      stores.ArtifactSink
	Policies  *policy.Engine
	// Generators defaults to constraints.Default().
	Generators []constraints.Generator
}

// Request is one planning request.
type Request struct {
	// Required is the required capability IRI. Empty selects the only one
	// the model declares.
	Required string `json:"required_capability"`
	// MaxHappenings lowers Options.MaxHappenings when positive.
	MaxHappenings int `json:"max_happenings,omitempty" validate:"omitempty,min=1,max=256"`
	// Minimize overrides Options.Minimize when set.
	Minimize *bool `json:"minimize,omitempty"`
	// Parallelism lowers Options.Parallelism when positive.
	Parallelism int `json:"parallelism,omitempty" validate:"omitempty,min=1,max=64"`
}

// Attempt is the record of one horizon.
type Attempt struct {
	Happenings int           `json:"happenings"`
	Outcome    string        `json:"outcome"`
	Assertions int           `json:"assertions"`
	Backend    string        `json:"backend,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Result is the answer to a planning request.
type Result struct {
	RunID    string `json:"run_id"`
	Required string `json:"required_capability"`
	Status   Status `json:"status"`
	// Horizon is the number of happenings of the plan, or the largest
	// horizon tried when exhausted.
	Horizon int        `json:"horizon"`
	Plan    *plan.Plan `json:"plan,omitempty"`
	// UnsatCore labels a minimal set of tracked assertions that cannot hold
	// together at the largest horizon.
	UnsatCore []string `json:"unsat_core,omitempty"`
	// Problem is the SMT-LIB2 text of the deciding problem.
	Problem  string    `json:"problem,omitempty"`
	Model    smt.Model `json:"model,omitempty"`
	Attempts []Attempt `json:"attempts"`
	// Policy holds the admission result when policies were evaluated.
	Policy           *policy.Result                 `json:"policy,omitempty"`
	PolicyViolations []policy.Violation             `json:"policy_violations,omitempty"`
	Artifacts        map[stores.ArtifactKind]string `json:"artifacts,omitempty"`
	Duration         time.Duration                  `json:"duration"`
}

// Rejected reports whether a blocking policy rejected the plan.
func (r *Result) Rejected() bool {
	return r.Policy != nil && !r.Policy.Allowed
}

// Err returns an Exhausted error when no plan was found and a validation
// error when policies rejected the plan.
func (r *Result) Err() error {
	switch {
	case r.Status == StatusExhausted:
		return engine.NewExhaustedError(r.Horizon, r.UnsatCore)
	case r.Rejected():
		err := engine.NewPermanentError("plan rejected by policy", nil).
			WithCode(engine.ErrCodeValidation).
			WithResource(r.Required)
		for _, v := range r.PolicyViolations {
			if v.Severity.Blocking() {
				err = err.WithDetail(v.Policy, v.Message)
			}
		}
		return err
	}
	return nil
}

// Planner searches for the shortest capability composition that reaches
// the goal of a required capability.
type Planner struct {
	facts      facts.Store
	solver     solver.Solver
	tel        *telemetry.Telemetry
	runs       stores.RunStore
	sink       stores.ArtifactSink
	policies   *policy.Engine
	generators []constraints.Generator
	opts       Options
	logger     *telemetry.Logger
}

// New creates a planner.
func New(deps Dependencies, opts Options) (*Planner, error) {
	if deps.Facts == nil {
		return nil, engine.NewPermanentError("planner needs a fact store", nil).WithCode(engine.ErrCodeValidation)
	}
	if deps.Solver == nil {
		return nil, engine.NewPermanentError("planner needs a solver", nil).WithCode(engine.ErrCodeValidation)
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.NewNop()
	}
	if deps.Generators == nil {
		deps.Generators = constraints.Default()
	}
	if opts.MaxHappenings <= 0 {
		opts.MaxHappenings = DefaultMaxHappenings
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.MaxHappenings > MaxHappeningsLimit {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("max happenings %d exceeds the limit of %d", opts.MaxHappenings, MaxHappeningsLimit), nil).
			WithCode(engine.ErrCodeValidation)
	}
	if opts.Parallelism > MaxParallelism {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("parallelism %d exceeds the limit of %d", opts.Parallelism, MaxParallelism), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return &Planner{
		facts:      deps.Facts,
		solver:     deps.Solver,
		tel:        deps.Telemetry,
		runs:       deps.Runs,
		sink:       deps.Sink,
		policies:   deps.Policies,
		generators: deps.Generators,
		opts:       opts,
		logger:     deps.Telemetry.Logger.NewComponentLogger("planner"),
	}, nil
}

// Solver returns the solver attempts are checked with.
func (p *Planner) Solver() solver.Solver {
	return p.solver
}

// run is the state shared by the attempts of one request. Everything in it
// is read-only once the search starts.
type run struct {
	id        string
	facts     *model.Facts
	session   *equivalence.Session
	forest    *openmath.Forest
	maxH      int
	workers   int
	minimize  bool
	logger    *telemetry.Logger
	startedAt time.Time
}

// Plan answers one request. An exhausted search is not an error: the
// result carries the unsat core and Err reports it.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		id:        uuid.NewString(),
		maxH:      p.opts.MaxHappenings,
		workers:   p.opts.Parallelism,
		minimize:  p.opts.Minimize,
		startedAt: time.Now(),
	}
	// The configured settings are ceilings for a request.
	if req.MaxHappenings > 0 && req.MaxHappenings < r.maxH {
		r.maxH = req.MaxHappenings
	}
	if req.Parallelism > 0 && req.Parallelism < r.workers {
		r.workers = req.Parallelism
	}
	if req.Minimize != nil {
		r.minimize = *req.Minimize
	}
	r.logger = p.logger.WithRunID(r.id).WithRequired(req.Required)

	metrics := p.tel.Metrics
	metrics.RecordPlanStarted()
	ctx = p.tel.WithContext(ctx)
	ctx, span := p.tel.Tracer.StartPlanSpan(ctx, r.id, req.Required, r.maxH)
	defer span.End()
	_ = p.tel.Events.PublishPlanStarted(r.id, req.Required, r.maxH)

	result, err := p.plan(ctx, r, req)
	duration := time.Since(r.startedAt)
	if err != nil {
		telemetry.RecordError(span, err)
		metrics.RecordPlanCompleted("failed", duration)
		recordError(metrics, err)
		_ = p.tel.Events.PublishPlanFailed(r.id, err.Error())
		p.finishRun(ctx, r, stores.RunStatusFailed, 0, nil, err)
		r.logger.WithError(err).Error("Planning failed")
		return nil, err
	}
	result.Duration = duration

	metrics.RecordPlanCompleted(string(result.Status), duration)
	zl := r.logger.Zerolog()
	switch result.Status {
	case StatusFound:
		telemetry.RecordSuccess(span)
		_ = p.tel.Events.PublishPlanFound(r.id, result.Horizon)
		p.finishRun(ctx, r, stores.RunStatusFound, result.Horizon, nil, nil)
		zl.Info().
			Int("horizon", result.Horizon).
			Int("steps", result.Plan.Length).
			Dur("duration", duration).
			Msg("Plan found")
	case StatusExhausted:
		metrics.RecordUnsatCore(len(result.UnsatCore))
		_ = p.tel.Events.PublishPlanExhausted(r.id, result.Horizon, result.UnsatCore)
		p.finishRun(ctx, r, stores.RunStatusExhausted, result.Horizon, result.UnsatCore, nil)
		zl.Info().
			Int("max_happenings", result.Horizon).
			Strs("unsat_core", result.UnsatCore).
			Dur("duration", duration).
			Msg("No plan within the horizon")
	}
	return result, nil
}

func (p *Planner) plan(ctx context.Context, r *run, req Request) (*Result, error) {
	if c, ok := p.facts.(*facts.CachedStore); ok {
		c.Reset()
	}

	f, err := model.Fetch(ctx, p.facts, req.Required)
	if err != nil {
		return nil, err
	}
	r.facts = f
	r.session = equivalence.NewSession(r.logger.Zerolog(), f.EquivalenceSource())
	r.forest = openmath.Build(f.Expressions)
	if f.Required != req.Required {
		r.logger = r.logger.WithRequired(f.Required)
	}

	p.createRun(ctx, r)

	result := &Result{
		RunID:    r.id,
		Required: f.Required,
		Attempts: []Attempt{},
	}

	var outcome *searchOutcome
	if r.workers > 1 && r.maxH > 1 {
		outcome, err = p.searchParallel(ctx, r)
	} else {
		outcome, err = p.searchSequential(ctx, r)
	}
	if err != nil {
		return nil, err
	}
	result.Attempts = outcome.attempts
	p.recordAttempts(ctx, r, outcome.attempts)

	if outcome.winner == nil {
		result.Status = StatusExhausted
		result.Horizon = r.maxH
		if outcome.last != nil {
			core, err := p.minimalCore(ctx, outcome.last.problem)
			if err != nil {
				return nil, err
			}
			result.UnsatCore = core
			result.Problem = outcome.last.problem.Script(smt.ScriptOptions{Named: true, CheckSat: true})
		}
		p.writeArtifacts(ctx, r, result, nil)
		return result, nil
	}

	w := outcome.winner
	decoded, err := plan.Decode(w.outcome.Model, w.cctx.Properties, w.cctx.Capabilities)
	if err != nil {
		return nil, err
	}
	result.Status = StatusFound
	result.Horizon = w.happenings
	result.Plan = decoded
	result.Model = w.outcome.Model
	result.Problem = w.problem.Script(smt.ScriptOptions{Named: true, Minimize: r.minimize, CheckSat: true})

	if err := p.evaluatePolicies(ctx, r, result); err != nil {
		return nil, err
	}
	p.writeArtifacts(ctx, r, result, decoded)
	return result, nil
}

func (p *Planner) evaluatePolicies(ctx context.Context, r *run, result *Result) error {
	if p.policies == nil {
		return nil
	}
	res, err := p.policies.Evaluate(ctx, &policy.Input{
		Plan: result.Plan,
		Request: policy.Request{
			RunID:                 r.id,
			Required:              result.Required,
			MaxHappenings:         r.maxH,
			Horizon:               result.Horizon,
			Backend:               p.solver.Name(),
			MaxPlanLength:         p.opts.MaxPlanLength,
			ForbiddenCapabilities: p.opts.Forbidden,
		},
	})
	if err != nil {
		return err
	}
	result.Policy = res
	result.PolicyViolations = res.Violations
	for _, v := range res.Violations {
		_ = p.tel.Events.PublishPolicyViolation(r.id, v.Policy, v.Message)
	}
	if !res.Allowed {
		zl := r.logger.Zerolog()
		zl.Warn().
			Int("violations", len(res.Violations)).
			Msg("Plan rejected by policy")
	}
	return nil
}

// writeArtifacts stores the enabled artifacts. Sink failures are logged and
// do not fail the request.
func (p *Planner) writeArtifacts(ctx context.Context, r *run, result *Result, decoded *plan.Plan) {
	if p.sink == nil || len(p.opts.Artifacts) == 0 {
		return
	}
	for _, kind := range p.opts.Artifacts {
		var data []byte
		var err error
		switch kind {
		case stores.ArtifactProblem:
			if result.Problem == "" {
				continue
			}
			data = []byte(result.Problem)
		case stores.ArtifactModel:
			if result.Model == nil {
				continue
			}
			data, err = json.MarshalIndent(result.Model, "", "  ")
		case stores.ArtifactPlan:
			if decoded == nil {
				continue
			}
			data, err = json.MarshalIndent(decoded, "", "  ")
		default:
			continue
		}
		if err != nil {
			r.logger.WithError(err).Warn(fmt.Sprintf("Failed to encode %s artifact", kind))
			continue
		}
		loc, err := p.sink.Put(ctx, r.id, kind, data)
		if err != nil {
			r.logger.WithError(err).Warn(fmt.Sprintf("Failed to write %s artifact", kind))
			continue
		}
		if loc == "" {
			continue
		}
		if result.Artifacts == nil {
			result.Artifacts = make(map[stores.ArtifactKind]string)
		}
		result.Artifacts[kind] = loc
	}
}

func (p *Planner) createRun(ctx context.Context, r *run) {
	if p.runs == nil {
		return
	}
	err := p.runs.CreateRun(ctx, &stores.Run{
		ID:            r.id,
		Required:      r.facts.Required,
		Source:        p.opts.Source,
		Backend:       p.solver.Name(),
		MaxHappenings: r.maxH,
		Status:        stores.RunStatusRunning,
		StartedAt:     r.startedAt,
	})
	if err != nil {
		r.logger.WithError(err).Warn("Failed to record run")
	}
}

func (p *Planner) recordAttempts(ctx context.Context, r *run, attempts []Attempt) {
	if p.runs == nil {
		return
	}
	for _, a := range attempts {
		err := p.runs.RecordAttempt(ctx, &stores.Attempt{
			RunID:      r.id,
			Happenings: a.Happenings,
			Outcome:    a.Outcome,
			Assertions: a.Assertions,
			Duration:   a.Duration,
		})
		if err != nil {
			r.logger.WithError(err).Warn("Failed to record attempt")
			return
		}
	}
}

func (p *Planner) finishRun(ctx context.Context, r *run, status stores.RunStatus, horizon int, core []string, cause error) {
	if p.runs == nil || r.facts == nil {
		return
	}
	var msg *string
	if cause != nil {
		s := cause.Error()
		msg = &s
	}
	// The request context may already be cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := p.runs.FinishRun(ctx, r.id, status, horizon, core, msg); err != nil {
		r.logger.WithError(err).Warn("Failed to finish run")
	}
}

func recordError(m *telemetry.Metrics, err error) {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		m.RecordError(string(ee.Class), ee.Code)
		return
	}
	m.RecordError("unknown", "")
}
