package solver

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/smt"
)

// Status is the answer to a satisfiability check.
type Status string

const (
	StatusSat     Status = "sat"
	StatusUnsat   Status = "unsat"
	StatusUnknown Status = "unknown"
)

// Options control one check.
type Options struct {
	// Minimize asks for a model with the fewest true objective constants.
	Minimize bool
	// Core asks for an unsat core over the tracked assertions.
	Core bool
	// Timeout bounds the check. Zero means no limit besides the context.
	Timeout time.Duration
}

// Outcome is the result of one check.
type Outcome struct {
	Status   Status
	Model    smt.Model
	Core     []string
	Backend  string
	Duration time.Duration
}

// Solver decides satisfiability of a problem.
type Solver interface {
	Name() string
	Check(ctx context.Context, p *smt.Problem, opts Options) (*Outcome, error)
}

// Backend names accepted by New.
const (
	BackendAuto = "auto"
	BackendZ3   = "z3"
	BackendGini = "gini"
)

// New returns the solver for a backend name. z3Path may be empty to look z3
// up on PATH.
func New(logger zerolog.Logger, backend, z3Path string) (Solver, error) {
	switch backend {
	case BackendZ3:
		return NewZ3(logger, z3Path), nil
	case BackendGini:
		return NewGini(logger), nil
	case "", BackendAuto:
		return NewAuto(logger, z3Path), nil
	}
	return nil, engine.NewPermanentError(fmt.Sprintf("unknown solver backend %q", backend), nil).
		WithCode(engine.ErrCodeValidation)
}

// Auto checks purely boolean problems in process and everything else with z3.
type Auto struct {
	gini *Gini
	z3   *Z3
}

// NewAuto creates the automatic backend.
func NewAuto(logger zerolog.Logger, z3Path string) *Auto {
	return &Auto{gini: NewGini(logger), z3: NewZ3(logger, z3Path)}
}

// Name implements Solver.
func (a *Auto) Name() string { return BackendAuto }

// Select returns the backend a problem would be checked with.
func (a *Auto) Select(p *smt.Problem) Solver {
	if p.IsBoolean() {
		return a.gini
	}
	return a.z3
}

// Check implements Solver.
func (a *Auto) Check(ctx context.Context, p *smt.Problem, opts Options) (*Outcome, error) {
	return a.Select(p).Check(ctx, p, opts)
}

// Z3Available reports whether a z3 binary can be found.
func Z3Available(path string) bool {
	if path == "" {
		path = "z3"
	}
	_, err := exec.LookPath(path)
	return err == nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// contextError classifies a cancelled or timed out check.
func contextError(ctx context.Context, backend string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return engine.NewTransientError("solver timed out", ctx.Err()).
			WithCode(engine.ErrCodeTimeout).
			WithResource(backend)
	}
	return ctx.Err()
}
