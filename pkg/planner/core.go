package planner

import (
	"context"
	"sort"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/smt"
	"github.com/openfroyo/capplan/pkg/solver"
)

// minimalCore shrinks the unsat core of problem until removing any single
// tracked assertion makes the rest satisfiable. Background assertions stay
// asserted throughout.
func (p *Planner) minimalCore(ctx context.Context, problem *smt.Problem) ([]string, error) {
	check := func(keep []string) (*solver.Outcome, error) {
		out, err := p.solver.Check(ctx, problem.Restrict(keep), solver.Options{
			Core:    true,
			Timeout: p.opts.Timeout,
		})
		if err != nil {
			return nil, err
		}
		p.tel.Metrics.RecordSolverCall(out.Backend, string(out.Status), out.Duration)
		if out.Status == solver.StatusUnknown {
			return nil, engine.NewTransientError("solver returned unknown while shrinking the unsat core", nil).
				WithCode(engine.ErrCodeSolverFailed).
				WithResource(out.Backend)
		}
		return out, nil
	}

	var all []string
	for _, a := range problem.Tracked() {
		all = append(all, a.Label)
	}

	first, err := check(all)
	if err != nil {
		return nil, err
	}
	if first.Status != solver.StatusUnsat {
		return nil, engine.NewPermanentError("largest horizon became satisfiable while computing its core", nil).
			WithCode(engine.ErrCodeSolverFailed)
	}

	// Start from the solver's core when it names only tracked assertions
	// and really is unsat on its own.
	core := restrictTo(all, first.Core)
	if len(first.Core) == 0 || len(core) != len(first.Core) {
		core = all
	} else if out, err := check(core); err != nil {
		return nil, err
	} else if out.Status != solver.StatusUnsat {
		core = all
	}

	necessary := make(map[string]bool, len(core))
	for {
		next, ok := firstUndecided(core, necessary)
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate := without(core, next)
		out, err := check(candidate)
		if err != nil {
			return nil, err
		}
		if out.Status == solver.StatusSat {
			necessary[next] = true
			continue
		}
		core = candidate
		if sub := restrictTo(candidate, out.Core); len(out.Core) > 0 && len(sub) == len(out.Core) {
			core = sub
		}
	}

	sorted := append([]string(nil), core...)
	sort.Strings(sorted)
	return sorted, nil
}

func firstUndecided(core []string, necessary map[string]bool) (string, bool) {
	for _, l := range core {
		if !necessary[l] {
			return l, true
		}
	}
	return "", false
}

func without(list []string, drop string) []string {
	out := make([]string, 0, len(list))
	for _, l := range list {
		if l != drop {
			out = append(out, l)
		}
	}
	return out
}

// restrictTo keeps the elements of list named in subset, in list order.
func restrictTo(list, subset []string) []string {
	set := make(map[string]bool, len(subset))
	for _, s := range subset {
		set[s] = true
	}
	out := make([]string, 0, len(subset))
	for _, l := range list {
		if set[l] {
			out = append(out, l)
		}
	}
	return out
}
