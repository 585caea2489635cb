package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/smt"
)

// Gini checks purely boolean problems in process. Tracked assertions are
// guarded by activation literals that are assumed on every solve, so the
// failed assumptions name the unsat core.
type Gini struct {
	logger zerolog.Logger
}

// NewGini creates the gini backend.
func NewGini(logger zerolog.Logger) *Gini {
	return &Gini{logger: logger.With().Str("component", "gini").Logger()}
}

// Name implements Solver.
func (g *Gini) Name() string { return BackendGini }

type circuit struct {
	c       *logic.C
	vars    map[string]z.Lit
	acts    []z.Lit
	labels  map[z.Lit]string
	roots   []z.Lit
	minimum *logic.CardSort
}

// Check implements Solver.
func (g *Gini) Check(ctx context.Context, p *smt.Problem, opts Options) (*Outcome, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()
	if !p.IsBoolean() {
		return nil, engine.NewPermanentError("gini only checks boolean problems", nil).
			WithCode(engine.ErrCodeSolverFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(ctx, BackendGini)
	}

	start := time.Now()
	cc, err := build(p, opts.Minimize)
	if err != nil {
		return nil, err
	}

	s := gini.New()
	cc.c.ToCnf(s)
	for _, root := range cc.roots {
		s.Add(root)
		s.Add(z.LitNull)
	}

	solve := func(extra ...z.Lit) (int, error) {
		s.Assume(cc.acts...)
		s.Assume(extra...)
		return await(ctx, s.GoSolve())
	}

	out := &Outcome{Backend: BackendGini}
	res, err := solve()
	if err != nil {
		return nil, err
	}

	switch res {
	case 1:
		out.Status = StatusSat
		out.Model = cc.model(s)
		if opts.Minimize && cc.minimum != nil {
			best := out.Model.CountTrue(p.Objective())
			for best > 0 {
				res, err := solve(cc.minimum.Leq(best - 1))
				if err != nil {
					return nil, err
				}
				if res != 1 {
					break
				}
				out.Model = cc.model(s)
				best = out.Model.CountTrue(p.Objective())
			}
		}
	case -1:
		out.Status = StatusUnsat
		if opts.Core {
			for _, m := range s.Why(nil) {
				if l, ok := cc.labels[m]; ok {
					out.Core = append(out.Core, l)
				}
			}
		}
	default:
		out.Status = StatusUnknown
	}

	out.Duration = time.Since(start)
	g.logger.Debug().
		Str("status", string(out.Status)).
		Int("variables", len(cc.vars)).
		Int("assertions", len(p.Assertions())).
		Dur("duration", out.Duration).
		Msg("gini check completed")
	return out, nil
}

// pollInterval is how often a background solve is checked for a result.
const pollInterval = 5 * time.Millisecond

// await waits for a background solve, stopping it when ctx ends. The
// handle's Wait holds the lock Stop needs, so the result is polled.
func await(ctx context.Context, h inter.Solve) (int, error) {
	if res, done := h.Test(); done {
		return res, nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return 0, contextError(ctx, BackendGini)
		case <-ticker.C:
			if res, done := h.Test(); done {
				return res, nil
			}
		}
	}
}

func build(p *smt.Problem, minimize bool) (*circuit, error) {
	cc := &circuit{
		c:      logic.NewC(),
		vars:   make(map[string]z.Lit),
		labels: make(map[z.Lit]string),
	}
	for _, d := range p.Declarations() {
		cc.vars[d.Name] = cc.c.Lit()
	}
	for _, a := range p.Assertions() {
		f, err := cc.lit(a.Expr)
		if err != nil {
			return nil, engine.NewPermanentError("cannot encode assertion", err).
				WithCode(engine.ErrCodeSolverFailed).
				WithResource(a.Label)
		}
		if !a.Tracked {
			cc.roots = append(cc.roots, f)
			continue
		}
		act := cc.c.Lit()
		cc.acts = append(cc.acts, act)
		cc.labels[act] = a.Label
		cc.roots = append(cc.roots, cc.c.Implies(act, f))
	}
	if minimize {
		objective := p.Objective()
		if len(objective) > 0 {
			ms := make([]z.Lit, len(objective))
			for i, n := range objective {
				ms[i] = cc.vars[n]
			}
			cc.minimum = cc.c.CardSort(ms)
		}
	}
	return cc, nil
}

func (cc *circuit) lit(e *smt.Expr) (z.Lit, error) {
	switch e.Kind() {
	case smt.KindBool:
		if e.BoolValue() {
			return cc.c.T, nil
		}
		return cc.c.F, nil
	case smt.KindConst:
		m, ok := cc.vars[e.Name()]
		if !ok {
			return z.LitNull, fmt.Errorf("undeclared constant %s", e.Name())
		}
		return m, nil
	case smt.KindApp:
	default:
		return z.LitNull, fmt.Errorf("non-boolean term %s", e)
	}

	args := make([]z.Lit, len(e.Args()))
	for i, a := range e.Args() {
		m, err := cc.lit(a)
		if err != nil {
			return z.LitNull, err
		}
		args[i] = m
	}

	c := cc.c
	switch e.Name() {
	case "not":
		return args[0].Not(), nil
	case "and":
		return c.Ands(args...), nil
	case "or":
		return c.Ors(args...), nil
	case "xor":
		acc := args[0]
		for _, m := range args[1:] {
			acc = c.Xor(acc, m)
		}
		return acc, nil
	case "=>":
		acc := args[len(args)-1]
		for i := len(args) - 2; i >= 0; i-- {
			acc = c.Implies(args[i], acc)
		}
		return acc, nil
	case "=":
		eqs := make([]z.Lit, 0, len(args)-1)
		for i := 1; i < len(args); i++ {
			eqs = append(eqs, c.Xor(args[i-1], args[i]).Not())
		}
		return c.Ands(eqs...), nil
	case "distinct":
		var ds []z.Lit
		for i := 0; i < len(args); i++ {
			for j := i + 1; j < len(args); j++ {
				ds = append(ds, c.Xor(args[i], args[j]))
			}
		}
		return c.Ands(ds...), nil
	case "ite":
		return c.Choice(args[0], args[1], args[2]), nil
	}
	return z.LitNull, fmt.Errorf("operator %s is not boolean", e.Name())
}

func (cc *circuit) model(s *gini.Gini) smt.Model {
	m := make(smt.Model, len(cc.vars))
	for name, v := range cc.vars {
		m[name] = smt.BoolValue(s.Value(v))
	}
	return m
}
