package constraints

import (
	"strconv"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/model"
	"github.com/openfroyo/capplan/pkg/openmath"
	"github.com/openfroyo/capplan/pkg/smt"
)

// Preconditions requires every Requirement of a provided property to hold
// whenever its capability runs. One tracked assertion covers all happenings
// of a (capability, property) pair.
type Preconditions struct{}

func (Preconditions) Name() string { return "preconditions" }

func (Preconditions) Generate(ctx *Context) ([]smt.Assertion, error) {
	grouped := make(map[string][]*smt.Expr)
	var order []string
	for _, cond := range ctx.Properties.Preconditions() {
		kind := "precondition"
		if cond.Event != 0 {
			kind = "postcondition"
		}
		l := label(kind, cond.Capability, cond.Property)
		if _, ok := grouped[l]; !ok {
			order = append(order, l)
		}
		for h := 0; h < ctx.Happenings; h++ {
			inv, err := ctx.invoked(cond.Capability, h)
			if err != nil {
				return nil, err
			}
			v, err := ctx.prop(cond.Property, h, cond.Event)
			if err != nil {
				return nil, err
			}
			grouped[l] = append(grouped[l], smt.Implies(inv, cond.Apply(v)))
		}
	}

	out := make([]smt.Assertion, 0, len(order))
	for _, l := range order {
		out = append(out, smt.Assertion{Label: l, Expr: smt.And(grouped[l]...), Tracked: true})
	}
	return out, nil
}

// Effects asserts what invoking a capability does to its outputs.
type Effects struct{}

func (Effects) Name() string { return "effects" }

func (Effects) Generate(ctx *Context) ([]smt.Assertion, error) {
	var out []smt.Assertion
	for _, capability := range ctx.Capabilities.All() {
		for _, o := range capability.Outputs {
			switch o.Effect {
			case engine.EffectNumericConstant, engine.EffectSetTrue, engine.EffectSetFalse:
				for h := 0; h < ctx.Happenings; h++ {
					inv, err := ctx.invoked(capability.IRI, h)
					if err != nil {
						return nil, err
					}
					v, err := ctx.prop(o.IRI, h, ctx.last())
					if err != nil {
						return nil, err
					}
					out = append(out, smt.Assertion{
						Label: label("effect", capability.IRI, o.IRI, strconv.Itoa(h)),
						Expr:  smt.Implies(inv, smt.Eq(v, o.Value)),
					})
				}
			case engine.EffectChangeByExpression:
				if o.Constraint == "" {
					continue
				}
				for h := 0; h < ctx.Happenings; h++ {
					flat, err := openmath.Flatten(ctx.Forest, o.Constraint, h, ctx.last())
					if err != nil {
						return nil, err
					}
					out = append(out, smt.Assertion{
						Label: label("effect", capability.IRI, o.IRI, strconv.Itoa(h)),
						Text:  implication(model.CapabilityVariable(capability.IRI, h), flat),
					})
				}
			case engine.EffectNoChange, engine.EffectNone:
			}
		}
	}
	return out, nil
}

// BooleanFrames forbid a boolean property from changing within a happening
// unless a capability able to set it runs.
type BooleanFrames struct{}

func (BooleanFrames) Name() string { return "boolean-frames" }

func (BooleanFrames) Generate(ctx *Context) ([]smt.Assertion, error) {
	var out []smt.Assertion
	for _, p := range ctx.Properties.Provided() {
		if p.DataType != engine.DataTypeBoolean {
			continue
		}
		raising := ctx.influencers(p, engine.Effect.SetsTrue)
		lowering := ctx.influencers(p, engine.Effect.SetsFalse)
		for h := 0; h < ctx.Happenings; h++ {
			start, err := ctx.prop(p.IRI, h, 0)
			if err != nil {
				return nil, err
			}
			end, err := ctx.prop(p.IRI, h, ctx.last())
			if err != nil {
				return nil, err
			}
			up, err := invocations(ctx, raising, h)
			if err != nil {
				return nil, err
			}
			down, err := invocations(ctx, lowering, h)
			if err != nil {
				return nil, err
			}
			hs := strconv.Itoa(h)
			out = append(out,
				smt.Assertion{
					Label: label("frame", p.IRI, hs, "rising"),
					Expr:  smt.Implies(end, smt.Or(append([]*smt.Expr{start}, up...)...)),
				},
				smt.Assertion{
					Label: label("frame", p.IRI, hs, "falling"),
					Expr:  smt.Implies(smt.Not(end), smt.Or(append([]*smt.Expr{smt.Not(start)}, down...)...)),
				},
			)
		}
	}
	return out, nil
}

// NumericFrames keep a numeric property constant within a happening unless
// an influencing capability runs.
type NumericFrames struct{}

func (NumericFrames) Name() string { return "numeric-frames" }

func (NumericFrames) Generate(ctx *Context) ([]smt.Assertion, error) {
	var out []smt.Assertion
	for _, p := range ctx.Properties.Provided() {
		if !p.DataType.Numeric() {
			continue
		}
		caps := ctx.influencers(p, engine.Effect.Influences)
		for h := 0; h < ctx.Happenings; h++ {
			start, err := ctx.prop(p.IRI, h, 0)
			if err != nil {
				return nil, err
			}
			end, err := ctx.prop(p.IRI, h, ctx.last())
			if err != nil {
				return nil, err
			}
			invs, err := invocations(ctx, caps, h)
			if err != nil {
				return nil, err
			}
			keep := smt.Eq(end, start)
			if len(invs) > 0 {
				idle := make([]*smt.Expr, len(invs))
				for i, inv := range invs {
					idle[i] = smt.Not(inv)
				}
				keep = smt.Implies(smt.And(idle...), keep)
			}
			out = append(out, smt.Assertion{Label: label("frame", p.IRI, strconv.Itoa(h)), Expr: keep})
		}
	}
	return out, nil
}

// Mutexes forbid two capabilities of one resource in the same happening.
type Mutexes struct{}

func (Mutexes) Name() string { return "mutexes" }

func (Mutexes) Generate(ctx *Context) ([]smt.Assertion, error) {
	var out []smt.Assertion
	for _, r := range ctx.Resources.All() {
		for i := 0; i < len(r.Capabilities); i++ {
			for j := i + 1; j < len(r.Capabilities); j++ {
				a := ctx.Capabilities.ByID(r.Capabilities[i])
				b := ctx.Capabilities.ByID(r.Capabilities[j])
				for h := 0; h < ctx.Happenings; h++ {
					x, err := ctx.invoked(a.IRI, h)
					if err != nil {
						return nil, err
					}
					y, err := ctx.invoked(b.IRI, h)
					if err != nil {
						return nil, err
					}
					out = append(out, smt.Assertion{
						Label: label("mutex", r.IRI, a.IRI, b.IRI, strconv.Itoa(h)),
						Expr:  smt.Not(smt.And(x, y)),
					})
				}
			}
		}
	}
	return out, nil
}

// CrossRelations bind the required capability to the provided properties
// equivalent to its own: inputs at the start of the plan and outputs at its
// end.
type CrossRelations struct{}

func (CrossRelations) Name() string { return "cross-relations" }

func (CrossRelations) Generate(ctx *Context) ([]smt.Assertion, error) {
	var out []smt.Assertion
	for _, r := range ctx.Properties.RequiredProperties() {
		rv, err := ctx.prop(r.IRI, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, partner := range ctx.Equivalence.Partners(r.IRI) {
			p, err := ctx.Properties.Get(partner)
			if err != nil {
				return nil, err
			}
			h, e := 0, 0
			if r.Relation == engine.RelationOutput {
				if p.Relation != engine.RelationOutput {
					continue
				}
				h, e = ctx.Happenings-1, ctx.last()
			}
			pv, err := ctx.prop(partner, h, e)
			if err != nil {
				return nil, err
			}
			out = append(out, smt.Assertion{Label: label("cross", r.IRI, partner), Expr: smt.Eq(rv, pv)})
		}
	}
	return out, nil
}

// Continuity carries the end of one happening into the start of the next.
// Free parameters are exempt.
type Continuity struct{}

func (Continuity) Name() string { return "continuity" }

func (Continuity) Generate(ctx *Context) ([]smt.Assertion, error) {
	var out []smt.Assertion
	for _, p := range ctx.Properties.Provided() {
		if ctx.freeParameter(p) {
			continue
		}
		for h := 1; h < ctx.Happenings; h++ {
			next, err := ctx.prop(p.IRI, h, 0)
			if err != nil {
				return nil, err
			}
			prev, err := ctx.prop(p.IRI, h-1, ctx.last())
			if err != nil {
				return nil, err
			}
			out = append(out, smt.Assertion{Label: label("continuity", p.IRI, strconv.Itoa(h)), Expr: smt.Eq(next, prev)})
		}
	}
	return out, nil
}

// Expressions assert the constraints of every capability that are not
// already asserted as effects. Input-side constraints hold at the start of
// a happening, Output-side ones at its end.
type Expressions struct{}

func (Expressions) Name() string { return "expressions" }

func (Expressions) Generate(ctx *Context) ([]smt.Assertion, error) {
	var out []smt.Assertion
	for _, capability := range ctx.Capabilities.All() {
		skip := consumed(capability)
		for _, k := range capability.Constraints {
			if skip[k.IRI] {
				continue
			}
			event := 0
			if k.Side == engine.RelationOutput {
				event = ctx.last()
			}
			parts := make([]string, 0, ctx.Happenings)
			for h := 0; h < ctx.Happenings; h++ {
				flat, err := openmath.Flatten(ctx.Forest, k.IRI, h, event)
				if err != nil {
					return nil, err
				}
				parts = append(parts, implication(model.CapabilityVariable(capability.IRI, h), flat))
			}
			out = append(out, smt.Assertion{
				Label:   label("expression", capability.IRI, k.IRI),
				Text:    conjunction(parts),
				Tracked: true,
			})
		}
	}
	return out, nil
}

// Inits fix the initial value of every property with an Actual_Value.
type Inits struct{}

func (Inits) Name() string { return "inits" }

func (Inits) Generate(ctx *Context) ([]smt.Assertion, error) {
	return boundary(ctx, "init", ctx.Properties.Inits(), true)
}

// Goals require the required capability's outputs to meet their Requirements.
type Goals struct{}

func (Goals) Name() string { return "goals" }

func (Goals) Generate(ctx *Context) ([]smt.Assertion, error) {
	return boundary(ctx, "goal", ctx.Properties.Goals(), false)
}

// boundary relates the first occurrence of each property to its literals.
// Several conditions on one property share a single assertion.
func boundary(ctx *Context, kind string, conds []model.Condition, tracked bool) ([]smt.Assertion, error) {
	grouped := make(map[string][]*smt.Expr)
	var order []string
	for _, cond := range conds {
		v, err := ctx.prop(cond.Property, 0, 0)
		if err != nil {
			return nil, err
		}
		if _, ok := grouped[cond.Property]; !ok {
			order = append(order, cond.Property)
		}
		grouped[cond.Property] = append(grouped[cond.Property], cond.Apply(v))
	}
	out := make([]smt.Assertion, 0, len(order))
	for _, iri := range order {
		out = append(out, smt.Assertion{Label: label(kind, iri), Expr: smt.And(grouped[iri]...), Tracked: tracked})
	}
	return out, nil
}

func invocations(ctx *Context, caps []string, h int) ([]*smt.Expr, error) {
	out := make([]*smt.Expr, 0, len(caps))
	for _, capIRI := range caps {
		inv, err := ctx.invoked(capIRI, h)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func implication(invoked, flat string) string {
	return "(=> " + smt.Symbol(invoked) + " " + flat + ")"
}

func conjunction(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	s := "(and"
	for _, p := range parts {
		s += " " + p
	}
	return s + ")"
}
