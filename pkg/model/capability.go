package model

import (
	"fmt"
	"sort"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/smt"
)

// CapabilityID indexes the capability arena of a registry.
type CapabilityID int

// Output is an output property of a capability together with the effect
// invoking the capability has on it.
type Output struct {
	Property PropertyID
	IRI      string
	// Effect is EffectNone when no input of the same type description exists.
	Effect engine.Effect
	// Value is the assured literal of constant effects.
	Value *smt.Expr
	// Constraint is the equality driving a ChangeByExpression effect.
	Constraint string
}

// Constraint is an expression restricting a capability.
type Constraint struct {
	IRI  string
	Side engine.RelationType
}

// Capability is a provided capability of the model.
type Capability struct {
	ID          CapabilityID
	IRI         string
	Resources   []string
	Inputs      []PropertyID
	Outputs     []Output
	Constraints []Constraint
}

// Effect returns the effect of the capability on an output property.
func (c *Capability) Effect(prop PropertyID) (Output, bool) {
	for _, o := range c.Outputs {
		if o.Property == prop {
			return o, true
		}
	}
	return Output{}, false
}

// Invocation is the boolean variable stating that a capability runs in a happening.
type Invocation struct {
	Capability CapabilityID
	IRI        string
	Happening  int
	Name       string
}

// Var returns the invocation as an SMT constant.
func (i Invocation) Var() *smt.Expr {
	return smt.Const(i.Name, smt.SortBool)
}

// CapabilityVariable names the invocation of a capability in a happening.
func CapabilityVariable(iri string, happening int) string {
	return fmt.Sprintf("%s_%d", iri, happening)
}

// RequiredCapability is the goal capability. It has properties but no
// invocation variables.
type RequiredCapability struct {
	IRI     string
	Inputs  []PropertyID
	Outputs []PropertyID
}

// CapabilityRegistry holds the provided capabilities and their invocation
// variables for a fixed horizon.
type CapabilityRegistry struct {
	happenings  int
	caps        []Capability
	byIRI       map[string]CapabilityID
	required    RequiredCapability
	invocations []Invocation
	byName      map[string]Invocation
}

// DeclareCapabilities builds the capability registry over the properties of
// the same request.
func DeclareCapabilities(f *Facts, props *PropertyRegistry, maxHappenings int) (*CapabilityRegistry, error) {
	r := &CapabilityRegistry{
		happenings: maxHappenings,
		byIRI:      make(map[string]CapabilityID),
		byName:     make(map[string]Invocation),
		required:   RequiredCapability{IRI: f.Required},
	}

	for _, p := range props.All() {
		for _, c := range p.Capabilities {
			if c == f.Required {
				if p.Relation == engine.RelationInput {
					r.required.Inputs = append(r.required.Inputs, p.ID)
				} else {
					r.required.Outputs = append(r.required.Outputs, p.ID)
				}
				continue
			}
			capability := r.ensure(c)
			if p.Relation == engine.RelationInput {
				capability.Inputs = append(capability.Inputs, p.ID)
			} else {
				capability.Outputs = append(capability.Outputs, Output{Property: p.ID, IRI: p.IRI})
			}
		}
	}

	for _, row := range f.Resources {
		if row.Text("Cap") == f.Required {
			continue
		}
		c := r.ensure(row.Text("Cap"))
		c.Resources = appendUnique(c.Resources, row.Text("Resource"))
	}

	for _, row := range f.Constraints {
		id, ok := r.byIRI[row.Text("Cap")]
		if !ok {
			continue
		}
		side, err := engine.ParseRelationType(row.Text("Side"))
		if err != nil {
			return nil, err
		}
		r.caps[id].Constraints = append(r.caps[id].Constraints, Constraint{IRI: row.Text("Constraint"), Side: side})
	}

	if err := r.classifyEffects(f, props); err != nil {
		return nil, err
	}

	for i := range r.caps {
		c := &r.caps[i]
		sort.Strings(c.Resources)
		for h := 0; h < maxHappenings; h++ {
			inv := Invocation{
				Capability: c.ID,
				IRI:        c.IRI,
				Happening:  h,
				Name:       CapabilityVariable(c.IRI, h),
			}
			r.invocations = append(r.invocations, inv)
			r.byName[inv.Name] = inv
		}
	}
	return r, nil
}

func (r *CapabilityRegistry) ensure(iri string) *Capability {
	id, ok := r.byIRI[iri]
	if !ok {
		id = CapabilityID(len(r.caps))
		r.byIRI[iri] = id
		r.caps = append(r.caps, Capability{ID: id, IRI: iri})
	}
	return &r.caps[id]
}

// effectRank orders competing classifications of one output. An output fed
// by an expression is never downgraded by a sibling input.
func effectRank(e engine.Effect) int {
	switch e {
	case engine.EffectChangeByExpression:
		return 3
	case engine.EffectSetTrue, engine.EffectSetFalse, engine.EffectNumericConstant:
		return 2
	case engine.EffectNoChange:
		return 1
	case engine.EffectNone:
		return 0
	}
	return 0
}

// classifyEffects derives the effect of every capability on its outputs from
// the influence rows: an input and an output of the same capability sharing a
// type description.
func (r *CapabilityRegistry) classifyEffects(f *Facts, props *PropertyRegistry) error {
	// bound maps an ordered property pair to the first equality binding it.
	bound := make(map[[2]string]string)
	for _, row := range f.Equalities {
		a, b, c := row.Text("A"), row.Text("B"), row.Text("Constraint")
		for _, k := range [][2]string{{a, b}, {b, a}} {
			if prev, ok := bound[k]; !ok || c < prev {
				bound[k] = c
			}
		}
	}

	for _, row := range f.Influences {
		id, ok := r.byIRI[row.Text("Cap")]
		if !ok {
			continue
		}
		in, err := props.Get(row.Text("InProp"))
		if err != nil {
			return err
		}
		out, err := props.Get(row.Text("OutProp"))
		if err != nil {
			return err
		}

		constraint := bound[[2]string{in.IRI, out.IRI}]
		effect, value := classify(in, out, row.Text("InClass") != row.Text("OutClass"), constraint != "")
		if effect == engine.EffectNone {
			continue
		}

		c := &r.caps[id]
		for i := range c.Outputs {
			o := &c.Outputs[i]
			if o.Property != out.ID || effectRank(effect) <= effectRank(o.Effect) {
				continue
			}
			o.Effect = effect
			o.Value = value
			o.Constraint = ""
			if effect == engine.EffectChangeByExpression {
				o.Constraint = constraint
			}
		}
	}
	return nil
}

func classify(in, out *Property, classChanges, bound bool) (engine.Effect, *smt.Expr) {
	if bound {
		if !classChanges && in.HasGoal() {
			return engine.EffectNoChange, nil
		}
		return engine.EffectChangeByExpression, nil
	}

	od, ok := out.Value()
	if !ok {
		return engine.EffectNone, nil
	}
	if id, ok := in.Value(); ok && id.Literal == od.Literal {
		return engine.EffectNoChange, nil
	}
	switch od.Literal {
	case "false":
		return engine.EffectSetFalse, od.Value
	case "true":
		return engine.EffectSetTrue, od.Value
	}
	return engine.EffectNumericConstant, od.Value
}

// Happenings returns the declared horizon.
func (r *CapabilityRegistry) Happenings() int { return r.happenings }

// Len returns the number of provided capabilities.
func (r *CapabilityRegistry) Len() int { return len(r.caps) }

// All returns the provided capabilities in declaration order.
func (r *CapabilityRegistry) All() []*Capability {
	out := make([]*Capability, len(r.caps))
	for i := range r.caps {
		out[i] = &r.caps[i]
	}
	return out
}

// Required returns the goal capability.
func (r *CapabilityRegistry) Required() RequiredCapability {
	return r.required
}

// Get looks up a provided capability by IRI.
func (r *CapabilityRegistry) Get(iri string) (*Capability, error) {
	id, ok := r.byIRI[iri]
	if !ok {
		return nil, engine.NewNotDeclaredError("capability", iri)
	}
	return &r.caps[id], nil
}

// ByID returns the capability with the given arena index.
func (r *CapabilityRegistry) ByID(id CapabilityID) *Capability {
	return &r.caps[id]
}

// Invocation returns the invocation variable of a capability in a happening.
func (r *CapabilityRegistry) Invocation(iri string, happening int) (Invocation, error) {
	c, err := r.Get(iri)
	if err != nil {
		return Invocation{}, err
	}
	if happening < 0 || happening >= r.happenings {
		return Invocation{}, engine.NewOutOfRangeError("capability", iri, happening, 0)
	}
	return r.invocations[int(c.ID)*r.happenings+happening], nil
}

// Invoked returns the SMT constant stating that a capability runs in a happening.
func (r *CapabilityRegistry) Invoked(iri string, happening int) (*smt.Expr, error) {
	inv, err := r.Invocation(iri, happening)
	if err != nil {
		return nil, err
	}
	return inv.Var(), nil
}

// Invocations returns every invocation variable, capability-major.
func (r *CapabilityRegistry) Invocations() []Invocation {
	return append([]Invocation(nil), r.invocations...)
}

// Names returns the names of every invocation variable.
func (r *CapabilityRegistry) Names() []string {
	out := make([]string, len(r.invocations))
	for i, inv := range r.invocations {
		out[i] = inv.Name
	}
	return out
}

// ByName resolves a variable name back to its invocation.
func (r *CapabilityRegistry) ByName(name string) (Invocation, bool) {
	inv, ok := r.byName[name]
	return inv, ok
}
