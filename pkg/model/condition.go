package model

import (
	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/smt"
)

// Condition relates one property occurrence to a literal.
type Condition struct {
	// Capability is empty for initial values and goals.
	Capability string
	Property   string
	Event      int
	Comparator engine.Comparator
	Literal    string
	Value      *smt.Expr
}

// Apply relates v to the condition's literal.
func (c Condition) Apply(v *smt.Expr) *smt.Expr {
	return Relate(c.Comparator, v, c.Value)
}

// Relate builds "a cmp b".
func Relate(cmp engine.Comparator, a, b *smt.Expr) *smt.Expr {
	if cmp == engine.ComparatorNotEqual {
		return smt.Compare("distinct", a, b)
	}
	return smt.Compare(string(cmp), a, b)
}

// Preconditions returns the Requirements of provided properties, once per
// capability using the property. Inputs are checked at event 0 and outputs at
// the last event of a happening.
func (r *PropertyRegistry) Preconditions() []Condition {
	var out []Condition
	for _, p := range r.Provided() {
		event := 0
		if p.Relation == engine.RelationOutput {
			event = r.eventBound - 1
		}
		for _, d := range p.Descriptions {
			if d.Goal != engine.GoalRequirement || d.Value == nil {
				continue
			}
			for _, c := range p.Capabilities {
				out = append(out, condition(c, p, event, d))
			}
		}
	}
	return out
}

// Inits returns the initial values of the model: every Actual_Value plus the
// Requirements stated on inputs of the required capability.
func (r *PropertyRegistry) Inits() []Condition {
	var out []Condition
	for _, p := range r.All() {
		for _, d := range p.Descriptions {
			if d.Value == nil {
				continue
			}
			requiredInput := p.Required && p.Relation == engine.RelationInput && d.Goal == engine.GoalRequirement
			if d.Goal == engine.GoalActualValue || requiredInput {
				out = append(out, condition("", p, 0, d))
			}
		}
	}
	return out
}

// Goals returns the Requirements on outputs of the required capability.
func (r *PropertyRegistry) Goals() []Condition {
	var out []Condition
	for _, p := range r.RequiredProperties() {
		if p.Relation != engine.RelationOutput {
			continue
		}
		for _, d := range p.Descriptions {
			if d.Goal == engine.GoalRequirement && d.Value != nil {
				out = append(out, condition("", p, 0, d))
			}
		}
	}
	return out
}

func condition(capIRI string, p *Property, event int, d Description) Condition {
	return Condition{
		Capability: capIRI,
		Property:   p.IRI,
		Event:      event,
		Comparator: d.Comparator,
		Literal:    d.Literal,
		Value:      d.Value,
	}
}
