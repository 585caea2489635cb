package constraints

import (
	"sort"
	"strings"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/model"
)

func label(parts ...string) string {
	return strings.Join(parts, " ")
}

// effectOn returns the effect a provided capability has on a property. An
// output mentioned by an Output-side constraint without a classified effect
// counts as changed by that expression.
func (c *Context) effectOn(capIRI, propIRI string) engine.Effect {
	capability, err := c.Capabilities.Get(capIRI)
	if err != nil {
		return engine.EffectNone
	}
	p, err := c.Properties.Get(propIRI)
	if err != nil {
		return engine.EffectNone
	}
	if o, ok := capability.Effect(p.ID); ok && o.Effect != engine.EffectNone {
		return o.Effect
	}
	if p.Relation == engine.RelationOutput && c.constrainsOutput(capability, propIRI) {
		return engine.EffectChangeByExpression
	}
	return engine.EffectNone
}

func (c *Context) constrainsOutput(capability *model.Capability, propIRI string) bool {
	for _, k := range capability.Constraints {
		if k.Side != engine.RelationOutput {
			continue
		}
		for _, v := range c.Forest.Variables(k.IRI) {
			if v == propIRI {
				return true
			}
		}
	}
	return false
}

// consumed returns the constraints a capability already asserts as effects.
func consumed(capability *model.Capability) map[string]bool {
	out := make(map[string]bool)
	for _, o := range capability.Outputs {
		if o.Effect == engine.EffectChangeByExpression && o.Constraint != "" {
			out[o.Constraint] = true
		}
	}
	return out
}

// influencers returns the capabilities attached to p, or linked to it
// through equivalent properties, whose effect on p or on one of its partners
// satisfies match.
func (c *Context) influencers(p *model.Property, match func(engine.Effect) bool) []string {
	candidates := make(map[string]bool)
	for _, capIRI := range p.Capabilities {
		candidates[capIRI] = true
		for _, partner := range c.Equivalence.CapabilityPartners(capIRI, p.IRI) {
			candidates[partner] = true
		}
	}
	targets := append([]string{p.IRI}, c.Equivalence.Partners(p.IRI)...)

	var out []string
	for capIRI := range candidates {
		for _, t := range targets {
			if match(c.effectOn(capIRI, t)) {
				out = append(out, capIRI)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// freeParameter reports whether p is an input nothing determines: no
// description, no effect and no equivalent property. Its value may differ
// between happenings.
func (c *Context) freeParameter(p *model.Property) bool {
	if p.Required || p.Relation != engine.RelationInput || p.HasGoal() {
		return false
	}
	for _, capIRI := range p.Capabilities {
		if c.effectOn(capIRI, p.IRI) != engine.EffectNone {
			return false
		}
	}
	return len(c.Equivalence.Partners(p.IRI)) == 0
}
