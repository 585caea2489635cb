package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/model"
	"github.com/openfroyo/capplan/pkg/smt"
)

// PropertyValue is the value a property takes in one step.
type PropertyValue struct {
	PropertyIRI string
	Value       smt.Value
}

// MarshalJSON emits the value as a JSON boolean or number. Algebraic numbers
// the solver could only print symbolically are emitted as strings.
func (p PropertyValue) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch {
	case p.Value.Sort == smt.SortBool:
		value = p.Value.Bool
	case p.Value.Num != nil && p.Value.Num.IsInt():
		value = json.Number(p.Value.Num.Num().String())
	case p.Value.Num != nil:
		f, _ := p.Value.Num.Float64()
		value = f
	default:
		value = p.Value.Text
	}
	return json.Marshal(struct {
		PropertyIRI string      `json:"property_iri"`
		Value       interface{} `json:"value"`
	}{p.PropertyIRI, value})
}

// Application is one capability invoked in a step with its bound inputs and
// outputs.
type Application struct {
	CapabilityIRI string          `json:"capability_iri"`
	Inputs        []PropertyValue `json:"inputs"`
	Outputs       []PropertyValue `json:"outputs"`
}

// Step is one happening of the plan that invokes at least one capability.
type Step struct {
	Number       int           `json:"step_number"`
	Duration     float64       `json:"duration"`
	Applications []Application `json:"capability_applications"`
}

// Plan is the decoded sequence of capability invocations.
type Plan struct {
	Steps         []Step    `json:"plan_steps"`
	Length        int       `json:"plan_length"`
	TotalDuration float64   `json:"total_duration"`
	Created       time.Time `json:"time-created"`
}

// Decode builds a plan from a satisfying assignment. Variable names are
// resolved through the registries; names neither registry declared are
// ignored. Inputs are read at the first event of a happening and outputs at
// the last.
func Decode(m smt.Model, props *model.PropertyRegistry, caps *model.CapabilityRegistry) (*Plan, error) {
	steps := make(map[int]map[string]*Application)
	type occurrence struct {
		occ   model.Occurrence
		value smt.Value
	}
	var occurrences []occurrence

	for _, name := range m.Names() {
		v := m[name]
		if inv, ok := caps.ByName(name); ok {
			if v.Sort != smt.SortBool {
				return nil, engine.NewPermanentError(
					fmt.Sprintf("invocation variable %s has sort %s", name, v.Sort), nil).
					WithCode(engine.ErrCodeValidation).
					WithResource(inv.IRI)
			}
			if !v.Bool {
				continue
			}
			if steps[inv.Happening] == nil {
				steps[inv.Happening] = make(map[string]*Application)
			}
			steps[inv.Happening][inv.IRI] = &Application{
				CapabilityIRI: inv.IRI,
				Inputs:        []PropertyValue{},
				Outputs:       []PropertyValue{},
			}
			continue
		}
		if occ, ok := props.ByName(name); ok {
			occurrences = append(occurrences, occurrence{occ: occ, value: v})
		}
	}

	last := props.EventBound() - 1
	for _, o := range occurrences {
		apps := steps[o.occ.Happening]
		if apps == nil {
			continue
		}
		p := props.ByID(o.occ.Property)
		if p.Required {
			continue
		}
		for _, capIRI := range p.Capabilities {
			app, ok := apps[capIRI]
			if !ok {
				continue
			}
			pv := PropertyValue{PropertyIRI: p.IRI, Value: o.value}
			switch {
			case p.Relation == engine.RelationInput && o.occ.Event == 0:
				app.Inputs = append(app.Inputs, pv)
			case p.Relation == engine.RelationOutput && o.occ.Event == last:
				app.Outputs = append(app.Outputs, pv)
			}
		}
	}

	happenings := make([]int, 0, len(steps))
	for h := range steps {
		happenings = append(happenings, h)
	}
	sort.Ints(happenings)

	plan := &Plan{Steps: make([]Step, 0, len(happenings)), Created: time.Now().UTC()}
	for _, h := range happenings {
		step := Step{Number: h}
		for _, app := range steps[h] {
			sortValues(app.Inputs)
			sortValues(app.Outputs)
			step.Applications = append(step.Applications, *app)
		}
		sort.Slice(step.Applications, func(i, j int) bool {
			return step.Applications[i].CapabilityIRI < step.Applications[j].CapabilityIRI
		})
		plan.Steps = append(plan.Steps, step)
		plan.TotalDuration += step.Duration
	}
	plan.Length = len(plan.Steps)
	return plan, nil
}

func sortValues(values []PropertyValue) {
	sort.Slice(values, func(i, j int) bool {
		return values[i].PropertyIRI < values[j].PropertyIRI
	})
}

// InvokedVariables re-encodes the plan as the names of its true invocation
// variables, sorted.
func (p *Plan) InvokedVariables() []string {
	var names []string
	for _, s := range p.Steps {
		for _, a := range s.Applications {
			names = append(names, model.CapabilityVariable(a.CapabilityIRI, s.Number))
		}
	}
	sort.Strings(names)
	return names
}

// Capabilities returns the invoked capability IRIs in step order.
func (p *Plan) Capabilities() []string {
	var out []string
	for _, s := range p.Steps {
		for _, a := range s.Applications {
			out = append(out, a.CapabilityIRI)
		}
	}
	return out
}

// Empty reports whether the plan invokes nothing, which happens when the
// initial state already satisfies the goal.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}
