package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/smt"
)

// PropertyID indexes the property arena of a registry.
type PropertyID int

// Description is one parsed instance description of a property.
type Description struct {
	Goal       engine.ExpressionGoal
	Comparator engine.Comparator
	Literal    string
	// Value is the literal in the property's sort, nil when the description
	// carries no value.
	Value *smt.Expr
}

// Property is a data element of the model.
type Property struct {
	ID              PropertyID
	IRI             string
	DataType        engine.DataType
	Relation        engine.RelationType
	TypeDescription string
	Required        bool
	// Capabilities lists the IRIs of the capabilities using the property, sorted.
	Capabilities []string
	Descriptions []Description
}

// Sort returns the SMT sort of the property's variables.
func (p *Property) Sort() smt.Sort {
	return SortOf(p.DataType)
}

// Value returns the first description carrying a literal.
func (p *Property) Value() (Description, bool) {
	for _, d := range p.Descriptions {
		if d.Value != nil {
			return d, true
		}
	}
	return Description{}, false
}

// HasGoal reports whether any description states an expression goal.
func (p *Property) HasGoal() bool {
	return len(p.Descriptions) > 0
}

// Occurrence is one declared variable of a property.
type Occurrence struct {
	Property  PropertyID
	IRI       string
	Happening int
	Event     int
	Name      string
	Sort      smt.Sort
}

// Var returns the occurrence as an SMT constant.
func (o Occurrence) Var() *smt.Expr {
	return smt.Const(o.Name, o.Sort)
}

// PropertyVariable names the occurrence of a property at (happening, event).
func PropertyVariable(iri string, happening, event int) string {
	return fmt.Sprintf("%s_%d_%d", iri, happening, event)
}

// SortOf maps a data type onto its SMT sort.
func SortOf(dt engine.DataType) smt.Sort {
	switch dt {
	case engine.DataTypeBoolean:
		return smt.SortBool
	case engine.DataTypeInteger:
		return smt.SortInt
	}
	return smt.SortReal
}

// PropertyRegistry holds every property of a request together with its
// variables for a fixed horizon. Provided properties have one variable per
// (happening, event); required properties have exactly one.
type PropertyRegistry struct {
	happenings int
	eventBound int
	props      []Property
	byIRI      map[string]PropertyID
	// occurrences[id] holds h*eventBound+e for provided properties and a
	// single entry for required ones.
	occurrences [][]Occurrence
	byName      map[string]Occurrence
}

// DeclareProperties builds the property registry for happenings in
// [0, maxHappenings) and events in [0, eventBound).
func DeclareProperties(f *Facts, maxHappenings, eventBound int) (*PropertyRegistry, error) {
	if maxHappenings < 1 || eventBound < 1 {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("invalid horizon %d happenings x %d events", maxHappenings, eventBound), nil).
			WithCode(engine.ErrCodeValidation)
	}
	r := &PropertyRegistry{
		happenings: maxHappenings,
		eventBound: eventBound,
		byIRI:      make(map[string]PropertyID),
		byName:     make(map[string]Occurrence),
	}

	for _, row := range f.Properties {
		iri := row.Text("Prop")
		capIRI := row.Text("Cap")
		rel, err := engine.ParseRelationType(row.Text("Role"))
		if err != nil {
			return nil, err
		}
		required := capIRI == f.Required
		dt := engine.ParseDataType(row.Text("DataType"))

		id, ok := r.byIRI[iri]
		if !ok {
			id = PropertyID(len(r.props))
			r.byIRI[iri] = id
			r.props = append(r.props, Property{
				ID:              id,
				IRI:             iri,
				DataType:        dt,
				Relation:        rel,
				TypeDescription: row.Text("Td"),
				Required:        required,
			})
		}
		p := &r.props[id]
		if p.Relation != rel {
			return nil, engine.NewPermanentError("property is both Input and Output", nil).
				WithCode(engine.ErrCodeValidation).
				WithResource(iri)
		}
		if p.Required != required {
			return nil, engine.NewPermanentError("property shared by the required and a provided capability", nil).
				WithCode(engine.ErrCodeValidation).
				WithResource(iri)
		}
		p.Capabilities = appendUnique(p.Capabilities, capIRI)
	}

	for _, row := range f.Descriptions {
		id, ok := r.byIRI[row.Text("Prop")]
		if !ok {
			continue
		}
		p := &r.props[id]
		d, err := parseDescription(p, row.Text("Goal"), row.Text("Relation"), row.Text("Value"))
		if err != nil {
			return nil, err
		}
		p.Descriptions = append(p.Descriptions, d)
	}

	r.occurrences = make([][]Occurrence, len(r.props))
	for i := range r.props {
		p := &r.props[i]
		sort.Strings(p.Capabilities)
		if p.Required {
			r.add(p, 0, 0)
			continue
		}
		for h := 0; h < maxHappenings; h++ {
			for e := 0; e < eventBound; e++ {
				r.add(p, h, e)
			}
		}
	}
	return r, nil
}

func (r *PropertyRegistry) add(p *Property, h, e int) {
	o := Occurrence{
		Property:  p.ID,
		IRI:       p.IRI,
		Happening: h,
		Event:     e,
		Name:      PropertyVariable(p.IRI, h, e),
		Sort:      p.Sort(),
	}
	r.occurrences[p.ID] = append(r.occurrences[p.ID], o)
	r.byName[o.Name] = o
}

func parseDescription(p *Property, goal, relation, value string) (Description, error) {
	g, err := engine.ParseExpressionGoal(goal)
	if err != nil {
		return Description{}, withResource(err, p.IRI)
	}
	cmp, err := engine.ParseComparator(relation)
	if err != nil {
		return Description{}, withResource(err, p.IRI)
	}
	d := Description{Goal: g, Comparator: cmp, Literal: value}
	if value == "" {
		return d, nil
	}
	if p.DataType == engine.DataTypeBoolean {
		if cmp != engine.ComparatorEqual && cmp != engine.ComparatorNotEqual {
			return Description{}, engine.NewUnsupportedRelationError(relation).WithResource(p.IRI)
		}
		b, err := engine.ParseBoolLiteral(value)
		if err != nil {
			return Description{}, withResource(err, p.IRI)
		}
		d.Value = smt.Bool(b)
		return d, nil
	}
	n, err := engine.ParseNumberLiteral(p.DataType, value)
	if err != nil {
		return Description{}, withResource(err, p.IRI)
	}
	d.Value = smt.Number(n, p.Sort())
	return d, nil
}

// Happenings returns the declared horizon.
func (r *PropertyRegistry) Happenings() int { return r.happenings }

// EventBound returns the number of events per happening.
func (r *PropertyRegistry) EventBound() int { return r.eventBound }

// Len returns the number of properties.
func (r *PropertyRegistry) Len() int { return len(r.props) }

// All returns every property in declaration order.
func (r *PropertyRegistry) All() []*Property {
	out := make([]*Property, len(r.props))
	for i := range r.props {
		out[i] = &r.props[i]
	}
	return out
}

// Provided returns the properties of provided capabilities.
func (r *PropertyRegistry) Provided() []*Property {
	var out []*Property
	for i := range r.props {
		if !r.props[i].Required {
			out = append(out, &r.props[i])
		}
	}
	return out
}

// RequiredProperties returns the properties of the required capability.
func (r *PropertyRegistry) RequiredProperties() []*Property {
	var out []*Property
	for i := range r.props {
		if r.props[i].Required {
			out = append(out, &r.props[i])
		}
	}
	return out
}

// ByID returns the property with the given arena index.
func (r *PropertyRegistry) ByID(id PropertyID) *Property {
	return &r.props[id]
}

// Get looks up a property by IRI.
func (r *PropertyRegistry) Get(iri string) (*Property, error) {
	id, ok := r.byIRI[iri]
	if !ok {
		return nil, engine.NewNotDeclaredError("property", iri)
	}
	return &r.props[id], nil
}

// Occurrence returns the variable of a property at (happening, event).
// Required properties have a single variable and ignore both indices.
func (r *PropertyRegistry) Occurrence(iri string, happening, event int) (Occurrence, error) {
	p, err := r.Get(iri)
	if err != nil {
		return Occurrence{}, err
	}
	occ := r.occurrences[p.ID]
	if p.Required {
		return occ[0], nil
	}
	if happening < 0 || happening >= r.happenings || event < 0 || event >= r.eventBound {
		return Occurrence{}, engine.NewOutOfRangeError("property", iri, happening, event)
	}
	return occ[happening*r.eventBound+event], nil
}

// Var returns the SMT constant of a property occurrence.
func (r *PropertyRegistry) Var(iri string, happening, event int) (*smt.Expr, error) {
	o, err := r.Occurrence(iri, happening, event)
	if err != nil {
		return nil, err
	}
	return o.Var(), nil
}

// Occurrences returns every occurrence of a property.
func (r *PropertyRegistry) Occurrences(iri string) ([]Occurrence, error) {
	p, err := r.Get(iri)
	if err != nil {
		return nil, err
	}
	return append([]Occurrence(nil), r.occurrences[p.ID]...), nil
}

// Declarations returns every occurrence of every property in arena order.
func (r *PropertyRegistry) Declarations() []Occurrence {
	var out []Occurrence
	for _, occ := range r.occurrences {
		out = append(out, occ...)
	}
	return out
}

// ByName resolves a variable name back to its occurrence.
func (r *PropertyRegistry) ByName(name string) (Occurrence, bool) {
	o, ok := r.byName[name]
	return o, ok
}

func withResource(err error, iri string) error {
	var ee *engine.EngineError
	if errors.As(err, &ee) && ee.Resource == "" {
		return ee.WithResource(iri)
	}
	return err
}
