package constraints

import (
	"fmt"

	"github.com/openfroyo/capplan/pkg/equivalence"
	"github.com/openfroyo/capplan/pkg/model"
	"github.com/openfroyo/capplan/pkg/openmath"
	"github.com/openfroyo/capplan/pkg/smt"
)

// DefaultEventBound is the number of events per happening: the start (0)
// and the end (1).
const DefaultEventBound = 2

// Context is everything a generator reads. It is built once per horizon
// attempt and never mutated by generators.
type Context struct {
	Facts        *model.Facts
	Properties   *model.PropertyRegistry
	Capabilities *model.CapabilityRegistry
	Resources    *model.ResourceRegistry
	Equivalence  *equivalence.Session
	Forest       *openmath.Forest
	Happenings   int
	EventBound   int
}

// NewContext declares the registries for happenings in [0, happenings).
// The equivalence session and the forest are shared between attempts of
// one request.
func NewContext(f *model.Facts, session *equivalence.Session, forest *openmath.Forest, happenings int) (*Context, error) {
	props, err := model.DeclareProperties(f, happenings, DefaultEventBound)
	if err != nil {
		return nil, err
	}
	caps, err := model.DeclareCapabilities(f, props, happenings)
	if err != nil {
		return nil, err
	}
	res, err := model.DeclareResources(f, caps)
	if err != nil {
		return nil, err
	}
	if forest == nil {
		forest = openmath.Build(f.Expressions)
	}
	return &Context{
		Facts:        f,
		Properties:   props,
		Capabilities: caps,
		Resources:    res,
		Equivalence:  session,
		Forest:       forest,
		Happenings:   happenings,
		EventBound:   DefaultEventBound,
	}, nil
}

// last is the event index of the end of a happening.
func (c *Context) last() int {
	return c.EventBound - 1
}

func (c *Context) invoked(capIRI string, h int) (*smt.Expr, error) {
	return c.Capabilities.Invoked(capIRI, h)
}

func (c *Context) prop(iri string, h, e int) (*smt.Expr, error) {
	return c.Properties.Var(iri, h, e)
}

// Generator produces one family of assertions.
type Generator interface {
	Name() string
	Generate(ctx *Context) ([]smt.Assertion, error)
}

// Default returns every generator a planning problem needs.
func Default() []Generator {
	return []Generator{
		Preconditions{},
		Effects{},
		BooleanFrames{},
		NumericFrames{},
		Mutexes{},
		CrossRelations{},
		Continuity{},
		Expressions{},
		Inits{},
		Goals{},
	}
}

// Observer is told how many assertions each generator produced.
type Observer func(generator string, count int)

// Assemble declares every variable and adds the output of every generator.
// Expression assertions are checked against the declarations; text
// assertions are re-parsed through Problem.Merge.
func Assemble(ctx *Context, generators []Generator, observe Observer) (*smt.Problem, error) {
	p := smt.NewProblem()
	for _, o := range ctx.Properties.Declarations() {
		if err := p.Declare(o.Name, o.Sort); err != nil {
			return nil, err
		}
	}
	invoked := ctx.Capabilities.Names()
	for _, name := range invoked {
		if err := p.Declare(name, smt.SortBool); err != nil {
			return nil, err
		}
	}
	if err := p.SetObjective(invoked); err != nil {
		return nil, err
	}

	for _, g := range generators {
		assertions, err := g.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("generator %s: %w", g.Name(), err)
		}
		for _, a := range assertions {
			if err := p.Add(a); err != nil {
				return nil, fmt.Errorf("generator %s: %w", g.Name(), err)
			}
		}
		if observe != nil {
			observe(g.Name(), len(assertions))
		}
	}
	return p, nil
}
