package openmath

import (
	"fmt"
	"sort"

	"github.com/openfroyo/capplan/pkg/facts"
)

// ArgKind is the shape of an application argument.
type ArgKind string

const (
	ArgApplication ArgKind = "application"
	ArgVariable    ArgKind = "variable"
	ArgLiteral     ArgKind = "literal"
)

// Argument is one operand of an application. Value holds the nested
// application IRI, the property IRI or the literal's lexical form.
type Argument struct {
	Position int
	Kind     ArgKind
	Value    string
}

// Application is an operator applied to positional arguments.
type Application struct {
	IRI      string
	Operator string
	Args     []Argument

	// malformed is set while building when rows for the IRI contradict each other.
	malformed string
}

// Forest indexes the OpenMath applications of a model by IRI.
type Forest struct {
	apps    map[string]*Application
	parents map[string][]string
}

// Build indexes expression rows (App, Op, Pos, Arg, ArgKind, Value).
// Contradictions are recorded and reported by Flatten for the affected roots.
func Build(rows []facts.Row) *Forest {
	f := &Forest{
		apps:    make(map[string]*Application),
		parents: make(map[string][]string),
	}
	byPos := make(map[string]map[int]Argument)

	for _, r := range rows {
		iri := r.Text("App")
		app, ok := f.apps[iri]
		if !ok {
			app = &Application{IRI: iri, Operator: r.Text("Op")}
			f.apps[iri] = app
			byPos[iri] = make(map[int]Argument)
		}
		if op := r.Text("Op"); op != app.Operator && app.malformed == "" {
			app.malformed = fmt.Sprintf("conflicting operators %s and %s", app.Operator, op)
		}

		pos, err := r.Int("Pos")
		if err != nil {
			if app.malformed == "" {
				app.malformed = fmt.Sprintf("invalid argument position %q", r.Text("Pos"))
			}
			continue
		}
		arg := Argument{Position: pos, Kind: ArgKind(r.Text("ArgKind")), Value: r.Text("Value")}
		if prev, ok := byPos[iri][pos]; ok {
			if prev != arg && app.malformed == "" {
				app.malformed = fmt.Sprintf("two arguments at position %d", pos)
			}
			continue
		}
		byPos[iri][pos] = arg
		if arg.Kind == ArgApplication {
			f.parents[arg.Value] = append(f.parents[arg.Value], iri)
		}
	}

	for iri, args := range byPos {
		app := f.apps[iri]
		for _, a := range args {
			app.Args = append(app.Args, a)
		}
		sort.Slice(app.Args, func(i, j int) bool { return app.Args[i].Position < app.Args[j].Position })
	}
	return f
}

// Len returns the number of applications.
func (f *Forest) Len() int {
	return len(f.apps)
}

// Get returns an application by IRI.
func (f *Forest) Get(iri string) (*Application, bool) {
	a, ok := f.apps[iri]
	return a, ok
}

// IsRoot reports whether iri is an application no other application uses
// as an argument.
func (f *Forest) IsRoot(iri string) bool {
	_, ok := f.apps[iri]
	return ok && len(f.parents[iri]) == 0
}

// Roots returns every root application, sorted.
func (f *Forest) Roots() []string {
	var out []string
	for iri := range f.apps {
		if len(f.parents[iri]) == 0 {
			out = append(out, iri)
		}
	}
	sort.Strings(out)
	return out
}

// Variables returns the property IRIs a root expression mentions, sorted and
// de-duplicated. Malformed subtrees are skipped.
func (f *Forest) Variables(root string) []string {
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	var walk func(string)
	walk = func(iri string) {
		app, ok := f.apps[iri]
		if !ok || visited[iri] {
			return
		}
		visited[iri] = true
		for _, a := range app.Args {
			switch a.Kind {
			case ArgVariable:
				seen[a.Value] = true
			case ArgApplication:
				walk(a.Value)
			}
		}
	}
	walk(root)

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
