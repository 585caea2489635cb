package smt

import (
	"fmt"
	"strings"

	"github.com/openfroyo/capplan/pkg/engine"
)

// Decl declares a nullary constant.
type Decl struct {
	Name string `json:"name"`
	Sort Sort   `json:"sort"`
}

// Assertion is a labelled boolean term. Generators may hand in solver-native
// Text instead of an Expr; the Problem re-parses it against its declarations
// before accepting it.
type Assertion struct {
	Label   string
	Expr    *Expr
	Text    string
	Tracked bool
}

// Problem is a declared set of constants plus labelled assertions. Tracked
// assertions are the ones an unsat core may name; the rest is background
// that always holds.
type Problem struct {
	decls      []Decl
	sorts      map[string]Sort
	assertions []Assertion
	labels     map[string]bool
	objective  []string
}

// NewProblem creates an empty problem.
func NewProblem() *Problem {
	return &Problem{
		sorts:  make(map[string]Sort),
		labels: make(map[string]bool),
	}
}

// Declare adds a constant. Re-declaring with the same sort is a no-op.
func (p *Problem) Declare(name string, sort Sort) error {
	if s, ok := p.sorts[name]; ok {
		if s != sort {
			return engine.NewPermanentError(fmt.Sprintf("constant redeclared as %s, was %s", sort, s), nil).
				WithCode(engine.ErrCodeValidation).
				WithResource(name)
		}
		return nil
	}
	p.sorts[name] = sort
	p.decls = append(p.decls, Decl{Name: name, Sort: sort})
	return nil
}

// Lookup returns the sort of a declared constant.
func (p *Problem) Lookup(name string) (Sort, bool) {
	s, ok := p.sorts[name]
	return s, ok
}

// Declarations returns the declared constants in declaration order.
func (p *Problem) Declarations() []Decl {
	return append([]Decl(nil), p.decls...)
}

// Assertions returns every assertion in insertion order.
func (p *Problem) Assertions() []Assertion {
	return append([]Assertion(nil), p.assertions...)
}

// Tracked returns the assertions eligible for unsat cores.
func (p *Problem) Tracked() []Assertion {
	var out []Assertion
	for _, a := range p.assertions {
		if a.Tracked {
			out = append(out, a)
		}
	}
	return out
}

// Add validates and appends an assertion.
func (p *Problem) Add(a Assertion) error {
	if a.Expr == nil {
		return p.Merge(a.Label, a.Text, a.Tracked)
	}
	if err := p.check(a.Expr); err != nil {
		return engine.NewPermanentError("ill-sorted assertion", err).
			WithCode(engine.ErrCodeValidation).
			WithResource(a.Label)
	}
	return p.append(a)
}

// Merge parses solver-native text against the current declarations and adds
// the result. The text is either one boolean term or a sequence of SMT-LIB
// commands; (assert ...) commands become assertions labelled by their
// :named annotation or by label.
func (p *Problem) Merge(label, text string, tracked bool) error {
	nodes, err := readAll(text)
	if err != nil {
		return engine.NewMalformedExpressionError(label, err.Error())
	}
	if len(nodes) == 0 {
		return engine.NewMalformedExpressionError(label, "empty text")
	}

	if isCommand(nodes[0]) {
		n := 0
		for _, cmd := range nodes {
			if cmd.head() == "assert" {
				n++
			}
		}
		i := 0
		return p.apply(nodes, func() (string, bool) {
			i++
			if n == 1 {
				return label, tracked
			}
			return fmt.Sprintf("%s#%d", label, i), tracked
		})
	}

	if len(nodes) != 1 {
		return engine.NewMalformedExpressionError(label, fmt.Sprintf("expected one term, got %d", len(nodes)))
	}
	tp := &termParser{lookup: p.Lookup}
	e, _, err := tp.term(nodes[0])
	if err != nil {
		return engine.NewMalformedExpressionError(label, err.Error())
	}
	if e.sort != SortBool {
		return engine.NewMalformedExpressionError(label, "assertion is "+string(e.sort)+", not Bool")
	}
	return p.append(Assertion{Label: label, Expr: e, Tracked: tracked})
}

// apply executes declare and assert commands. Other commands are ignored.
func (p *Problem) apply(nodes []*node, nextLabel func() (string, bool)) error {
	tp := &termParser{lookup: p.Lookup}
	for _, cmd := range nodes {
		switch cmd.head() {
		case "declare-const":
			if len(cmd.list) != 3 {
				return engine.NewMalformedExpressionError(cmd.String(), "bad declare-const")
			}
			if err := p.Declare(cmd.list[1].atom, Sort(cmd.list[2].atom)); err != nil {
				return err
			}
		case "declare-fun":
			if len(cmd.list) != 4 || !cmd.list[2].isList || len(cmd.list[2].list) != 0 {
				return engine.NewMalformedExpressionError(cmd.String(), "only nullary declare-fun is supported")
			}
			if err := p.Declare(cmd.list[1].atom, Sort(cmd.list[3].atom)); err != nil {
				return err
			}
		case "assert":
			label, tracked := nextLabel()
			if len(cmd.list) != 2 {
				return engine.NewMalformedExpressionError(label, "bad assert")
			}
			e, named, err := tp.term(cmd.list[1])
			if err != nil {
				return engine.NewMalformedExpressionError(label, err.Error())
			}
			if e.sort != SortBool {
				return engine.NewMalformedExpressionError(label, "assertion is "+string(e.sort)+", not Bool")
			}
			if named != "" {
				label = named
				tracked = true
			}
			if err := p.append(Assertion{Label: label, Expr: e, Tracked: tracked}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Problem) append(a Assertion) error {
	if a.Label == "" {
		a.Label = fmt.Sprintf("assertion-%d", len(p.assertions)+1)
	}
	a.Label = SanitizeLabel(a.Label)
	if p.labels[a.Label] {
		return engine.NewPermanentError("duplicate assertion label", nil).
			WithCode(engine.ErrCodeValidation).
			WithResource(a.Label)
	}
	p.labels[a.Label] = true
	a.Text = ""
	p.assertions = append(p.assertions, a)
	return nil
}

// check verifies that every constant is declared with the sort it is used at
// and that the term is boolean.
func (p *Problem) check(e *Expr) error {
	if e.sort != SortBool {
		return fmt.Errorf("assertion is %s, not Bool", e.sort)
	}
	var walk func(*Expr) error
	walk = func(x *Expr) error {
		if x.kind == KindConst {
			s, ok := p.sorts[x.name]
			if !ok {
				return fmt.Errorf("undeclared symbol %s", Symbol(x.name))
			}
			if s != x.sort {
				return fmt.Errorf("symbol %s used as %s, declared %s", Symbol(x.name), x.sort, s)
			}
			return nil
		}
		for _, a := range x.args {
			if err := walk(a); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(e)
}

// SetObjective names the boolean constants whose true count is minimised.
func (p *Problem) SetObjective(names []string) error {
	for _, n := range names {
		if s, ok := p.sorts[n]; !ok || s != SortBool {
			return engine.NewPermanentError("objective must name declared Bool constants", nil).
				WithCode(engine.ErrCodeValidation).
				WithResource(n)
		}
	}
	p.objective = append([]string(nil), names...)
	return nil
}

// Objective returns the minimisation objective.
func (p *Problem) Objective() []string {
	return append([]string(nil), p.objective...)
}

// IsBoolean reports whether every declaration and assertion is purely boolean.
func (p *Problem) IsBoolean() bool {
	for _, d := range p.decls {
		if d.Sort != SortBool {
			return false
		}
	}
	for _, a := range p.assertions {
		if !a.Expr.IsBoolean() {
			return false
		}
	}
	return true
}

// Restrict returns a copy holding all background assertions and only the
// tracked assertions whose labels are listed.
func (p *Problem) Restrict(keep []string) *Problem {
	set := make(map[string]bool, len(keep))
	for _, k := range keep {
		set[k] = true
	}
	q := NewProblem()
	for _, d := range p.decls {
		q.sorts[d.Name] = d.Sort
	}
	q.decls = append(q.decls, p.decls...)
	q.objective = append(q.objective, p.objective...)
	for _, a := range p.assertions {
		if a.Tracked && !set[a.Label] {
			continue
		}
		q.labels[a.Label] = true
		q.assertions = append(q.assertions, a)
	}
	return q
}

// ScriptOptions controls SMT-LIB2 rendering.
type ScriptOptions struct {
	// Named renders tracked assertions with :named annotations and enables unsat cores.
	Named bool
	// Minimize appends a minimize directive over the objective.
	Minimize bool
	// CheckSat appends (check-sat).
	CheckSat bool
}

// Script renders the problem as an SMT-LIB2 script.
func (p *Problem) Script(opts ScriptOptions) string {
	var b strings.Builder
	b.WriteString("(set-option :produce-models true)\n")
	if opts.Named {
		b.WriteString("(set-option :produce-unsat-cores true)\n")
	}
	for _, d := range p.decls {
		fmt.Fprintf(&b, "(declare-fun %s () %s)\n", Symbol(d.Name), d.Sort)
	}
	for _, a := range p.assertions {
		if opts.Named && a.Tracked {
			fmt.Fprintf(&b, "(assert (! %s :named %s))\n", a.Expr, Symbol(a.Label))
			continue
		}
		fmt.Fprintf(&b, "; %s\n(assert %s)\n", a.Label, a.Expr)
	}
	if opts.Minimize && len(p.objective) > 0 {
		b.WriteString("(minimize (+")
		for _, n := range p.objective {
			fmt.Fprintf(&b, " (ite %s 1 0)", Symbol(n))
		}
		if len(p.objective) == 1 {
			b.WriteString(" 0")
		}
		b.WriteString("))\n")
	}
	if opts.CheckSat {
		b.WriteString("(check-sat)\n")
	}
	return b.String()
}

// String renders the problem with named tracked assertions.
func (p *Problem) String() string {
	return p.Script(ScriptOptions{Named: true})
}

// ParseScript builds a problem from an SMT-LIB2 script. Named assertions are
// tracked; unnamed ones become background.
func ParseScript(text string) (*Problem, error) {
	nodes, err := readAll(text)
	if err != nil {
		return nil, engine.NewMalformedExpressionError("script", err.Error())
	}
	p := NewProblem()
	err = p.apply(nodes, func() (string, bool) { return "", false })
	if err != nil {
		return nil, err
	}
	return p, nil
}

func isCommand(n *node) bool {
	switch n.head() {
	case "assert", "declare-fun", "declare-const", "set-option", "set-logic", "set-info",
		"check-sat", "get-model", "get-unsat-core", "exit", "push", "pop":
		return true
	}
	return false
}
