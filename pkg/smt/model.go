package smt

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
)

// Value is the interpretation of one constant in a model. Num is nil for
// booleans and for algebraic numbers the solver could only print
// symbolically; Text always holds the solver's rendering.
type Value struct {
	Sort Sort
	Bool bool
	Num  *big.Rat
	Text string
}

// BoolValue constructs a boolean model value.
func BoolValue(v bool) Value {
	return Value{Sort: SortBool, Bool: v, Text: fmt.Sprint(v)}
}

// NumberValue constructs a numeric model value.
func NumberValue(r *big.Rat, s Sort) Value {
	return Value{Sort: s, Num: new(big.Rat).Set(r), Text: ratText(r)}
}

// String renders the value; rationals print as n or n/d.
func (v Value) String() string {
	if v.Sort == SortBool {
		return fmt.Sprint(v.Bool)
	}
	if v.Num != nil {
		return ratText(v.Num)
	}
	return v.Text
}

// Float64 returns the nearest float for numeric values.
func (v Value) Float64() (float64, bool) {
	if v.Num == nil {
		return 0, false
	}
	f, _ := v.Num.Float64()
	return f, true
}

// MarshalJSON emits booleans as JSON booleans and numbers as strings so that
// exact rationals survive.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Sort == SortBool {
		return json.Marshal(v.Bool)
	}
	return json.Marshal(v.String())
}

func ratText(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	return r.RatString()
}

// Model maps constant names to their values.
type Model map[string]Value

// Names returns the constant names in sorted order.
func (m Model) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CountTrue returns how many of the named boolean constants are true.
func (m Model) CountTrue(names []string) int {
	n := 0
	for _, name := range names {
		if v, ok := m[name]; ok && v.Sort == SortBool && v.Bool {
			n++
		}
	}
	return n
}

// ParseModel reads the output of (get-model), with or without the leading
// "model" keyword. Function definitions with parameters are skipped.
func ParseModel(text string) (Model, error) {
	nodes, err := readAll(text)
	if err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	m := make(Model)
	var visit func(n *node) error
	visit = func(n *node) error {
		if !n.isList {
			return nil
		}
		if n.head() == "define-fun" {
			if len(n.list) != 5 || !n.list[2].isList || len(n.list[2].list) != 0 {
				return nil
			}
			v, err := parseValue(Sort(n.list[3].atom), n.list[4])
			if err != nil {
				return fmt.Errorf("value of %s: %w", n.list[1].atom, err)
			}
			m[n.list[1].atom] = v
			return nil
		}
		for _, c := range n.list {
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range nodes {
		if n.head() == "error" {
			return nil, fmt.Errorf("solver error: %s", n)
		}
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func parseValue(s Sort, n *node) (Value, error) {
	if s == SortBool {
		switch n.atom {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		}
		return Value{}, fmt.Errorf("not a boolean: %s", n)
	}
	r, ok := evalRational(n)
	if !ok {
		return Value{Sort: s, Text: n.String()}, nil
	}
	return NumberValue(r, s), nil
}

// evalRational folds the numeral, decimal, unary minus and division forms a
// solver uses to print rationals.
func evalRational(n *node) (*big.Rat, bool) {
	if !n.isList {
		if isNumeral(n.atom) || isDecimal(n.atom) {
			r, ok := new(big.Rat).SetString(n.atom)
			return r, ok
		}
		return nil, false
	}
	switch n.head() {
	case "-":
		if len(n.list) == 2 {
			r, ok := evalRational(n.list[1])
			if !ok {
				return nil, false
			}
			return r.Neg(r), true
		}
	case "/":
		if len(n.list) == 3 {
			a, ok1 := evalRational(n.list[1])
			b, ok2 := evalRational(n.list[2])
			if !ok1 || !ok2 || b.Sign() == 0 {
				return nil, false
			}
			return a.Quo(a, b), true
		}
	}
	return nil, false
}

// ParseCore reads the output of (get-unsat-core).
func ParseCore(text string) ([]string, error) {
	nodes, err := readAll(text)
	if err != nil {
		return nil, fmt.Errorf("parse unsat core: %w", err)
	}
	if len(nodes) != 1 || !nodes[0].isList {
		return nil, fmt.Errorf("unexpected unsat core output %q", text)
	}
	if nodes[0].head() == "error" {
		return nil, fmt.Errorf("solver error: %s", nodes[0])
	}
	core := make([]string, 0, len(nodes[0].list))
	for _, c := range nodes[0].list {
		core = append(core, c.atom)
	}
	return core, nil
}
