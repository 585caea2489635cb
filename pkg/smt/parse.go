package smt

import (
	"fmt"
	"math/big"
)

// lookupFunc resolves a declared constant to its sort.
type lookupFunc func(name string) (Sort, bool)

type termParser struct {
	lookup lookupFunc
}

// term converts a node into a well-sorted expression. The second result is
// the :named annotation of a top-level (! t :named n) term.
func (p *termParser) term(n *node) (*Expr, string, error) {
	if !n.isList {
		e, err := p.atom(n)
		return e, "", err
	}
	if n.head() == "!" {
		if len(n.list) < 2 {
			return nil, "", fmt.Errorf("empty annotation at offset %d", n.offset)
		}
		e, _, err := p.term(n.list[1])
		if err != nil {
			return nil, "", err
		}
		var name string
		for i := 2; i+1 < len(n.list); i += 2 {
			if n.list[i].atom == ":named" {
				name = n.list[i+1].atom
			}
		}
		return e, name, nil
	}
	e, err := p.app(n)
	return e, "", err
}

func (p *termParser) atom(n *node) (*Expr, error) {
	if n.str {
		return nil, fmt.Errorf("string literals are not supported (offset %d)", n.offset)
	}
	if !n.quoted {
		switch n.atom {
		case "true":
			return True, nil
		case "false":
			return False, nil
		}
		if isNumeral(n.atom) {
			r, _ := new(big.Rat).SetString(n.atom)
			return Number(r, SortInt), nil
		}
		if isDecimal(n.atom) {
			r, _ := new(big.Rat).SetString(n.atom)
			return Number(r, SortReal), nil
		}
	}
	sort, ok := p.lookup(n.atom)
	if !ok {
		return nil, fmt.Errorf("undeclared symbol %s", Symbol(n.atom))
	}
	return Const(n.atom, sort), nil
}

func (p *termParser) app(n *node) (*Expr, error) {
	op := n.head()
	if op == "" {
		return nil, fmt.Errorf("expected operator at offset %d", n.offset)
	}
	args := make([]*Expr, 0, len(n.list)-1)
	for _, c := range n.list[1:] {
		a, named, err := p.term(c)
		if err != nil {
			return nil, err
		}
		if named != "" {
			return nil, fmt.Errorf("nested :named annotation %s", named)
		}
		args = append(args, a)
	}

	switch op {
	case "not":
		if err := arity(op, args, 1, 1); err != nil {
			return nil, err
		}
		if err := allSort(op, args, SortBool); err != nil {
			return nil, err
		}
		return app(op, SortBool, args...), nil
	case "and", "or", "xor":
		if err := arity(op, args, 1, -1); err != nil {
			return nil, err
		}
		if err := allSort(op, args, SortBool); err != nil {
			return nil, err
		}
		return app(op, SortBool, args...), nil
	case "=>":
		if err := arity(op, args, 2, -1); err != nil {
			return nil, err
		}
		if err := allSort(op, args, SortBool); err != nil {
			return nil, err
		}
		return app(op, SortBool, args...), nil
	case "=", "distinct":
		if err := arity(op, args, 2, -1); err != nil {
			return nil, err
		}
		if err := sameFamily(op, args); err != nil {
			return nil, err
		}
		return app(op, SortBool, args...), nil
	case "<", "<=", ">", ">=":
		if err := arity(op, args, 2, -1); err != nil {
			return nil, err
		}
		if err := allNumeric(op, args); err != nil {
			return nil, err
		}
		return app(op, SortBool, args...), nil
	case "+", "*", "-":
		if err := arity(op, args, 1, -1); err != nil {
			return nil, err
		}
		if err := allNumeric(op, args); err != nil {
			return nil, err
		}
		return Arith(op, args...), nil
	case "/":
		if err := arity(op, args, 2, -1); err != nil {
			return nil, err
		}
		if err := allNumeric(op, args); err != nil {
			return nil, err
		}
		return Arith(op, args...), nil
	case "^":
		if err := arity(op, args, 2, 2); err != nil {
			return nil, err
		}
		if err := allNumeric(op, args); err != nil {
			return nil, err
		}
		return Arith(op, args...), nil
	case "abs", "sin", "cos", "tan", "to_real":
		if err := arity(op, args, 1, 1); err != nil {
			return nil, err
		}
		if err := allNumeric(op, args); err != nil {
			return nil, err
		}
		return Arith(op, args...), nil
	case "ite":
		if err := arity(op, args, 3, 3); err != nil {
			return nil, err
		}
		if args[0].sort != SortBool {
			return nil, fmt.Errorf("ite condition must be Bool, got %s", args[0].sort)
		}
		if err := sameFamily(op, args[1:]); err != nil {
			return nil, err
		}
		sort := args[1].sort
		if sort != args[2].sort && sort.Numeric() {
			sort = SortReal
		}
		return app(op, sort, args...), nil
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

func arity(op string, args []*Expr, lo, hi int) error {
	if len(args) < lo || (hi >= 0 && len(args) > hi) {
		return fmt.Errorf("operator %s: wrong number of arguments (%d)", op, len(args))
	}
	return nil
}

func allSort(op string, args []*Expr, s Sort) error {
	for _, a := range args {
		if a.sort != s {
			return fmt.Errorf("operator %s expects %s arguments, got %s in %s", op, s, a.sort, a)
		}
	}
	return nil
}

func allNumeric(op string, args []*Expr) error {
	for _, a := range args {
		if !a.sort.Numeric() {
			return fmt.Errorf("operator %s expects numeric arguments, got %s in %s", op, a.sort, a)
		}
	}
	return nil
}

func sameFamily(op string, args []*Expr) error {
	numeric := args[0].sort.Numeric()
	for _, a := range args[1:] {
		if a.sort.Numeric() != numeric {
			return fmt.Errorf("operator %s mixes %s and %s", op, args[0].sort, a.sort)
		}
	}
	return nil
}

func isNumeral(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isDecimal(s string) bool {
	dot := -1
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '.' && dot < 0:
			dot = i
		case s[i] < '0' || s[i] > '9':
			return false
		}
	}
	return dot > 0 && dot < len(s)-1
}
