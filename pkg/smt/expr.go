package smt

import (
	"math/big"
)

// Sort is the SMT-LIB sort of a term.
type Sort string

const (
	SortBool Sort = "Bool"
	SortReal Sort = "Real"
	SortInt  Sort = "Int"
)

// Numeric reports whether the sort is Real or Int.
func (s Sort) Numeric() bool {
	return s == SortReal || s == SortInt
}

// Kind is the shape of an expression node.
type Kind uint8

const (
	KindConst Kind = iota
	KindBool
	KindNumber
	KindApp
)

// Expr is an immutable SMT term. Build it with the constructors in this
// package or by parsing SMT-LIB text against a Problem.
type Expr struct {
	kind Kind
	sort Sort
	name string
	num  *big.Rat
	val  bool
	args []*Expr
}

var (
	// True is the boolean constant true.
	True = &Expr{kind: KindBool, sort: SortBool, val: true}
	// False is the boolean constant false.
	False = &Expr{kind: KindBool, sort: SortBool}
)

// Kind returns the node shape.
func (e *Expr) Kind() Kind { return e.kind }

// Sort returns the sort of the term.
func (e *Expr) Sort() Sort { return e.sort }

// Name returns the constant name for KindConst and the operator for KindApp.
func (e *Expr) Name() string { return e.name }

// Args returns the operands of an application.
func (e *Expr) Args() []*Expr { return e.args }

// Rat returns the value of a numeric literal.
func (e *Expr) Rat() *big.Rat { return new(big.Rat).Set(e.num) }

// BoolValue returns the value of a boolean literal.
func (e *Expr) BoolValue() bool { return e.val }

// Const references a declared constant.
func Const(name string, sort Sort) *Expr {
	return &Expr{kind: KindConst, sort: sort, name: name}
}

// Bool returns the literal for v.
func Bool(v bool) *Expr {
	if v {
		return True
	}
	return False
}

// Number returns a numeric literal of the given sort.
func Number(r *big.Rat, sort Sort) *Expr {
	return &Expr{kind: KindNumber, sort: sort, num: new(big.Rat).Set(r)}
}

// Not negates a boolean term.
func Not(e *Expr) *Expr {
	if e.kind == KindBool {
		return Bool(!e.val)
	}
	return app("not", SortBool, e)
}

// And is the conjunction of terms. An empty conjunction is true.
func And(es ...*Expr) *Expr {
	switch len(es) {
	case 0:
		return True
	case 1:
		return es[0]
	}
	return app("and", SortBool, es...)
}

// Or is the disjunction of terms. An empty disjunction is false.
func Or(es ...*Expr) *Expr {
	switch len(es) {
	case 0:
		return False
	case 1:
		return es[0]
	}
	return app("or", SortBool, es...)
}

// Implies is material implication.
func Implies(a, b *Expr) *Expr {
	return app("=>", SortBool, a, b)
}

// Eq is equality of two terms of the same sort family.
func Eq(a, b *Expr) *Expr {
	return app("=", SortBool, a, b)
}

// Compare applies a comparison operator ("<", "<=", "=", "distinct", ">=", ">").
func Compare(op string, a, b *Expr) *Expr {
	return app(op, SortBool, a, b)
}

// Ite is if-then-else.
func Ite(c, t, f *Expr) *Expr {
	return app("ite", t.sort, c, t, f)
}

// Arith applies an arithmetic operator. The result is Int only when every
// operand is Int and the operator keeps integers closed.
func Arith(op string, args ...*Expr) *Expr {
	return app(op, arithSort(op, args), args...)
}

func arithSort(op string, args []*Expr) Sort {
	switch op {
	case "/", "^", "sin", "cos", "tan", "to_real":
		return SortReal
	}
	for _, a := range args {
		if a.sort != SortInt {
			return SortReal
		}
	}
	return SortInt
}

func app(op string, sort Sort, args ...*Expr) *Expr {
	return &Expr{kind: KindApp, sort: sort, name: op, args: args}
}

// Vars returns the names of the constants referenced by e, in first-use order.
func (e *Expr) Vars() []string {
	var out []string
	seen := map[string]bool{}
	var walk func(*Expr)
	walk = func(x *Expr) {
		if x.kind == KindConst {
			if !seen[x.name] {
				seen[x.name] = true
				out = append(out, x.name)
			}
			return
		}
		for _, a := range x.args {
			walk(a)
		}
	}
	walk(e)
	return out
}

// IsBoolean reports whether the term only uses boolean constants and connectives.
func (e *Expr) IsBoolean() bool {
	switch e.kind {
	case KindBool:
		return true
	case KindConst:
		return e.sort == SortBool
	case KindNumber:
		return false
	}
	switch e.name {
	case "not", "and", "or", "=>", "xor", "=", "distinct", "ite":
	default:
		return false
	}
	for _, a := range e.args {
		if !a.IsBoolean() {
			return false
		}
	}
	return true
}
