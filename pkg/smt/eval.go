package smt

import (
	"fmt"
	"math/big"
)

// Eval computes the value of e under m. Transcendental functions and
// non-integer powers are not evaluated.
func (e *Expr) Eval(m Model) (Value, error) {
	switch e.kind {
	case KindBool:
		return BoolValue(e.val), nil
	case KindNumber:
		return NumberValue(e.num, e.sort), nil
	case KindConst:
		v, ok := m[e.name]
		if !ok {
			return Value{}, fmt.Errorf("no value for %s", Symbol(e.name))
		}
		if v.Sort != SortBool && v.Num == nil {
			return Value{}, fmt.Errorf("value of %s is not rational: %s", Symbol(e.name), v.Text)
		}
		return v, nil
	}

	args := make([]Value, len(e.args))
	for i, a := range e.args {
		v, err := a.Eval(m)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}

	switch e.name {
	case "not":
		return BoolValue(!args[0].Bool), nil
	case "and":
		for _, a := range args {
			if !a.Bool {
				return BoolValue(false), nil
			}
		}
		return BoolValue(true), nil
	case "or":
		for _, a := range args {
			if a.Bool {
				return BoolValue(true), nil
			}
		}
		return BoolValue(false), nil
	case "xor":
		r := false
		for _, a := range args {
			r = r != a.Bool
		}
		return BoolValue(r), nil
	case "=>":
		// right associative: a => (b => c)
		r := args[len(args)-1].Bool
		for i := len(args) - 2; i >= 0; i-- {
			r = !args[i].Bool || r
		}
		return BoolValue(r), nil
	case "=":
		for i := 1; i < len(args); i++ {
			if !sameValue(args[0], args[i]) {
				return BoolValue(false), nil
			}
		}
		return BoolValue(true), nil
	case "distinct":
		for i := range args {
			for j := i + 1; j < len(args); j++ {
				if sameValue(args[i], args[j]) {
					return BoolValue(false), nil
				}
			}
		}
		return BoolValue(true), nil
	case "<", "<=", ">", ">=":
		for i := 1; i < len(args); i++ {
			c := args[i-1].Num.Cmp(args[i].Num)
			ok := (e.name == "<" && c < 0) || (e.name == "<=" && c <= 0) ||
				(e.name == ">" && c > 0) || (e.name == ">=" && c >= 0)
			if !ok {
				return BoolValue(false), nil
			}
		}
		return BoolValue(true), nil
	case "ite":
		if args[0].Bool {
			return args[1], nil
		}
		return args[2], nil
	case "+":
		r := new(big.Rat)
		for _, a := range args {
			r.Add(r, a.Num)
		}
		return NumberValue(r, e.sort), nil
	case "*":
		r := big.NewRat(1, 1)
		for _, a := range args {
			r.Mul(r, a.Num)
		}
		return NumberValue(r, e.sort), nil
	case "-":
		r := new(big.Rat).Set(args[0].Num)
		if len(args) == 1 {
			return NumberValue(r.Neg(r), e.sort), nil
		}
		for _, a := range args[1:] {
			r.Sub(r, a.Num)
		}
		return NumberValue(r, e.sort), nil
	case "/":
		r := new(big.Rat).Set(args[0].Num)
		for _, a := range args[1:] {
			if a.Num.Sign() == 0 {
				return Value{}, fmt.Errorf("division by zero in %s", e)
			}
			r.Quo(r, a.Num)
		}
		return NumberValue(r, e.sort), nil
	case "abs":
		return NumberValue(new(big.Rat).Abs(args[0].Num), e.sort), nil
	case "to_real":
		return NumberValue(args[0].Num, SortReal), nil
	case "^":
		if !args[1].Num.IsInt() || !args[1].Num.Num().IsInt64() {
			return Value{}, fmt.Errorf("cannot evaluate non-integer power %s", e)
		}
		return NumberValue(ratPow(args[0].Num, args[1].Num.Num().Int64()), e.sort), nil
	}
	return Value{}, fmt.Errorf("cannot evaluate %s", e.name)
}

func sameValue(a, b Value) bool {
	if a.Sort == SortBool || b.Sort == SortBool {
		return a.Sort == b.Sort && a.Bool == b.Bool
	}
	return a.Num.Cmp(b.Num) == 0
}

func ratPow(x *big.Rat, n int64) *big.Rat {
	if n < 0 {
		return new(big.Rat).Inv(ratPow(x, -n))
	}
	r := big.NewRat(1, 1)
	for i := int64(0); i < n; i++ {
		r.Mul(r, x)
	}
	return r
}
