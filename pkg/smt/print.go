package smt

import (
	"math/big"
	"strings"
)

// String renders the term as SMT-LIB2 text.
func (e *Expr) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Expr) write(b *strings.Builder) {
	switch e.kind {
	case KindConst:
		b.WriteString(Symbol(e.name))
	case KindBool:
		if e.val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindNumber:
		writeNumber(b, e.num, e.sort)
	case KindApp:
		b.WriteByte('(')
		b.WriteString(e.name)
		for _, a := range e.args {
			b.WriteByte(' ')
			a.write(b)
		}
		b.WriteByte(')')
	}
}

func writeNumber(b *strings.Builder, r *big.Rat, sort Sort) {
	if r.Sign() < 0 {
		b.WriteString("(- ")
		writeNumber(b, new(big.Rat).Neg(r), sort)
		b.WriteByte(')')
		return
	}
	if r.IsInt() {
		b.WriteString(r.Num().String())
		if sort == SortReal {
			b.WriteString(".0")
		}
		return
	}
	b.WriteString("(/ ")
	b.WriteString(r.Num().String())
	b.WriteString(".0 ")
	b.WriteString(r.Denom().String())
	b.WriteString(".0)")
}

// Symbol renders a name as an SMT-LIB symbol, quoting it with bars unless it
// is a simple symbol.
func Symbol(name string) string {
	if isSimpleSymbol(name) {
		return name
	}
	return "|" + name + "|"
}

// SanitizeLabel makes a string usable inside a quoted symbol.
func SanitizeLabel(s string) string {
	return strings.NewReplacer("|", "/", `\`, "/").Replace(s)
}

func isSimpleSymbol(s string) bool {
	if s == "" || reserved[s] {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("~!@$%^&*_-+=<>.?/", c) >= 0:
		default:
			return false
		}
	}
	return true
}

var reserved = map[string]bool{
	"true": true, "false": true, "not": true, "and": true, "or": true, "=>": true,
	"ite": true, "let": true, "forall": true, "exists": true, "assert": true,
	"_": true, "!": true, "as": true, "par": true, "NUMERAL": true, "DECIMAL": true,
}
