package openmath

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/openfroyo/capplan/pkg/engine"
)

type form int

const (
	formPlain form = iota
	formRoot
	formAbs
)

type operator struct {
	symbol   string
	min, max int
	form     form
}

// operators maps "<content dictionary>#<name>" onto SMT-LIB. A max of -1
// means n-ary; SMT-LIB chains relations and folds - and / to the left.
var operators = map[string]operator{
	"relation1#eq":  {"=", 2, -1, formPlain},
	"relation1#neq": {"distinct", 2, -1, formPlain},
	"relation1#lt":  {"<", 2, -1, formPlain},
	"relation1#gt":  {">", 2, -1, formPlain},
	"relation1#leq": {"<=", 2, -1, formPlain},
	"relation1#geq": {">=", 2, -1, formPlain},

	"arith1#plus":        {"+", 2, -1, formPlain},
	"arith1#times":       {"*", 2, -1, formPlain},
	"arith1#minus":       {"-", 2, -1, formPlain},
	"arith1#divide":      {"/", 2, -1, formPlain},
	"arith1#unary_minus": {"-", 1, 1, formPlain},
	"arith1#power":       {"^", 2, 2, formPlain},
	"arith1#root":        {"^", 1, 2, formRoot},
	"arith1#abs":         {"", 1, 1, formAbs},

	"transc1#sin": {"sin", 1, 1, formPlain},
	"transc1#cos": {"cos", 1, 1, formPlain},
	"transc1#tan": {"tan", 1, 1, formPlain},

	"logic1#and":     {"and", 2, -1, formPlain},
	"logic1#or":      {"or", 2, -1, formPlain},
	"logic1#not":     {"not", 1, 1, formPlain},
	"logic1#implies": {"=>", 2, 2, formPlain},
}

// lookupOperator accepts full OpenMath symbol IRIs such as
// http://www.openmath.org/cd/arith1#plus as well as the short "arith1#plus".
func lookupOperator(iri string) (operator, bool) {
	key := iri
	if i := strings.LastIndex(iri, "/"); i >= 0 {
		key = iri[i+1:]
	}
	op, ok := operators[key]
	return op, ok
}

// Flatten renders the expression rooted at root as a fully parenthesised
// SMT-LIB term. Variable leaves become the occurrence of their property at
// (happening, event).
func Flatten(f *Forest, root string, happening, event int) (string, error) {
	if _, ok := f.apps[root]; !ok {
		return "", engine.NewMalformedExpressionError(root, "unknown application")
	}
	if parents := f.parents[root]; len(parents) > 0 {
		return "", engine.NewMalformedExpressionError(root, "not a root, used by "+parents[0])
	}
	fl := &flattener{forest: f, root: root, happening: happening, event: event, onPath: make(map[string]bool)}
	var b strings.Builder
	if err := fl.write(&b, root); err != nil {
		return "", err
	}
	return b.String(), nil
}

type flattener struct {
	forest    *Forest
	root      string
	happening int
	event     int
	onPath    map[string]bool
}

func (fl *flattener) fail(format string, args ...interface{}) error {
	return engine.NewMalformedExpressionError(fl.root, fmt.Sprintf(format, args...))
}

func (fl *flattener) write(b *strings.Builder, iri string) error {
	app, ok := fl.forest.apps[iri]
	if !ok {
		return fl.fail("unknown application %s", iri)
	}
	if app.malformed != "" {
		return fl.fail("%s: %s", iri, app.malformed)
	}
	if fl.onPath[iri] {
		return fl.fail("cycle through %s", iri)
	}
	fl.onPath[iri] = true
	defer delete(fl.onPath, iri)

	op, ok := lookupOperator(app.Operator)
	if !ok {
		return fl.fail("unknown operator %s", app.Operator)
	}
	n := len(app.Args)
	if n < op.min || (op.max >= 0 && n > op.max) {
		return fl.fail("operator %s takes %s arguments, got %d", engine.LocalName(app.Operator), arityText(op), n)
	}

	args := make([]string, n)
	for i, a := range app.Args {
		var ab strings.Builder
		if err := fl.arg(&ab, a); err != nil {
			return err
		}
		args[i] = ab.String()
	}

	switch op.form {
	case formRoot:
		if n == 1 {
			fmt.Fprintf(b, "(^ %s 0.5)", args[0])
		} else {
			fmt.Fprintf(b, "(^ %s (/ 1.0 %s))", args[0], args[1])
		}
	case formAbs:
		fmt.Fprintf(b, "(ite (>= %s 0) %s (- %s))", args[0], args[0], args[0])
	default:
		b.WriteByte('(')
		b.WriteString(op.symbol)
		for _, a := range args {
			b.WriteByte(' ')
			b.WriteString(a)
		}
		b.WriteByte(')')
	}
	return nil
}

func (fl *flattener) arg(b *strings.Builder, a Argument) error {
	switch a.Kind {
	case ArgApplication:
		return fl.write(b, a.Value)
	case ArgVariable:
		fmt.Fprintf(b, "|%s_%d_%d|", a.Value, fl.happening, fl.event)
		return nil
	case ArgLiteral:
		lit, err := literal(a.Value)
		if err != nil {
			return fl.fail("%v", err)
		}
		b.WriteString(lit)
		return nil
	}
	return fl.fail("argument %d has unknown kind %q", a.Position, a.Kind)
}

func arityText(op operator) string {
	switch {
	case op.max < 0:
		return fmt.Sprintf("at least %d", op.min)
	case op.min == op.max:
		return fmt.Sprintf("%d", op.min)
	}
	return fmt.Sprintf("%d to %d", op.min, op.max)
}

// literal renders a lexical value as an SMT-LIB constant.
func literal(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "true", "false":
		return s, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", fmt.Errorf("invalid literal %q", s)
	}
	neg := r.Sign() < 0
	r.Abs(r)

	var out string
	switch {
	case r.IsInt():
		out = r.Num().String()
		if strings.ContainsAny(s, ".eE") {
			out += ".0"
		}
	default:
		out = fmt.Sprintf("(/ %s.0 %s.0)", r.Num(), r.Denom())
	}
	if neg {
		out = "(- " + out + ")"
	}
	return out, nil
}
