package openmath

import (
	"strconv"
	"testing"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/facts"
)

const cd = "http://www.openmath.org/cd/"

func row(app, op string, pos int, kind ArgKind, value string) facts.Row {
	return facts.Row{
		"App":     {Kind: facts.TermIRI, Value: app},
		"Op":      {Kind: facts.TermIRI, Value: op},
		"Pos":     {Kind: facts.TermNumber, Value: strconv.Itoa(pos)},
		"Arg":     {Kind: facts.TermIRI, Value: app + "/" + strconv.Itoa(pos)},
		"ArgKind": {Kind: facts.TermString, Value: string(kind)},
		"Value":   {Kind: facts.TermString, Value: value},
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		rows []facts.Row
		root string
		want string
	}{
		{
			name: "nested arithmetic",
			rows: []facts.Row{
				row("c", cd+"relation1#eq", 0, ArgVariable, "urn:out"),
				row("c", cd+"relation1#eq", 1, ArgApplication, "p"),
				row("p", cd+"arith1#plus", 0, ArgVariable, "urn:in"),
				row("p", cd+"arith1#plus", 1, ArgLiteral, "2"),
			},
			root: "c",
			want: "(= |urn:out_1_1| (+ |urn:in_1_1| 2))",
		},
		{
			name: "argument order follows positions",
			rows: []facts.Row{
				row("c", cd+"arith1#minus", 2, ArgLiteral, "1"),
				row("c", cd+"arith1#minus", 0, ArgVariable, "urn:a"),
				row("c", cd+"arith1#minus", 1, ArgVariable, "urn:b"),
			},
			root: "c",
			want: "(- |urn:a_1_1| |urn:b_1_1| 1)",
		},
		{
			name: "square root",
			rows: []facts.Row{row("r", cd+"arith1#root", 0, ArgVariable, "urn:x")},
			root: "r",
			want: "(^ |urn:x_1_1| 0.5)",
		},
		{
			name: "nth root",
			rows: []facts.Row{
				row("r", cd+"arith1#root", 0, ArgVariable, "urn:x"),
				row("r", cd+"arith1#root", 1, ArgLiteral, "3"),
			},
			root: "r",
			want: "(^ |urn:x_1_1| (/ 1.0 3))",
		},
		{
			name: "absolute value",
			rows: []facts.Row{row("a", cd+"arith1#abs", 0, ArgVariable, "urn:x")},
			root: "a",
			want: "(ite (>= |urn:x_1_1| 0) |urn:x_1_1| (- |urn:x_1_1|))",
		},
		{
			name: "logic and negative literal",
			rows: []facts.Row{
				row("l", cd+"logic1#implies", 0, ArgVariable, "urn:flag"),
				row("l", cd+"logic1#implies", 1, ArgApplication, "g"),
				row("g", cd+"relation1#geq", 0, ArgVariable, "urn:x"),
				row("g", cd+"relation1#geq", 1, ArgLiteral, "-1.5"),
			},
			root: "l",
			want: "(=> |urn:flag_1_1| (>= |urn:x_1_1| (- (/ 3.0 2.0))))",
		},
		{
			name: "short operator names",
			rows: []facts.Row{
				row("s", "transc1#sin", 0, ArgVariable, "urn:x"),
			},
			root: "s",
			want: "(sin |urn:x_1_1|)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Flatten(Build(tt.rows), tt.root, 1, 1)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFlatten_Malformed(t *testing.T) {
	tests := []struct {
		name string
		rows []facts.Row
		root string
	}{
		{
			name: "unknown root",
			rows: []facts.Row{row("c", cd+"relation1#eq", 0, ArgVariable, "urn:x")},
			root: "missing",
		},
		{
			name: "not a root",
			rows: []facts.Row{
				row("c", cd+"logic1#not", 0, ArgApplication, "d"),
				row("d", cd+"relation1#eq", 0, ArgVariable, "urn:x"),
				row("d", cd+"relation1#eq", 1, ArgLiteral, "1"),
			},
			root: "d",
		},
		{
			name: "conflicting operators",
			rows: []facts.Row{
				row("c", cd+"relation1#eq", 0, ArgVariable, "urn:x"),
				row("c", cd+"relation1#lt", 1, ArgLiteral, "1"),
			},
			root: "c",
		},
		{
			name: "two arguments at one position",
			rows: []facts.Row{
				row("c", cd+"relation1#eq", 0, ArgVariable, "urn:x"),
				row("c", cd+"relation1#eq", 0, ArgVariable, "urn:y"),
				row("c", cd+"relation1#eq", 1, ArgLiteral, "1"),
			},
			root: "c",
		},
		{
			name: "cycle",
			rows: []facts.Row{
				row("c", cd+"logic1#not", 0, ArgApplication, "d"),
				row("d", cd+"logic1#not", 0, ArgApplication, "e"),
				row("e", cd+"logic1#not", 0, ArgApplication, "d"),
			},
			root: "c",
		},
		{
			name: "unknown operator",
			rows: []facts.Row{row("c", cd+"set1#union", 0, ArgVariable, "urn:x")},
			root: "c",
		},
		{
			name: "arity violation",
			rows: []facts.Row{row("c", cd+"relation1#eq", 0, ArgVariable, "urn:x")},
			root: "c",
		},
		{
			name: "bad literal",
			rows: []facts.Row{
				row("c", cd+"relation1#eq", 0, ArgVariable, "urn:x"),
				row("c", cd+"relation1#eq", 1, ArgLiteral, "three"),
			},
			root: "c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Flatten(Build(tt.rows), tt.root, 0, 0)
			if !engine.IsMalformedExpression(err) {
				t.Fatalf("Expected MalformedExpression, got %v", err)
			}
		})
	}
}

func TestFlatten_Pure(t *testing.T) {
	f := Build([]facts.Row{
		row("c", cd+"relation1#lt", 0, ArgVariable, "urn:x"),
		row("c", cd+"relation1#lt", 1, ArgLiteral, "4"),
	})
	a, _ := Flatten(f, "c", 0, 0)
	b, _ := Flatten(f, "c", 2, 1)
	c, _ := Flatten(f, "c", 0, 0)
	if a != c {
		t.Fatalf("Expected identical output for identical input, got %s and %s", a, c)
	}
	if b != "(< |urn:x_2_1| 4)" {
		t.Fatalf("Expected (< |urn:x_2_1| 4), got %s", b)
	}
}

func TestForest_RootsAndVariables(t *testing.T) {
	f := Build([]facts.Row{
		row("c", cd+"relation1#eq", 0, ArgVariable, "urn:out"),
		row("c", cd+"relation1#eq", 1, ArgApplication, "p"),
		row("p", cd+"arith1#plus", 0, ArgVariable, "urn:in"),
		row("p", cd+"arith1#plus", 1, ArgVariable, "urn:out"),
		row("k", cd+"relation1#gt", 0, ArgVariable, "urn:in"),
		row("k", cd+"relation1#gt", 1, ArgLiteral, "0"),
	})
	roots := f.Roots()
	if len(roots) != 2 || roots[0] != "c" || roots[1] != "k" {
		t.Fatalf("Expected roots [c k], got %v", roots)
	}
	if f.IsRoot("p") {
		t.Fatal("Expected nested application not to be a root")
	}
	vars := f.Variables("c")
	if len(vars) != 2 || vars[0] != "urn:in" || vars[1] != "urn:out" {
		t.Fatalf("Expected [urn:in urn:out], got %v", vars)
	}
}
