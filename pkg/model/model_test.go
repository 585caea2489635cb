package model

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/facts"
	"github.com/openfroyo/capplan/pkg/smt"
)

func loadFixture(t *testing.T, name, required string) *Facts {
	t.Helper()
	store, err := facts.OpenMangleFiles(zerolog.Nop(), "../../examples/models/"+name)
	if err != nil {
		t.Fatalf("Failed to open fixture %s: %v", name, err)
	}
	f, err := Fetch(context.Background(), store, required)
	if err != nil {
		t.Fatalf("Failed to fetch facts: %v", err)
	}
	return f
}

func declare(t *testing.T, f *Facts, happenings int) (*PropertyRegistry, *CapabilityRegistry) {
	t.Helper()
	props, err := DeclareProperties(f, happenings, 2)
	if err != nil {
		t.Fatalf("Failed to declare properties: %v", err)
	}
	caps, err := DeclareCapabilities(f, props, happenings)
	if err != nil {
		t.Fatalf("Failed to declare capabilities: %v", err)
	}
	return props, caps
}

func TestFetch_DefaultsToOnlyRequired(t *testing.T) {
	f := loadFixture(t, "move_grab.mg", "")
	if f.Required != "urn:robot:task" {
		t.Fatalf("Expected required capability urn:robot:task, got %q", f.Required)
	}
}

func TestFetch_UnknownRequired(t *testing.T) {
	store, err := facts.OpenMangleFiles(zerolog.Nop(), "../../examples/models/door.mg")
	if err != nil {
		t.Fatalf("Failed to open fixture: %v", err)
	}
	_, err = Fetch(context.Background(), store, "urn:door:nope")
	if !engine.IsNotFound(err) {
		t.Fatalf("Expected NotDeclared error, got %v", err)
	}
}

func TestFetch_NoRequired(t *testing.T) {
	store, err := facts.NewMangleStore(zerolog.Nop(), facts.Source{Name: "m", Text: `
capability("urn:x:c", "provided").
`})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	_, err = Fetch(context.Background(), store, "")
	if !engine.IsPermanent(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestDeclareProperties_Variables(t *testing.T) {
	f := loadFixture(t, "move_grab.mg", "")
	props, _ := declare(t, f, 3)

	o, err := props.Occurrence("urn:robot:pos_in", 2, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if o.Name != "urn:robot:pos_in_2_1" {
		t.Fatalf("Expected urn:robot:pos_in_2_1, got %s", o.Name)
	}

	req, err := props.Occurrence("urn:robot:req_held_out", 2, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.Name != "urn:robot:req_held_out_0_0" {
		t.Fatalf("Expected required property to have a single variable, got %s", req.Name)
	}

	back, ok := props.ByName("urn:robot:pos_in_2_1")
	if !ok || back.Happening != 2 || back.Event != 1 || back.IRI != "urn:robot:pos_in" {
		t.Fatalf("Expected reverse lookup of pos_in (2,1), got %+v", back)
	}

	held, _ := props.Get("urn:robot:held_in")
	if held.Sort() != "Bool" {
		t.Fatalf("Expected Bool sort for held_in, got %s", held.Sort())
	}

	// 6 provided properties x 3 x 2 plus 4 required ones.
	if got := len(props.Declarations()); got != 6*3*2+4 {
		t.Fatalf("Expected %d declarations, got %d", 6*3*2+4, got)
	}
}

func TestDeclareProperties_Lookups(t *testing.T) {
	f := loadFixture(t, "move_grab.mg", "")
	props, _ := declare(t, f, 2)

	if _, err := props.Var("urn:robot:missing", 0, 0); !engine.IsNotFound(err) {
		t.Fatalf("Expected NotDeclared, got %v", err)
	}
	if _, err := props.Var("urn:robot:pos_in", 2, 0); !engine.IsOutOfRange(err) {
		t.Fatalf("Expected IndexOutOfRange, got %v", err)
	}
	if _, err := props.Var("urn:robot:pos_in", 0, 2); !engine.IsOutOfRange(err) {
		t.Fatalf("Expected IndexOutOfRange, got %v", err)
	}
}

func TestDeclareProperties_InvalidHorizon(t *testing.T) {
	f := loadFixture(t, "door.mg", "")
	if _, err := DeclareProperties(f, 0, 2); !engine.IsPermanent(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
}

func TestDeclareProperties_UnsupportedLiteral(t *testing.T) {
	store, err := facts.NewMangleStore(zerolog.Nop(), facts.Source{Name: "m", Text: `
capability("urn:x:c", "provided").
capability("urn:x:r", "required").
io("urn:x:c", "Input", "urn:x:s", "urn:x:State").
io("urn:x:r", "Input", "urn:x:rs", "urn:x:State").
characterizes("urn:x:s", "urn:x:flag").
characterizes("urn:x:rs", "urn:x:req").
data_element("urn:x:flag", "urn:td:flag", "http://www.w3id.org/hsu-aut/DINEN61360#Boolean").
data_element("urn:x:req", "urn:td:flag", "http://www.w3id.org/hsu-aut/DINEN61360#Boolean").
instance("urn:x:flag", "Requirement", "<", "true").
`})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	f, err := Fetch(context.Background(), store, "")
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	_, err = DeclareProperties(f, 1, 2)
	if !engine.IsUnsupported(err) {
		t.Fatalf("Expected UnsupportedRelation, got %v", err)
	}
}

func TestDeclareCapabilities_Effects(t *testing.T) {
	f := loadFixture(t, "move_grab.mg", "")
	props, caps := declare(t, f, 2)

	tests := []struct {
		cap    string
		prop   string
		effect engine.Effect
	}{
		{"urn:robot:move_to", "urn:robot:pos_out", engine.EffectChangeByExpression},
		{"urn:robot:grab", "urn:robot:held_out", engine.EffectSetTrue},
	}
	for _, tt := range tests {
		c, err := caps.Get(tt.cap)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		p, _ := props.Get(tt.prop)
		out, ok := c.Effect(p.ID)
		if !ok {
			t.Fatalf("Expected %s to be an output of %s", tt.prop, tt.cap)
		}
		if out.Effect != tt.effect {
			t.Errorf("Expected %s on %s, got %s", tt.effect, tt.prop, out.Effect)
		}
		if out.Effect == engine.EffectChangeByExpression && out.Constraint != "urn:robot:move_to/reach" {
			t.Errorf("Expected reach to drive %s, got %q", tt.prop, out.Constraint)
		}
	}
}

func TestDeclareCapabilities_ConstantEffects(t *testing.T) {
	tests := []struct {
		fixture string
		cap     string
		prop    string
		effect  engine.Effect
		value   string
	}{
		{"single_move.mg", "urn:single:move", "urn:single:pos_out", engine.EffectNumericConstant, "3.0"},
		{"flag.mg", "urn:flag:lower", "urn:flag:flag_out", engine.EffectSetFalse, "false"},
		{"door.mg", "urn:door:unlock", "urn:door:unlocked_out", engine.EffectSetTrue, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			f := loadFixture(t, tt.fixture, "")
			props, caps := declare(t, f, 1)
			c, err := caps.Get(tt.cap)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			p, _ := props.Get(tt.prop)
			out, _ := c.Effect(p.ID)
			if out.Effect != tt.effect {
				t.Fatalf("Expected %s, got %s", tt.effect, out.Effect)
			}
			if out.Value == nil || out.Value.String() != tt.value {
				t.Fatalf("Expected assured value %s, got %v", tt.value, out.Value)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	described := func(literal string) *Property {
		return &Property{Descriptions: []Description{{
			Goal:    engine.GoalAssurance,
			Literal: literal,
			Value:   smt.Bool(literal == "true"),
		}}}
	}
	bare := &Property{}

	tests := []struct {
		name         string
		in, out      *Property
		classChanges bool
		bound        bool
		want         engine.Effect
	}{
		{"no output value", bare, bare, false, false, engine.EffectNone},
		{"same literal", described("true"), described("true"), false, false, engine.EffectNoChange},
		{"sets true", described("false"), described("true"), false, false, engine.EffectSetTrue},
		{"sets false", bare, described("false"), false, false, engine.EffectSetFalse},
		{"bound with goal", described("true"), bare, false, true, engine.EffectNoChange},
		{"bound free parameter", bare, bare, false, true, engine.EffectChangeByExpression},
		{"bound class change", described("true"), bare, true, true, engine.EffectChangeByExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := classify(tt.in, tt.out, tt.classChanges, tt.bound); got != tt.want {
				t.Fatalf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDeclareCapabilities_Invocations(t *testing.T) {
	f := loadFixture(t, "move_grab.mg", "")
	_, caps := declare(t, f, 2)

	if caps.Len() != 2 {
		t.Fatalf("Expected 2 provided capabilities, got %d", caps.Len())
	}
	if _, err := caps.Get("urn:robot:task"); !engine.IsNotFound(err) {
		t.Fatalf("Expected the required capability to have no invocations, got %v", err)
	}
	if got := caps.Required(); got.IRI != "urn:robot:task" || len(got.Inputs) != 2 || len(got.Outputs) != 2 {
		t.Fatalf("Unexpected required capability: %+v", got)
	}

	inv, err := caps.Invocation("urn:robot:grab", 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if inv.Name != "urn:robot:grab_1" {
		t.Fatalf("Expected urn:robot:grab_1, got %s", inv.Name)
	}
	if back, ok := caps.ByName("urn:robot:grab_1"); !ok || back.Happening != 1 {
		t.Fatalf("Expected reverse lookup of grab_1, got %+v", back)
	}
	if _, err := caps.Invoked("urn:robot:grab", 2); !engine.IsOutOfRange(err) {
		t.Fatalf("Expected IndexOutOfRange, got %v", err)
	}

	move, _ := caps.Get("urn:robot:move_to")
	want := []Constraint{{IRI: "urn:robot:move_to/reach", Side: engine.RelationOutput}}
	if diff := cmp.Diff(want, move.Constraints); diff != "" {
		t.Fatalf("Constraints mismatch (-want +got):\n%s", diff)
	}
}

func TestDeclareResources(t *testing.T) {
	f := loadFixture(t, "door.mg", "")
	_, caps := declare(t, f, 2)
	res, err := DeclareResources(f, caps)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r, err := res.Get("urn:door:controller")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(r.Capabilities) != 2 {
		t.Fatalf("Expected 2 capabilities on the controller, got %d", len(r.Capabilities))
	}
	if _, err := res.Get("urn:door:other"); !engine.IsNotFound(err) {
		t.Fatalf("Expected NotDeclared, got %v", err)
	}
}

func TestConditions(t *testing.T) {
	f := loadFixture(t, "move_grab.mg", "")
	props, _ := declare(t, f, 2)

	type cond struct{ Cap, Prop, Cmp, Lit string }
	flatten := func(cs []Condition) []cond {
		out := make([]cond, len(cs))
		for i, c := range cs {
			out[i] = cond{c.Capability, c.Property, string(c.Comparator), c.Literal}
		}
		return out
	}

	wantPre := []cond{
		{"urn:robot:grab", "urn:robot:grab_pos_in", "=", "3"},
		{"urn:robot:move_to", "urn:robot:pos_in", "<=", "5"},
	}
	if diff := cmp.Diff(wantPre, flatten(props.Preconditions())); diff != "" {
		t.Errorf("Preconditions mismatch (-want +got):\n%s", diff)
	}

	wantInit := []cond{
		{"", "urn:robot:req_held_in", "=", "false"},
		{"", "urn:robot:req_pos_in", "=", "5"},
	}
	if diff := cmp.Diff(wantInit, flatten(props.Inits())); diff != "" {
		t.Errorf("Inits mismatch (-want +got):\n%s", diff)
	}

	wantGoal := []cond{
		{"", "urn:robot:req_held_out", "=", "true"},
		{"", "urn:robot:req_pos_out", "=", "3"},
	}
	if diff := cmp.Diff(wantGoal, flatten(props.Goals())); diff != "" {
		t.Errorf("Goals mismatch (-want +got):\n%s", diff)
	}
}

func TestEquivalenceSource(t *testing.T) {
	f := loadFixture(t, "move_grab.mg", "")
	src := f.EquivalenceSource()

	var required int
	for _, c := range src.Candidates {
		if c.Required {
			required++
		}
	}
	// target is Information, not Product, so it is no candidate.
	if len(src.Candidates) != 9 || required != 4 {
		t.Fatalf("Expected 9 candidates with 4 required, got %d with %d", len(src.Candidates), required)
	}
	if len(src.Equalities) != 2 {
		t.Fatalf("Expected both orientations of the reach equality, got %d", len(src.Equalities))
	}
}
