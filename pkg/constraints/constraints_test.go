package constraints

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/equivalence"
	"github.com/openfroyo/capplan/pkg/facts"
	"github.com/openfroyo/capplan/pkg/model"
	"github.com/openfroyo/capplan/pkg/smt"
)

func newContext(t *testing.T, store facts.Store, happenings int) *Context {
	t.Helper()
	f, err := model.Fetch(context.Background(), store, "")
	if err != nil {
		t.Fatalf("Failed to fetch facts: %v", err)
	}
	session := equivalence.NewSession(zerolog.Nop(), f.EquivalenceSource())
	ctx, err := NewContext(f, session, nil, happenings)
	if err != nil {
		t.Fatalf("Failed to create context: %v", err)
	}
	return ctx
}

func fixture(t *testing.T, name string, happenings int) *Context {
	t.Helper()
	store, err := facts.OpenMangleFiles(zerolog.Nop(), "../../examples/models/"+name)
	if err != nil {
		t.Fatalf("Failed to open fixture %s: %v", name, err)
	}
	return newContext(t, store, happenings)
}

func inline(t *testing.T, text string, happenings int) *Context {
	t.Helper()
	store, err := facts.NewMangleStore(zerolog.Nop(), facts.Source{Name: "inline", Text: text})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return newContext(t, store, happenings)
}

// assertions indexes generator output by label, rendered as SMT-LIB.
func assertions(t *testing.T, ctx *Context, g Generator) map[string]string {
	t.Helper()
	p, err := Assemble(ctx, []Generator{g}, nil)
	if err != nil {
		t.Fatalf("Failed to assemble %s: %v", g.Name(), err)
	}
	out := make(map[string]string)
	for _, a := range p.Assertions() {
		out[a.Label] = a.Expr.String()
	}
	return out
}

func expectAssertion(t *testing.T, got map[string]string, label, want string) {
	t.Helper()
	text, ok := got[label]
	if !ok {
		labels := make([]string, 0, len(got))
		for l := range got {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		t.Fatalf("Expected assertion %q, got labels %v", label, labels)
	}
	if text != want {
		t.Fatalf("Assertion %q: expected %s, got %s", label, want, text)
	}
}

func TestAssemble_Declarations(t *testing.T) {
	ctx := fixture(t, "move_grab.mg", 2)
	p, err := Assemble(ctx, Default(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// 6 provided properties x 2 happenings x 2 events, 4 required
	// properties and 2 capabilities x 2 happenings.
	if got := len(p.Declarations()); got != 24+4+4 {
		t.Fatalf("Expected 32 declarations, got %d", got)
	}
	if got := len(p.Objective()); got != 4 {
		t.Fatalf("Expected the objective to count 4 invocations, got %d", got)
	}
}

func TestAssemble_TrackedLabels(t *testing.T) {
	ctx := fixture(t, "move_grab.mg", 2)
	p, err := Assemble(ctx, Default(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var got []string
	for _, a := range p.Tracked() {
		got = append(got, a.Label)
	}
	sort.Strings(got)
	want := []string{
		"init urn:robot:req_held_in",
		"init urn:robot:req_pos_in",
		"precondition urn:robot:grab urn:robot:grab_pos_in",
		"precondition urn:robot:move_to urn:robot:pos_in",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Tracked labels mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_Observer(t *testing.T) {
	ctx := fixture(t, "door.mg", 1)
	counts := make(map[string]int)
	_, err := Assemble(ctx, Default(), func(g string, n int) { counts[g] = n })
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(counts) != len(Default()) {
		t.Fatalf("Expected a count for every generator, got %v", counts)
	}
	if counts["mutexes"] != 1 {
		t.Fatalf("Expected 1 mutex, got %d", counts["mutexes"])
	}
}

func TestPreconditions_GroupedAcrossHappenings(t *testing.T) {
	ctx := fixture(t, "single_move.mg", 2)
	got := assertions(t, ctx, Preconditions{})
	expectAssertion(t, got, "precondition urn:single:move urn:single:pos_in",
		"(and (=> |urn:single:move_0| (< |urn:single:pos_in_0_0| 0.0)) (=> |urn:single:move_1| (< |urn:single:pos_in_1_0| 0.0)))")
}

func TestEffects(t *testing.T) {
	ctx := fixture(t, "move_grab.mg", 2)
	got := assertions(t, ctx, Effects{})
	expectAssertion(t, got, "effect urn:robot:move_to urn:robot:pos_out 1",
		"(=> |urn:robot:move_to_1| (= |urn:robot:pos_out_1_1| |urn:robot:target_1_1|))")
	expectAssertion(t, got, "effect urn:robot:grab urn:robot:held_out 0",
		"(=> |urn:robot:grab_0| (= |urn:robot:held_out_0_1| true))")
	if len(got) != 4 {
		t.Fatalf("Expected 4 effect assertions, got %d", len(got))
	}
}

func TestEffects_NumericConstant(t *testing.T) {
	ctx := fixture(t, "single_move.mg", 1)
	got := assertions(t, ctx, Effects{})
	expectAssertion(t, got, "effect urn:single:move urn:single:pos_out 0",
		"(=> |urn:single:move_0| (= |urn:single:pos_out_0_1| 3.0))")
}

func TestBooleanFrames(t *testing.T) {
	ctx := fixture(t, "flag.mg", 1)
	got := assertions(t, ctx, BooleanFrames{})
	expectAssertion(t, got, "frame urn:flag:flag_out 0 rising",
		"(=> |urn:flag:flag_out_0_1| |urn:flag:flag_out_0_0|)")
	expectAssertion(t, got, "frame urn:flag:flag_out 0 falling",
		"(=> (not |urn:flag:flag_out_0_1|) (or (not |urn:flag:flag_out_0_0|) |urn:flag:lower_0|))")
}

func TestBooleanFrames_PartnerSetters(t *testing.T) {
	ctx := fixture(t, "door.mg", 1)
	got := assertions(t, ctx, BooleanFrames{})
	expectAssertion(t, got, "frame urn:door:open_unlocked_in 0 rising",
		"(=> |urn:door:open_unlocked_in_0_1| (or |urn:door:open_unlocked_in_0_0| |urn:door:unlock_0|))")
}

func TestNumericFrames(t *testing.T) {
	ctx := fixture(t, "single_move.mg", 1)
	got := assertions(t, ctx, NumericFrames{})
	expectAssertion(t, got, "frame urn:single:pos_out 0",
		"(=> (not |urn:single:move_0|) (= |urn:single:pos_out_0_1| |urn:single:pos_out_0_0|))")

	ctx = inline(t, `
capability("urn:x:c", "provided").
capability("urn:x:r", "required").
io("urn:x:c", "Input", "urn:x:s", "urn:x:Info").
io("urn:x:r", "Input", "urn:x:rs", "urn:x:Info").
characterizes("urn:x:s", "urn:x:speed").
characterizes("urn:x:rs", "urn:x:req").
data_element("urn:x:speed", "urn:td:speed", "").
data_element("urn:x:req", "urn:td:other", "").
`, 1)
	got = assertions(t, ctx, NumericFrames{})
	expectAssertion(t, got, "frame urn:x:speed 0", "(= |urn:x:speed_0_1| |urn:x:speed_0_0|)")
}

func TestMutexes(t *testing.T) {
	ctx := fixture(t, "door.mg", 2)
	got := assertions(t, ctx, Mutexes{})
	expectAssertion(t, got, "mutex urn:door:controller urn:door:open urn:door:unlock 1",
		"(not (and |urn:door:open_1| |urn:door:unlock_1|))")
	if len(got) != 2 {
		t.Fatalf("Expected one mutex per happening, got %d", len(got))
	}
}

func TestCrossRelations(t *testing.T) {
	ctx := fixture(t, "single_move.mg", 3)
	got := assertions(t, ctx, CrossRelations{})
	want := map[string]string{
		"cross urn:single:req_in urn:single:pos_in":   "(= |urn:single:req_in_0_0| |urn:single:pos_in_0_0|)",
		"cross urn:single:req_in urn:single:pos_out":  "(= |urn:single:req_in_0_0| |urn:single:pos_out_0_0|)",
		"cross urn:single:req_out urn:single:pos_out": "(= |urn:single:req_out_0_0| |urn:single:pos_out_2_1|)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Cross relations mismatch (-want +got):\n%s", diff)
	}
}

func TestContinuity_SkipsFreeParameters(t *testing.T) {
	ctx := inline(t, `
capability("urn:x:c", "provided").
capability("urn:x:r", "required").
io("urn:x:c", "Input", "urn:x:s", "urn:x:Info").
io("urn:x:c", "Input", "urn:x:g", "urn:x:Info").
io("urn:x:r", "Input", "urn:x:rs", "urn:x:Info").
characterizes("urn:x:s", "urn:x:free").
characterizes("urn:x:g", "urn:x:guarded").
characterizes("urn:x:rs", "urn:x:req").
data_element("urn:x:free", "urn:td:free", "").
data_element("urn:x:guarded", "urn:td:guarded", "").
data_element("urn:x:req", "urn:td:other", "").
instance("urn:x:guarded", "Requirement", ">", "1").
`, 3)
	got := assertions(t, ctx, Continuity{})
	if _, ok := got["continuity urn:x:free 1"]; ok {
		t.Fatal("Expected no continuity for a free parameter")
	}
	expectAssertion(t, got, "continuity urn:x:guarded 2", "(= |urn:x:guarded_2_0| |urn:x:guarded_1_1|)")
	if len(got) != 2 {
		t.Fatalf("Expected 2 continuity assertions, got %d", len(got))
	}
}

const drillModel = `
capability("urn:d:drill", "provided").
capability("urn:d:task", "required").
io("urn:d:drill", "Input", "urn:d:in", "urn:d:Part").
io("urn:d:drill", "Output", "urn:d:out", "urn:d:Part").
io("urn:d:task", "Input", "urn:d:tin", "urn:d:Part").
characterizes("urn:d:in", "urn:d:depth_in").
characterizes("urn:d:out", "urn:d:depth_out").
characterizes("urn:d:tin", "urn:d:req").
data_element("urn:d:depth_in", "urn:td:depth", "").
data_element("urn:d:depth_out", "urn:td:depth", "").
data_element("urn:d:req", "urn:td:other", "").
constraint("urn:d:drill", "urn:d:c1").
application("urn:d:c1", "http://www.openmath.org/cd/relation1#eq").
argument("urn:d:c1", 0, "urn:d:c1/0").
argument("urn:d:c1", 1, "urn:d:c1/1").
variable("urn:d:c1/0", "urn:d:depth_out").
application("urn:d:c1/1", "http://www.openmath.org/cd/arith1#plus").
argument("urn:d:c1/1", 0, "urn:d:c1/1/0").
argument("urn:d:c1/1", 1, "urn:d:c1/1/1").
variable("urn:d:c1/1/0", "urn:d:depth_in").
literal("urn:d:c1/1/1", "2").
constraint("urn:d:drill", "urn:d:c2").
application("urn:d:c2", "http://www.openmath.org/cd/relation1#gt").
argument("urn:d:c2", 0, "urn:d:c2/0").
argument("urn:d:c2", 1, "urn:d:c2/1").
variable("urn:d:c2/0", "urn:d:depth_in").
literal("urn:d:c2/1", "0").
`

func TestExpressions(t *testing.T) {
	ctx := inline(t, drillModel, 2)
	got := assertions(t, ctx, Expressions{})
	expectAssertion(t, got, "expression urn:d:drill urn:d:c1",
		"(and (=> |urn:d:drill_0| (= |urn:d:depth_out_0_1| (+ |urn:d:depth_in_0_1| 2))) "+
			"(=> |urn:d:drill_1| (= |urn:d:depth_out_1_1| (+ |urn:d:depth_in_1_1| 2))))")
	expectAssertion(t, got, "expression urn:d:drill urn:d:c2",
		"(and (=> |urn:d:drill_0| (> |urn:d:depth_in_0_0| 0)) (=> |urn:d:drill_1| (> |urn:d:depth_in_1_0| 0)))")
}

func TestNumericFrames_OutputConstraintInfluences(t *testing.T) {
	ctx := inline(t, drillModel, 1)
	got := assertions(t, ctx, NumericFrames{})
	expectAssertion(t, got, "frame urn:d:depth_out 0",
		"(=> (not |urn:d:drill_0|) (= |urn:d:depth_out_0_1| |urn:d:depth_out_0_0|))")
}

func TestExpressions_SkipsEffectConstraints(t *testing.T) {
	ctx := fixture(t, "move_grab.mg", 1)
	got := assertions(t, ctx, Expressions{})
	if len(got) != 0 {
		t.Fatalf("Expected the reach constraint to be asserted only as an effect, got %v", got)
	}
}

func TestInitsAndGoals(t *testing.T) {
	ctx := fixture(t, "flag.mg", 2)
	inits := assertions(t, ctx, Inits{})
	expectAssertion(t, inits, "init urn:flag:req_flag_in", "(= |urn:flag:req_flag_in_0_0| false)")
	goals := assertions(t, ctx, Goals{})
	expectAssertion(t, goals, "goal urn:flag:req_flag_out", "(= |urn:flag:req_flag_out_0_0| true)")

	p, err := Assemble(ctx, []Generator{Inits{}, Goals{}}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, a := range p.Assertions() {
		if a.Label == "goal urn:flag:req_flag_out" && a.Tracked {
			t.Fatal("Expected goals to be background assertions")
		}
		if a.Label == "init urn:flag:req_flag_in" && !a.Tracked {
			t.Fatal("Expected inits to be tracked")
		}
	}
}

func TestAssemble_MalformedExpressionAborts(t *testing.T) {
	ctx := inline(t, `
capability("urn:x:c", "provided").
capability("urn:x:r", "required").
io("urn:x:c", "Input", "urn:x:s", "urn:x:Info").
io("urn:x:r", "Input", "urn:x:rs", "urn:x:Info").
characterizes("urn:x:s", "urn:x:v").
characterizes("urn:x:rs", "urn:x:req").
data_element("urn:x:v", "urn:td:v", "").
data_element("urn:x:req", "urn:td:other", "").
constraint("urn:x:c", "urn:x:k").
application("urn:x:k", "http://www.openmath.org/cd/set1#in").
argument("urn:x:k", 0, "urn:x:k/0").
variable("urn:x:k/0", "urn:x:v").
`, 1)
	_, err := Assemble(ctx, Default(), nil)
	if !engine.IsMalformedExpression(err) {
		t.Fatalf("Expected MalformedExpression, got %v", err)
	}
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "failing" }

func (failingGenerator) Generate(ctx *Context) ([]smt.Assertion, error) {
	_, err := ctx.prop("urn:x:missing", 0, 0)
	return nil, err
}

func TestAssemble_GeneratorErrorAborts(t *testing.T) {
	ctx := fixture(t, "flag.mg", 1)
	_, err := Assemble(ctx, []Generator{Inits{}, failingGenerator{}}, nil)
	if !engine.IsNotFound(err) {
		t.Fatalf("Expected NotDeclared, got %v", err)
	}
}
