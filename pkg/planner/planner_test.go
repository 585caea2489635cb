package planner

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/facts"
	"github.com/openfroyo/capplan/pkg/plan"
	"github.com/openfroyo/capplan/pkg/policy"
	"github.com/openfroyo/capplan/pkg/smt"
	"github.com/openfroyo/capplan/pkg/solver"
	"github.com/openfroyo/capplan/pkg/stores"
)

func openFixture(t *testing.T, name string) facts.Store {
	t.Helper()
	store, err := facts.OpenMangleFiles(zerolog.Nop(), "../../examples/models/"+name)
	if err != nil {
		t.Fatalf("Failed to open fixture %s: %v", name, err)
	}
	return store
}

func newPlanner(t *testing.T, deps Dependencies, opts Options) *Planner {
	t.Helper()
	if deps.Solver == nil {
		deps.Solver = solver.NewGini(zerolog.Nop())
	}
	p, err := New(deps, opts)
	if err != nil {
		t.Fatalf("Failed to create planner: %v", err)
	}
	return p
}

// stepCapabilities lists the capabilities of each plan step.
func stepCapabilities(p *plan.Plan) [][]string {
	out := make([][]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		var caps []string
		for _, a := range s.Applications {
			caps = append(caps, a.CapabilityIRI)
		}
		out = append(out, caps)
	}
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func outcomes(attempts []Attempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.Outcome
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Dependencies{Solver: solver.NewGini(zerolog.Nop())}, Options{}); err == nil {
		t.Fatal("Expected error without a fact store")
	}
	if _, err := New(Dependencies{Facts: openFixture(t, "door.mg")}, Options{}); err == nil {
		t.Fatal("Expected error without a solver")
	}
}

func TestPlan_Door(t *testing.T) {
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg")}, Options{MaxHappenings: 5, Minimize: true})

	result, err := p.Plan(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Status != StatusFound {
		t.Fatalf("Expected status found, got %s", result.Status)
	}
	if result.Required != "urn:door:task" {
		t.Fatalf("Expected required capability urn:door:task, got %s", result.Required)
	}
	if result.Horizon != 2 {
		t.Fatalf("Expected horizon 2, got %d", result.Horizon)
	}
	want := [][]string{{"urn:door:unlock"}, {"urn:door:open"}}
	if diff := cmp.Diff(want, stepCapabilities(result.Plan)); diff != "" {
		t.Fatalf("Unexpected plan (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{OutcomeUnsat, OutcomeSat}, outcomes(result.Attempts)); diff != "" {
		t.Fatalf("Unexpected attempts (-want +got):\n%s", diff)
	}
	if result.Err() != nil {
		t.Fatalf("Expected no error for a found plan, got %v", result.Err())
	}
	if !strings.Contains(result.Problem, "(check-sat)") {
		t.Fatalf("Expected problem text to be a complete script, got:\n%s", result.Problem)
	}

	// The plan re-encodes to exactly the invoked variables of the model.
	invoked := result.Plan.InvokedVariables()
	if got := result.Model.CountTrue(invoked); got != len(invoked) {
		t.Fatalf("Expected every re-encoded variable to be true, got %d of %d", got, len(invoked))
	}
}

func TestPlan_DoorParallelMatchesSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := openFixture(t, "door.mg")
	seq := newPlanner(t, Dependencies{Facts: store}, Options{MaxHappenings: 6, Minimize: true})
	par := newPlanner(t, Dependencies{Facts: store}, Options{MaxHappenings: 6, Minimize: true, Parallelism: 4})

	a, err := seq.Plan(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Sequential plan failed: %v", err)
	}
	b, err := par.Plan(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Parallel plan failed: %v", err)
	}

	if a.Status != b.Status || a.Horizon != b.Horizon {
		t.Fatalf("Expected %s at %d, got %s at %d", a.Status, a.Horizon, b.Status, b.Horizon)
	}
	if diff := cmp.Diff(stepCapabilities(a.Plan), stepCapabilities(b.Plan)); diff != "" {
		t.Fatalf("Parallel plan differs (-seq +par):\n%s", diff)
	}
	if diff := cmp.Diff(outcomes(a.Attempts), outcomes(b.Attempts)); diff != "" {
		t.Fatalf("Parallel attempts differ (-seq +par):\n%s", diff)
	}
}

func TestPlan_FlagExhausted(t *testing.T) {
	for _, workers := range []int{1, 3} {
		p := newPlanner(t, Dependencies{Facts: openFixture(t, "flag.mg")}, Options{MaxHappenings: 3, Parallelism: workers})

		result, err := p.Plan(context.Background(), Request{})
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		if result.Status != StatusExhausted {
			t.Fatalf("Expected status exhausted, got %s", result.Status)
		}
		if result.Horizon != 3 {
			t.Fatalf("Expected horizon 3, got %d", result.Horizon)
		}
		if diff := cmp.Diff([]string{OutcomeUnsat, OutcomeUnsat, OutcomeUnsat}, outcomes(result.Attempts)); diff != "" {
			t.Fatalf("Unexpected attempts (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"init urn:flag:req_flag_in"}, result.UnsatCore); diff != "" {
			t.Fatalf("Unexpected unsat core (-want +got):\n%s", diff)
		}
		if !engine.IsExhausted(result.Err()) {
			t.Fatalf("Expected exhausted error, got %v", result.Err())
		}
		if result.Plan != nil {
			t.Fatal("Expected no plan when exhausted")
		}
	}
}

func TestPlan_UnknownRequired(t *testing.T) {
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg")}, Options{MaxHappenings: 2})

	_, err := p.Plan(context.Background(), Request{Required: "urn:door:nope"})
	if !engine.IsNotFound(err) {
		t.Fatalf("Expected not-declared error, got %v", err)
	}
}

func TestPlan_Cancelled(t *testing.T) {
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg")}, Options{MaxHappenings: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Plan(ctx, Request{}); err == nil {
		t.Fatal("Expected error for a cancelled request")
	}
}

func TestPlan_RequestOverrides(t *testing.T) {
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg")}, Options{MaxHappenings: 10})

	result, err := p.Plan(context.Background(), Request{MaxHappenings: 1})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Status != StatusExhausted || result.Horizon != 1 || len(result.Attempts) != 1 {
		t.Fatalf("Expected exhaustion after one horizon, got %s at %d with %d attempts",
			result.Status, result.Horizon, len(result.Attempts))
	}
	if len(result.UnsatCore) == 0 {
		t.Fatal("Expected a non-empty unsat core")
	}
}

func TestPlan_RequestCannotRaiseLimits(t *testing.T) {
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "flag.mg")}, Options{MaxHappenings: 2, Parallelism: 2})

	result, err := p.Plan(context.Background(), Request{MaxHappenings: 1 << 62, Parallelism: 1 << 30})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Status != StatusExhausted || result.Horizon != 2 || len(result.Attempts) != 2 {
		t.Fatalf("Expected exhaustion at the configured horizon 2, got %s at %d with %d attempts",
			result.Status, result.Horizon, len(result.Attempts))
	}
}

func TestNew_RejectsOversizedOptions(t *testing.T) {
	store := openFixture(t, "door.mg")
	gini := solver.NewGini(zerolog.Nop())

	tests := []struct {
		name string
		opts Options
	}{
		{"horizon", Options{MaxHappenings: MaxHappeningsLimit + 1}},
		{"parallelism", Options{Parallelism: MaxParallelism + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Dependencies{Facts: store, Solver: gini}, tt.opts)
			var engErr *engine.EngineError
			if !errors.As(err, &engErr) || engErr.Code != engine.ErrCodeValidation {
				t.Fatalf("Expected a validation error, got %v", err)
			}
		})
	}
}

type recordingSink struct {
	mu  sync.Mutex
	put map[stores.ArtifactKind][]byte
}

func (s *recordingSink) Put(_ context.Context, runID string, kind stores.ArtifactKind, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.put == nil {
		s.put = make(map[stores.ArtifactKind][]byte)
	}
	s.put[kind] = data
	return "mem://" + runID + "/" + kind.FileName(), nil
}

func TestPlan_RecordsRunAndArtifacts(t *testing.T) {
	ctx := context.Background()
	runs, err := stores.Open(ctx, stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open run store: %v", err)
	}
	defer runs.Close()
	sink := &recordingSink{}

	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg"), Runs: runs, Sink: sink}, Options{
		MaxHappenings: 4,
		Minimize:      true,
		Artifacts:     []stores.ArtifactKind{stores.ArtifactProblem, stores.ArtifactModel, stores.ArtifactPlan},
		Source:        "door.mg",
	})

	result, err := p.Plan(ctx, Request{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	run, err := runs.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("Expected run to be recorded: %v", err)
	}
	if run.Status != stores.RunStatusFound || run.Horizon != 2 {
		t.Fatalf("Expected found run at horizon 2, got %s at %d", run.Status, run.Horizon)
	}
	if run.Backend != solver.BackendGini || run.Source != "door.mg" {
		t.Fatalf("Unexpected run record %+v", run)
	}

	attempts, err := runs.ListAttempts(ctx, result.RunID)
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 recorded attempts, got %d", len(attempts))
	}

	for _, kind := range []stores.ArtifactKind{stores.ArtifactProblem, stores.ArtifactModel, stores.ArtifactPlan} {
		if len(sink.put[kind]) == 0 {
			t.Fatalf("Expected %s artifact to be written", kind)
		}
		if want := "mem://" + result.RunID + "/" + kind.FileName(); result.Artifacts[kind] != want {
			t.Fatalf("Expected %s location %s, got %s", kind, want, result.Artifacts[kind])
		}
	}
	if !strings.Contains(string(sink.put[stores.ArtifactPlan]), `"capability_iri": "urn:door:unlock"`) {
		t.Fatalf("Unexpected plan artifact:\n%s", sink.put[stores.ArtifactPlan])
	}
}

func TestPlan_ExhaustedRunRecordsCore(t *testing.T) {
	ctx := context.Background()
	runs, err := stores.Open(ctx, stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open run store: %v", err)
	}
	defer runs.Close()

	p := newPlanner(t, Dependencies{Facts: openFixture(t, "flag.mg"), Runs: runs}, Options{MaxHappenings: 2})
	result, err := p.Plan(ctx, Request{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	run, err := runs.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != stores.RunStatusExhausted {
		t.Fatalf("Expected exhausted run, got %s", run.Status)
	}
	if run.UnsatCore != `["init urn:flag:req_flag_in"]` {
		t.Fatalf("Unexpected stored core %s", run.UnsatCore)
	}
}

func TestPlan_PolicyRejection(t *testing.T) {
	eng, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create policy engine: %v", err)
	}
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg"), Policies: eng}, Options{
		MaxHappenings: 3,
		Minimize:      true,
		Forbidden:     []string{"urn:door:open"},
	})

	result, err := p.Plan(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Status != StatusFound {
		t.Fatalf("Expected a plan to be found, got %s", result.Status)
	}
	if !result.Rejected() {
		t.Fatal("Expected the plan to be rejected")
	}
	if len(result.PolicyViolations) != 1 || result.PolicyViolations[0].Policy != "forbidden-capabilities" {
		t.Fatalf("Unexpected violations %+v", result.PolicyViolations)
	}
	var ee *engine.EngineError
	if err := result.Err(); !errors.As(err, &ee) || ee.Code != engine.ErrCodeValidation {
		t.Fatalf("Expected validation error, got %v", result.Err())
	}
}

// fakeSolver answers by horizon. Door problems declare two invocation
// variables per happening, so the horizon is half the objective size.
type fakeSolver struct {
	sat   map[int]bool
	delay map[int]time.Duration
	fail  map[int]error

	mu     sync.Mutex
	called []int
}

func (f *fakeSolver) Name() string { return "fake" }

func (f *fakeSolver) Check(ctx context.Context, p *smt.Problem, opts solver.Options) (*solver.Outcome, error) {
	h := len(p.Objective()) / 2
	f.mu.Lock()
	f.called = append(f.called, h)
	f.mu.Unlock()

	if d := f.delay[h]; d > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
	if err := f.fail[h]; err != nil {
		return nil, err
	}
	if !f.sat[h] {
		return &solver.Outcome{Status: solver.StatusUnsat, Backend: "fake", Core: nil}, nil
	}
	m := make(smt.Model)
	for _, name := range p.Objective() {
		m[name] = smt.BoolValue(false)
	}
	return &solver.Outcome{Status: solver.StatusSat, Model: m, Backend: "fake"}, nil
}

func TestSearchParallel_SmallestHorizonWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeSolver{
		sat: map[int]bool{2: true, 3: true},
		// 2 finishes after 3 has already reported; 4 and 5 run until cancelled.
		delay: map[int]time.Duration{2: 100 * time.Millisecond, 4: time.Hour, 5: time.Hour},
	}
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg"), Solver: fake}, Options{MaxHappenings: 8, Parallelism: 4})

	done := make(chan struct{})
	var result *Result
	var err error
	go func() {
		defer close(done)
		result, err = p.Plan(context.Background(), Request{})
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Parallel search did not cancel larger horizons")
	}

	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Status != StatusFound || result.Horizon != 2 {
		t.Fatalf("Expected found at 2, got %s at %d", result.Status, result.Horizon)
	}
	if diff := cmp.Diff([]string{OutcomeUnsat, OutcomeSat}, outcomes(result.Attempts)); diff != "" {
		t.Fatalf("Unexpected attempts (-want +got):\n%s", diff)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, h := range fake.called {
		if h > 5 {
			t.Fatalf("Expected horizons above the winner not to start, but %d ran", h)
		}
	}
}

func TestSearchParallel_ErrorBelowWinner(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := engine.NewTransientError("solver crashed", nil).WithCode(engine.ErrCodeSolverFailed)
	fake := &fakeSolver{
		sat:   map[int]bool{3: true},
		fail:  map[int]error{2: boom},
		delay: map[int]time.Duration{2: 50 * time.Millisecond},
	}
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg"), Solver: fake}, Options{MaxHappenings: 4, Parallelism: 4})

	_, err := p.Plan(context.Background(), Request{})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the horizon 2 failure, got %v", err)
	}
	if !engine.IsRetryable(err) {
		t.Fatalf("Expected a retryable error, got %v", err)
	}
}

func TestSearchSequential_StopsAtError(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeSolver{fail: map[int]error{2: boom}, sat: map[int]bool{3: true}}
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg"), Solver: fake}, Options{MaxHappenings: 4})

	if _, err := p.Plan(context.Background(), Request{}); !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if diff := cmp.Diff([]int{1, 2}, fake.called); diff != "" {
		t.Fatalf("Unexpected solver calls (-want +got):\n%s", diff)
	}
}

func TestSolve_UnknownIsTransient(t *testing.T) {
	p := newPlanner(t, Dependencies{Facts: openFixture(t, "door.mg"), Solver: unknownSolver{}}, Options{MaxHappenings: 2})

	_, err := p.Plan(context.Background(), Request{})
	if !engine.IsTransient(err) {
		t.Fatalf("Expected transient error, got %v", err)
	}
}

type unknownSolver struct{}

func (unknownSolver) Name() string { return "unknown" }

func (unknownSolver) Check(context.Context, *smt.Problem, solver.Options) (*solver.Outcome, error) {
	return &solver.Outcome{Status: solver.StatusUnknown, Backend: "unknown"}, nil
}

func newZ3Planner(t *testing.T, fixture string, opts Options) *Planner {
	t.Helper()
	if !solver.Z3Available("") {
		t.Skip("z3 not found on PATH")
	}
	return newPlanner(t, Dependencies{
		Facts:  openFixture(t, fixture),
		Solver: solver.NewZ3(zerolog.Nop(), ""),
	}, opts)
}

func TestPlan_MoveGrabZ3(t *testing.T) {
	p := newZ3Planner(t, "move_grab.mg", Options{MaxHappenings: 4, Minimize: true})

	result, err := p.Plan(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Status != StatusFound || result.Horizon != 2 {
		t.Fatalf("Expected found at 2, got %s at %d", result.Status, result.Horizon)
	}
	if diff := cmp.Diff([]string{"urn:robot:move_to", "urn:robot:grab"}, result.Plan.Capabilities()); diff != "" {
		t.Fatalf("Unexpected plan (-want +got):\n%s", diff)
	}
}

func TestPlan_SingleMoveExhaustedZ3(t *testing.T) {
	p := newZ3Planner(t, "single_move.mg", Options{MaxHappenings: 2})

	result, err := p.Plan(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if result.Status != StatusExhausted {
		t.Fatalf("Expected exhausted, got %s", result.Status)
	}
	want := []string{"init urn:single:req_in", "precondition urn:single:move urn:single:pos_in"}
	if diff := cmp.Diff(want, sortedCopy(result.UnsatCore)); diff != "" {
		t.Fatalf("Unexpected unsat core (-want +got):\n%s", diff)
	}
}

func TestPlan_BlockedPreconditionCore(t *testing.T) {
	for _, workers := range []int{1, 3} {
		p := newPlanner(t, Dependencies{Facts: openFixture(t, "switch.mg")}, Options{MaxHappenings: 3, Parallelism: workers})

		result, err := p.Plan(context.Background(), Request{})
		if err != nil {
			t.Fatalf("Plan failed with %d workers: %v", workers, err)
		}
		if result.Status != StatusExhausted || result.Horizon != 3 {
			t.Fatalf("Expected exhausted at 3 with %d workers, got %s at %d", workers, result.Status, result.Horizon)
		}
		want := []string{"init urn:switch:req_in", "precondition urn:switch:press urn:switch:lamp_in"}
		if diff := cmp.Diff(want, sortedCopy(result.UnsatCore)); diff != "" {
			t.Fatalf("Unexpected unsat core with %d workers (-want +got):\n%s", workers, diff)
		}
		if diff := cmp.Diff([]string{"unsat", "unsat", "unsat"}, outcomes(result.Attempts)); diff != "" {
			t.Fatalf("Unexpected attempts (-want +got):\n%s", diff)
		}
	}
}
