package equivalence

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestEquivalent(t *testing.T) {
	base := Candidate{Property: "p", Capability: "c1", TypeDescription: "td", Class: "urn:Part"}

	tests := []struct {
		name  string
		other Candidate
		want  bool
	}{
		{"same class", Candidate{Property: "q", Capability: "c2", TypeDescription: "td", Class: "urn:Part"}, true},
		{"abstract product", Candidate{Property: "q", Capability: "c2", TypeDescription: "td", Class: ProductClass}, true},
		{"same capability", Candidate{Property: "q", Capability: "c1", TypeDescription: "td", Class: "urn:Part"}, false},
		{"different type description", Candidate{Property: "q", Capability: "c2", TypeDescription: "other", Class: "urn:Part"}, false},
		{"different subtype", Candidate{Property: "q", Capability: "c2", TypeDescription: "td", Class: "urn:Tool"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equivalent(base, tt.other); got != tt.want {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			if got := Equivalent(tt.other, base); got != tt.want {
				t.Fatalf("Expected symmetric result %v, got %v", tt.want, got)
			}
		})
	}

	if SameQuantity(base, Candidate{Property: "q", Capability: "c2", TypeDescription: "td", Class: ProductClass}) {
		t.Fatal("Expected capability links to require identical classes")
	}
}

// armSource mirrors the move/grab example: a chain of position properties
// across two capabilities, one equality constraint to an information input,
// and a required capability.
func armSource() *Source {
	cand := func(prop, capability, class string, required bool) Candidate {
		return Candidate{Property: prop, Capability: capability, TypeDescription: "position", Class: class, Required: required}
	}
	return &Source{
		Candidates: []Candidate{
			cand("pos_in", "move", "Robot", false),
			cand("pos_out", "move", "Robot", false),
			cand("grab_pos", "grab", "Robot", false),
			cand("req_in", "task", "Robot", true),
			cand("req_out", "task", "Robot", true),
		},
		Properties: []Property{
			{IRI: "pos_in", TypeDescription: "position", Capabilities: []string{"move"}},
			{IRI: "pos_out", TypeDescription: "position", Capabilities: []string{"move"}},
			{IRI: "target", TypeDescription: "position", Capabilities: []string{"move"}},
			{IRI: "grab_pos", TypeDescription: "position", Capabilities: []string{"grab"}},
			{IRI: "req_in", TypeDescription: "position", Capabilities: []string{"task"}, Required: true},
			{IRI: "req_out", TypeDescription: "position", Capabilities: []string{"task"}, Required: true},
		},
		Equalities: []Pair{NewPair("pos_out", "target")},
	}
}

func TestSession_Partners(t *testing.T) {
	s := NewSession(zerolog.Nop(), armSource())

	tests := []struct {
		prop string
		want []string
	}{
		{"pos_in", []string{"grab_pos", "pos_out", "target"}},
		{"target", []string{"grab_pos", "pos_in", "pos_out"}},
		{"req_in", []string{"grab_pos", "pos_in", "pos_out"}},
		{"req_out", []string{"grab_pos", "pos_in", "pos_out"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, s.Partners(tt.prop)); diff != "" {
			t.Errorf("Partners(%s) mismatch (-want +got):\n%s", tt.prop, diff)
		}
	}

	// Required properties never become partners.
	for _, p := range s.Pairs() {
		if p.A == "req_in" && p.B == "req_out" {
			t.Fatal("Expected required properties of one capability not to pair")
		}
	}
	if !s.Related("pos_out", "target") {
		t.Fatal("Expected the equality constraint to relate pos_out and target")
	}
}

func TestSession_NoTransitivityThroughRequired(t *testing.T) {
	src := &Source{
		Candidates: []Candidate{
			{Property: "a", Capability: "c1", TypeDescription: "td", Class: "urn:A"},
			{Property: "r", Capability: "task", TypeDescription: "td", Class: ProductClass, Required: true},
			{Property: "b", Capability: "c2", TypeDescription: "td", Class: "urn:B"},
		},
	}
	s := NewSession(zerolog.Nop(), src)

	if s.Related("a", "b") {
		t.Fatal("Expected a and b to stay unrelated: they only meet through a required property")
	}
	if diff := cmp.Diff([]string{"a", "b"}, s.Partners("r")); diff != "" {
		t.Fatalf("Unexpected partners of r (-want +got):\n%s", diff)
	}
}

func TestSession_ExplicitPairs(t *testing.T) {
	src := &Source{
		Candidates: []Candidate{
			{Property: "x", Capability: "c1", TypeDescription: "td", Class: "urn:A"},
			{Property: "y", Capability: "c2", TypeDescription: "td", Class: "urn:A"},
		},
		Properties: []Property{
			{IRI: "x", TypeDescription: "td", Capabilities: []string{"c1"}},
			{IRI: "y", TypeDescription: "td", Capabilities: []string{"c2"}},
			{IRI: "z", TypeDescription: "td", Capabilities: []string{"c2"}},
			{IRI: "w", TypeDescription: "other", Capabilities: []string{"c3"}},
		},
		Equalities: []Pair{NewPair("y", "z"), NewPair("x", "w")},
	}
	s := NewSession(zerolog.Nop(), src)

	want := []Pair{{A: "x", B: "y"}, {A: "x", B: "z"}, {A: "y", B: "z"}}
	if diff := cmp.Diff(want, s.Pairs()); diff != "" {
		t.Fatalf("Unexpected pairs (-want +got):\n%s", diff)
	}
}

func TestSession_CapabilityPartners(t *testing.T) {
	s := NewSession(zerolog.Nop(), armSource())

	if diff := cmp.Diff([]string{"grab"}, s.CapabilityPartners("move", "pos_out")); diff != "" {
		t.Fatalf("Unexpected capability partners (-want +got):\n%s", diff)
	}
	if got := s.CapabilityPartners("task", "req_in"); len(got) != 0 {
		t.Fatalf("Expected no capability links for the required capability, got %v", got)
	}
}

func TestSession_ResetAndConcurrentUse(t *testing.T) {
	s := NewSession(zerolog.Nop(), armSource())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if len(s.Partners("pos_in")) != 3 {
				t.Errorf("Expected 3 partners of pos_in")
			}
		}()
	}
	wg.Wait()

	before := s.Pairs()
	s.Reset()
	if diff := cmp.Diff(before, s.Pairs()); diff != "" {
		t.Fatalf("Expected recomputation to give the same pairs (-want +got):\n%s", diff)
	}
}
