package equivalence

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ProductClass is the abstract VDI 3682 product class. A state of this class
// matches any product subtype.
const ProductClass = "http://www.w3id.org/hsu-aut/VDI3682#Product"

// Candidate is a property characterising a product state of a capability.
type Candidate struct {
	Property        string
	Capability      string
	TypeDescription string
	Class           string
	Required        bool
}

// Equivalent reports whether two candidates describe the same real-world
// quantity: they belong to different capabilities, share a type description,
// and their product classes match or one of them is the abstract product.
func Equivalent(a, b Candidate) bool {
	if a.Capability == b.Capability || a.TypeDescription != b.TypeDescription {
		return false
	}
	return a.Class == b.Class || a.Class == ProductClass || b.Class == ProductClass
}

// SameQuantity is the stricter relation used to link capabilities: the
// product classes have to be identical.
func SameQuantity(a, b Candidate) bool {
	return a.Capability != b.Capability &&
		a.TypeDescription == b.TypeDescription &&
		a.Class == b.Class
}

// Pair is an unordered pair of property IRIs with A < B.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPair orders a and b.
func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Other returns the element of p that is not iri.
func (p Pair) Other(iri string) string {
	if p.A == iri {
		return p.B
	}
	return p.A
}

// Property carries what the explicit and transitive passes need to know
// about a property.
type Property struct {
	IRI             string
	TypeDescription string
	Capabilities    []string
	Required        bool
}

// Source is the input of a session.
type Source struct {
	// Candidates are the product-state properties of the provided
	// capabilities and the required capability being planned.
	Candidates []Candidate

	// Properties describes every property named by Candidates or Equalities.
	Properties []Property

	// Equalities are the property pairs related by an equality constraint.
	Equalities []Pair
}

type capKey struct {
	capability string
	property   string
}

// Session computes the equivalence relation of one planning request on
// first use and serves it to every generator of every horizon attempt.
// It is safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	source *Source
	logger zerolog.Logger

	ready       bool
	pairs       []Pair
	partners    map[string][]string
	capPartners map[capKey][]string
	required    map[string]bool
}

// NewSession creates a session over src.
func NewSession(logger zerolog.Logger, src *Source) *Session {
	if src == nil {
		src = &Source{}
	}
	return &Session{
		source: src,
		logger: logger.With().Str("component", "equivalence").Logger(),
	}
}

// Reset drops the computed relation. The next query recomputes it.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.pairs = nil
	s.partners = nil
	s.capPartners = nil
	s.required = nil
}

// Pairs returns every property pair, sorted.
func (s *Session) Pairs() []Pair {
	s.ensure()
	return append([]Pair(nil), s.pairs...)
}

// Partners returns the provided properties equivalent to iri, sorted.
func (s *Session) Partners(iri string) []string {
	s.ensure()
	return s.partners[iri]
}

// Related reports whether a and b are equivalent.
func (s *Session) Related(a, b string) bool {
	for _, p := range s.Partners(a) {
		if p == b {
			return true
		}
	}
	return false
}

// CapabilityPartners returns the provided capabilities linked to capability
// through property, sorted.
func (s *Session) CapabilityPartners(capability, property string) []string {
	s.ensure()
	return s.capPartners[capKey{capability, property}]
}

func (s *Session) ensure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return
	}

	props := make(map[string]Property, len(s.source.Properties))
	s.required = make(map[string]bool)
	for _, p := range s.source.Properties {
		props[p.IRI] = p
		if p.Required {
			s.required[p.IRI] = true
		}
	}
	for _, c := range s.source.Candidates {
		if c.Required {
			s.required[c.Property] = true
		}
	}

	set := newPairSet()
	s.implicitPairs(set)
	s.explicitPairs(set, props)
	s.closePairs(set)

	s.pairs = set.sorted()
	s.partners = make(map[string][]string)
	for _, p := range s.pairs {
		if !s.required[p.B] {
			s.partners[p.A] = append(s.partners[p.A], p.B)
		}
		if !s.required[p.A] {
			s.partners[p.B] = append(s.partners[p.B], p.A)
		}
	}
	for k := range s.partners {
		sort.Strings(s.partners[k])
	}

	s.capPartners = s.capabilityLinks()
	s.ready = true

	s.logger.Debug().
		Int("candidates", len(s.source.Candidates)).
		Int("pairs", len(s.pairs)).
		Msg("Computed equivalence relation")
}

// implicitPairs relates candidates by structure.
func (s *Session) implicitPairs(set *pairSet) {
	cs := s.source.Candidates
	for i := range cs {
		for j := i + 1; j < len(cs); j++ {
			if cs[i].Property != cs[j].Property && Equivalent(cs[i], cs[j]) {
				set.add(NewPair(cs[i].Property, cs[j].Property))
			}
		}
	}
}

// explicitPairs adds equality-constraint pairs of the same type description
// and carries existing provided partners of either side over to the other
// side, as long as the two do not share a capability.
func (s *Session) explicitPairs(set *pairSet, props map[string]Property) {
	for _, eq := range s.source.Equalities {
		a, okA := props[eq.A]
		b, okB := props[eq.B]
		if !okA || !okB || a.IRI == b.IRI || a.TypeDescription != b.TypeDescription {
			continue
		}
		set.add(NewPair(a.IRI, b.IRI))

		for _, p := range set.partners(a.IRI) {
			if p != b.IRI && !s.required[p] && disjoint(props[p].Capabilities, b.Capabilities) {
				set.add(NewPair(p, b.IRI))
			}
		}
		for _, p := range set.partners(b.IRI) {
			if p != a.IRI && !s.required[p] && disjoint(props[p].Capabilities, a.Capabilities) {
				set.add(NewPair(p, a.IRI))
			}
		}
	}
}

// closePairs adds the transitive closure over pairs of provided properties.
// Pairs touching a required property never propagate.
func (s *Session) closePairs(set *pairSet) {
	adj := make(map[string][]string)
	for p := range set.items {
		if s.required[p.A] || s.required[p.B] {
			continue
		}
		adj[p.A] = append(adj[p.A], p.B)
		adj[p.B] = append(adj[p.B], p.A)
	}

	seen := make(map[string]bool)
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	for _, start := range nodes {
		if seen[start] {
			continue
		}
		var component []string
		stack := []string{start}
		seen[start] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, n)
			for _, m := range adj[n] {
				if !seen[m] {
					seen[m] = true
					stack = append(stack, m)
				}
			}
		}
		for i := range component {
			for j := i + 1; j < len(component); j++ {
				set.add(NewPair(component[i], component[j]))
			}
		}
	}
}

func (s *Session) capabilityLinks() map[capKey][]string {
	var provided []Candidate
	for _, c := range s.source.Candidates {
		if !c.Required {
			provided = append(provided, c)
		}
	}

	links := make(map[capKey]map[string]bool)
	link := func(k capKey, capability string) {
		if links[k] == nil {
			links[k] = make(map[string]bool)
		}
		links[k][capability] = true
	}
	for _, x := range provided {
		for _, y := range provided {
			if !SameQuantity(x, y) {
				continue
			}
			link(capKey{x.Capability, x.Property}, y.Capability)
			link(capKey{y.Capability, x.Property}, x.Capability)
		}
	}

	out := make(map[capKey][]string, len(links))
	for k, caps := range links {
		for c := range caps {
			if c != k.capability {
				out[k] = append(out[k], c)
			}
		}
		sort.Strings(out[k])
	}
	return out
}

func disjoint(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return false
			}
		}
	}
	return true
}

type pairSet struct {
	items map[Pair]bool
	index map[string][]string
}

func newPairSet() *pairSet {
	return &pairSet{items: make(map[Pair]bool), index: make(map[string][]string)}
}

func (ps *pairSet) add(p Pair) {
	if p.A == p.B || ps.items[p] {
		return
	}
	ps.items[p] = true
	ps.index[p.A] = append(ps.index[p.A], p.B)
	ps.index[p.B] = append(ps.index[p.B], p.A)
}

// partners returns a snapshot so callers may add while iterating.
func (ps *pairSet) partners(iri string) []string {
	return append([]string(nil), ps.index[iri]...)
}

func (ps *pairSet) sorted() []Pair {
	out := make([]Pair, 0, len(ps.items))
	for p := range ps.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}
