package model

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/equivalence"
	"github.com/openfroyo/capplan/pkg/facts"
)

// Facts is the read-only snapshot of catalog rows one planning request works
// on. Rows of required capabilities other than Required are already dropped.
type Facts struct {
	Required     string
	Properties   []facts.Row
	Descriptions []facts.Row
	Resources    []facts.Row
	Influences   []facts.Row
	Equalities   []facts.Row
	Constraints  []facts.Row
	Expressions  []facts.Row
	Equivalences []facts.Row
}

// Fetch runs every catalog query once and selects the required capability.
// An empty required IRI selects the only required capability of the model.
func Fetch(ctx context.Context, store facts.Store, required string) (*Facts, error) {
	results := make([][]facts.Row, len(facts.AllQueries))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range facts.AllQueries {
		g.Go(func() error {
			rows, err := facts.Select(gctx, store, name)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byName := make(map[facts.QueryName][]facts.Row, len(results))
	for i, name := range facts.AllQueries {
		byName[name] = sortRows(results[i])
	}

	selected, err := selectRequired(byName[facts.QueryProperties], required)
	if err != nil {
		return nil, err
	}

	return &Facts{
		Required:     selected,
		Properties:   keepCapability(byName[facts.QueryProperties], selected),
		Descriptions: byName[facts.QueryDescriptions],
		Resources:    byName[facts.QueryResources],
		Influences:   byName[facts.QueryInfluences],
		Equalities:   byName[facts.QueryEqualities],
		Constraints:  byName[facts.QueryConstraints],
		Expressions:  byName[facts.QueryExpressions],
		Equivalences: keepCapability(byName[facts.QueryEquivalences], selected),
	}, nil
}

// RequiredCapabilities lists the required capabilities named by property rows.
func RequiredCapabilities(rows []facts.Row) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if kind, err := engine.ParseCapabilityType(r.Text("Kind")); err == nil && kind == engine.CapabilityRequired {
			if c := r.Text("Cap"); !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

func selectRequired(rows []facts.Row, required string) (string, error) {
	all := RequiredCapabilities(rows)
	if required != "" {
		for _, c := range all {
			if c == required {
				return c, nil
			}
		}
		return "", engine.NewNotDeclaredError("required capability", required)
	}
	switch len(all) {
	case 0:
		return "", engine.NewPermanentError("model declares no required capability", nil).
			WithCode(engine.ErrCodeValidation)
	case 1:
		return all[0], nil
	}
	return "", engine.NewPermanentError(
		fmt.Sprintf("model declares %d required capabilities, choose one of %s", len(all), strings.Join(all, ", ")), nil).
		WithCode(engine.ErrCodeValidation)
}

// keepCapability drops rows of required capabilities other than selected.
func keepCapability(rows []facts.Row, selected string) []facts.Row {
	out := make([]facts.Row, 0, len(rows))
	for _, r := range rows {
		kind, err := engine.ParseCapabilityType(r.Text("Kind"))
		if err == nil && kind == engine.CapabilityRequired && r.Text("Cap") != selected {
			continue
		}
		out = append(out, r)
	}
	return out
}

// EquivalenceSource extracts the input of an equivalence session.
func (f *Facts) EquivalenceSource() *equivalence.Source {
	src := &equivalence.Source{}

	for _, r := range f.Equivalences {
		src.Candidates = append(src.Candidates, equivalence.Candidate{
			Property:        r.Text("Prop"),
			Capability:      r.Text("Cap"),
			TypeDescription: r.Text("Td"),
			Class:           r.Text("Class"),
			Required:        r.Text("Cap") == f.Required,
		})
	}

	props := make(map[string]*equivalence.Property)
	var order []string
	for _, r := range f.Properties {
		iri := r.Text("Prop")
		p, ok := props[iri]
		if !ok {
			p = &equivalence.Property{IRI: iri, TypeDescription: r.Text("Td")}
			props[iri] = p
			order = append(order, iri)
		}
		p.Capabilities = appendUnique(p.Capabilities, r.Text("Cap"))
		if r.Text("Cap") == f.Required {
			p.Required = true
		}
	}
	for _, iri := range order {
		sort.Strings(props[iri].Capabilities)
		src.Properties = append(src.Properties, *props[iri])
	}

	for _, r := range f.Equalities {
		src.Equalities = append(src.Equalities, equivalence.NewPair(r.Text("A"), r.Text("B")))
	}
	return src
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// sortRows orders rows by their bindings so that registries and labels do not
// depend on store iteration order. The input slice is shared with caches and
// left untouched.
func sortRows(rows []facts.Row) []facts.Row {
	keys := make([]string, len(rows))
	out := make([]facts.Row, len(rows))
	idx := make([]int, len(rows))
	for i, r := range rows {
		idx[i] = i
		keys[i] = rowKey(r)
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func rowKey(r facts.Row) string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(r[n].Value)
		b.WriteByte(0)
	}
	return b.String()
}
