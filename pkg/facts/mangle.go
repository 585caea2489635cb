package facts

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/engine"
)

//go:embed schema.mg
var schema string

// Source is one named piece of Mangle text.
type Source struct {
	Name string
	Text string
}

// MangleStore evaluates model facts together with the embedded view rules
// and answers single-atom queries against the fixpoint.
type MangleStore struct {
	mu       sync.RWMutex
	store    factstore.FactStore
	patterns []string
	sources  []Source
	logger   zerolog.Logger
}

// NewMangleStore evaluates the given sources.
func NewMangleStore(logger zerolog.Logger, sources ...Source) (*MangleStore, error) {
	s := &MangleStore{
		sources: sources,
		logger:  logger.With().Str("component", "mangle-store").Logger(),
	}
	if err := s.evaluate(sources); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMangleFiles loads every file matching the glob patterns (doublestar
// syntax, e.g. "models/**/*.mg"). Reload re-reads the same patterns.
func OpenMangleFiles(logger zerolog.Logger, patterns ...string) (*MangleStore, error) {
	s := &MangleStore{
		patterns: patterns,
		logger:   logger.With().Str("component", "mangle-store").Logger(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// ExpandPatterns resolves glob patterns to a sorted, de-duplicated file list.
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid model pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Reload re-reads the model files and re-evaluates the program. A failed
// reload keeps the previous fixpoint.
func (s *MangleStore) Reload() error {
	if len(s.patterns) == 0 {
		return s.evaluate(s.sources)
	}
	files, err := ExpandPatterns(s.patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return engine.NewPermanentError("no model files match "+strings.Join(s.patterns, ", "), nil).
			WithCode(engine.ErrCodeValidation)
	}
	sources := make([]Source, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("failed to read model file %s: %w", f, err)
		}
		sources = append(sources, Source{Name: f, Text: string(data)})
	}
	return s.evaluate(sources)
}

// Files returns the model files matched by the store's patterns.
func (s *MangleStore) Files() ([]string, error) {
	return ExpandPatterns(s.patterns)
}

func (s *MangleStore) evaluate(sources []Source) error {
	var b strings.Builder
	b.WriteString(schema)
	for _, src := range sources {
		fmt.Fprintf(&b, "\n# source: %s\n%s\n", src.Name, src.Text)
	}

	unit, err := parse.Unit(strings.NewReader(b.String()))
	if err != nil {
		return engine.NewPermanentError("failed to parse model", err).WithCode(engine.ErrCodeValidation)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return engine.NewPermanentError("failed to analyze model", err).WithCode(engine.ErrCodeValidation)
	}
	store := factstore.NewSimpleInMemoryStore()
	stats, err := mengine.EvalProgramWithStats(info, store)
	if err != nil {
		return engine.NewPermanentError("failed to evaluate model", err).WithCode(engine.ErrCodeValidation)
	}

	s.mu.Lock()
	s.store = store
	s.mu.Unlock()

	s.logger.Debug().
		Int("sources", len(sources)).
		Interface("stats", stats).
		Msg("Model evaluated")
	return nil
}

// Query answers a single atom such as "property_row(P, C, K, T, R, D)".
// Variables bind row columns; "_" is a wildcard; constants filter.
func (s *MangleStore) Query(ctx context.Context, query string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atom, err := parse.Atom(query)
	if err != nil {
		return nil, engine.NewPermanentError("invalid query atom", err).
			WithCode(engine.ErrCodeQueryFailed).
			WithDetail("query", query)
	}

	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()

	var rows []Row
	err = store.GetFacts(ast.NewQuery(atom.Predicate), func(fact ast.Atom) error {
		if row, ok := bind(atom, fact); ok {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, engine.NewPermanentError("query failed", err).
			WithCode(engine.ErrCodeQueryFailed).
			WithDetail("query", query)
	}
	return rows, nil
}

// Dialect implements Store.
func (s *MangleStore) Dialect() Dialect {
	return DialectMangle
}

// Close implements Store.
func (s *MangleStore) Close() error {
	return nil
}

func bind(pattern, fact ast.Atom) (Row, bool) {
	if len(pattern.Args) != len(fact.Args) {
		return nil, false
	}
	row := make(Row, len(pattern.Args))
	for i, arg := range pattern.Args {
		val, ok := fact.Args[i].(ast.Constant)
		if !ok {
			return nil, false
		}
		switch a := arg.(type) {
		case ast.Variable:
			if a.Symbol == "_" {
				continue
			}
			t := termOf(val)
			if prev, seen := row[a.Symbol]; seen && prev != t {
				return nil, false
			}
			row[a.Symbol] = t
		case ast.Constant:
			if a.Type != val.Type || a.Symbol != val.Symbol || a.NumValue != val.NumValue {
				return nil, false
			}
		}
	}
	return row, true
}

func termOf(c ast.Constant) Term {
	switch c.Type {
	case ast.NameType:
		return Term{Kind: TermIRI, Value: c.Symbol}
	case ast.StringType:
		return Term{Kind: TermString, Value: c.Symbol}
	case ast.NumberType:
		return Term{Kind: TermNumber, Value: strconv.FormatInt(c.NumValue, 10)}
	case ast.Float64Type:
		return Term{Kind: TermNumber, Value: c.String()}
	}
	return Term{Kind: TermString, Value: c.String()}
}
