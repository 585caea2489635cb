package facts

import (
	"context"
	"strconv"
	"strings"
)

// TermKind is the lexical category of a bound value.
type TermKind string

const (
	TermIRI     TermKind = "iri"
	TermString  TermKind = "string"
	TermNumber  TermKind = "number"
	TermBoolean TermKind = "boolean"
)

// Term is one bound value of a result row. Value is always the lexical form.
type Term struct {
	Kind  TermKind `json:"kind"`
	Value string   `json:"value"`
}

// String returns the lexical form.
func (t Term) String() string {
	return t.Value
}

// Row is one solution of a query, keyed by variable name.
type Row map[string]Term

// Text returns the lexical form of a binding, or "" when unbound.
func (r Row) Text(name string) string {
	return r[name].Value
}

// Has reports whether the variable is bound to a non-empty value.
func (r Row) Has(name string) bool {
	t, ok := r[name]
	return ok && t.Value != ""
}

// Int returns a binding parsed as an integer.
func (r Row) Int(name string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(r[name].Value))
}

// Dialect names the query language a store understands.
type Dialect string

const (
	// DialectMangle queries are single Datalog atoms over the local fact base.
	DialectMangle Dialect = "mangle"

	// DialectSPARQL queries are SPARQL 1.1 SELECT queries against an endpoint.
	DialectSPARQL Dialect = "sparql"
)

// Store answers queries against a capability model. Returned rows are
// shared with caches and must not be modified.
type Store interface {
	// Query runs query text in the store's dialect.
	Query(ctx context.Context, query string) ([]Row, error)

	// Dialect returns the query language of the store.
	Dialect() Dialect

	// Close releases the store.
	Close() error
}
