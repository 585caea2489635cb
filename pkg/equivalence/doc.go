// Package equivalence decides which properties of different capabilities
// denote the same real-world quantity.
//
// Two properties are related implicitly when Equivalent holds for them,
// explicitly when an equality constraint names both, and transitively
// through chains of provided properties. Required properties take part in
// direct pairs but never in transitive ones, so a goal cannot merge two
// otherwise unrelated quantities.
//
// A Session is created per planning request and passed to every
// constraint generator. The relation is computed once, on first use.
package equivalence
