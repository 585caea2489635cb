// Package facts is the read side of the planner: it answers the catalog
// queries the variable model is built from.
//
// Two stores implement Store. MangleStore evaluates local model files, a set
// of Datalog facts over a small capability vocabulary, together with an
// embedded rule schema that derives one view per catalog query. SPARQLStore
// sends the equivalent SELECT queries to a remote endpoint.
//
//	store, err := facts.OpenMangleFiles(logger, "models/**/*.mg")
//	rows, err := facts.Select(ctx, store, facts.QueryProperties)
//
// CachedStore memoises results across the generators of one planning
// request and is reset between requests. Watcher reloads a MangleStore when
// its files change.
package facts
