// Package planner runs the horizon search.
//
// A request fetches the capability model once, then builds and checks one
// problem per horizon, starting at one happening and growing until a problem
// is satisfiable or the maximum is reached. The first satisfiable horizon is
// decoded into a plan and passed through the policy engine. When every
// horizon up to the maximum is unsatisfiable, the tracked assertions of the
// largest one are shrunk to a minimal unsatisfiable core that names the
// initial values and preconditions responsible.
//
// With Parallelism above one, horizons are solved on a bounded pool of
// workers. A satisfiable horizon cancels all larger ones, and the result is
// the same as the sequential search would give.
//
// Runs, attempts and artifacts are recorded when a run store and an
// artifact sink are configured. Failures to record them are logged and never
// fail the request.
package planner
