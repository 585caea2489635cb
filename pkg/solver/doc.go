// Package solver decides planning problems.
//
// Two backends implement Solver. Z3 starts a z3 process per check and talks
// SMT-LIB2 over its standard input, using :named assertions for unsat cores
// and minimize for the capability count objective. Gini encodes purely
// boolean problems as circuits and solves them in process; tracked
// assertions are guarded by assumed activation literals whose failed subset
// forms the core. Auto picks gini whenever a problem is boolean.
package solver
