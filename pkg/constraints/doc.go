// Package constraints generates the assertions of a planning problem.
//
// Each Generator covers one family of constraints: preconditions, effects,
// frame axioms, resource mutexes, cross relations to the required
// capability, continuity between happenings, capability expressions, initial
// values and goals. Generators only read the Context and may run in any
// order. Assemble declares every variable and collects their output into an
// smt.Problem.
//
// Tracked assertions carry labels that name model entities, for example
// "precondition <capability> <property>" or "init <property>". They are the
// ones an unsat core can report.
package constraints
