// Package engine provides the shared vocabulary of the capability planner.
//
// # Overview
//
// The planner turns a declarative description of capabilities into a
// time-indexed satisfiability problem and searches increasing horizons until
// a plan exists. Every other package speaks in terms of the types declared
// here:
//
//   - DataType: value domain of a property (real, boolean, integer)
//   - RelationType: whether a property is read (Input) or written (Output)
//   - CapabilityType: provided capabilities versus the required goal capability
//   - Effect: how an invoked capability changes one of its outputs
//   - Comparator: the relation used by preconditions, inits and goals
//   - ExpressionGoal: the intent of an instance description
//
// # Error Classification
//
// Errors are classified so the horizon search can tell what to do next:
//
//   - Permanent: contract and model errors, the planning request aborts
//   - Transient: solver process or network failures, safe to retry
//   - Recoverable: a single horizon is unsatisfiable, the search grows the horizon
//   - Terminal: every horizon up to the bound is unsatisfiable
//
// Codes identify the kind within a class:
//
//	if engine.IsNotFound(err) && engine.IsOutOfRange(err) {
//	    // declared, but the time index is outside the horizon
//	}
//
// # Literals
//
// Boolean literals are exactly "true" and "false". Numeric literals are
// decimals or fractions and are kept as exact rationals until they reach
// the solver.
package engine
