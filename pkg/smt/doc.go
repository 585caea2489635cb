// Package smt holds the solver-facing formula representation: sorted terms,
// an SMT-LIB2 printer and parser, problems with labelled assertions, and
// model values.
//
// Text produced elsewhere (for example by the expression flattener) never
// reaches a solver unchecked. Problem.Merge parses it against the problem's
// declarations, rejecting undeclared symbols and ill-sorted applications.
package smt
