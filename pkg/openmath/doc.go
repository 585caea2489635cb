// Package openmath flattens OpenMath expression trees into SMT-LIB terms.
//
// Build indexes the expression rows of a model into a Forest. Flatten renders
// one root application at a given happening and event:
//
//	eq(pos_out, plus(pos_in, 2))  =>  (= |pos_out_0_1| (+ |pos_in_0_1| 2))
//
// Structural problems such as cycles, unknown operators or arity violations
// are reported as MALFORMED_EXPRESSION errors naming the root.
package openmath
