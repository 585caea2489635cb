package engine

import (
	"math/big"
	"strings"
)

// DataType is the value domain of a property.
type DataType string

const (
	// DataTypeReal is a real-valued property. Unknown data types fall back to it.
	DataTypeReal DataType = "real"

	// DataTypeBoolean is a boolean property.
	DataTypeBoolean DataType = "boolean"

	// DataTypeInteger is an integer-valued property.
	DataTypeInteger DataType = "integer"
)

// ParseDataType maps a data type IRI or name onto the closed set. Anything
// unrecognised is treated as real.
func ParseDataType(s string) DataType {
	switch strings.ToLower(LocalName(s)) {
	case "boolean", "bool":
		return DataTypeBoolean
	case "integer", "int", "long", "short", "nonnegativeinteger", "positiveinteger":
		return DataTypeInteger
	default:
		return DataTypeReal
	}
}

// Numeric reports whether the data type is real or integer.
func (d DataType) Numeric() bool {
	return d == DataTypeReal || d == DataTypeInteger
}

// RelationType is the role a property plays for its capability.
type RelationType string

const (
	// RelationInput marks a property read at the start of a happening.
	RelationInput RelationType = "Input"

	// RelationOutput marks a property written at the end of a happening.
	RelationOutput RelationType = "Output"
)

// ParseRelationType parses an input/output role IRI or name.
func ParseRelationType(s string) (RelationType, error) {
	switch strings.ToLower(LocalName(s)) {
	case "input", "hasinput", "has_input":
		return RelationInput, nil
	case "output", "hasoutput", "has_output":
		return RelationOutput, nil
	}
	return "", NewPermanentError("unknown relation type "+s, nil).WithCode(ErrCodeValidation)
}

// CapabilityType distinguishes capabilities a resource offers from the goal capability.
type CapabilityType string

const (
	// CapabilityProvided is a capability some resource can execute.
	CapabilityProvided CapabilityType = "provided"

	// CapabilityRequired is the goal capability the planner has to satisfy.
	CapabilityRequired CapabilityType = "required"
)

// ParseCapabilityType parses a capability kind.
func ParseCapabilityType(s string) (CapabilityType, error) {
	switch strings.ToLower(LocalName(s)) {
	case "provided", "providedcapability":
		return CapabilityProvided, nil
	case "required", "requiredcapability":
		return CapabilityRequired, nil
	}
	return "", NewPermanentError("unknown capability type "+s, nil).WithCode(ErrCodeValidation)
}

// Effect classifies what invoking a capability does to one of its outputs.
type Effect string

const (
	// EffectNone is the zero value: the capability does not touch the output.
	EffectNone               Effect = ""
	EffectNoChange           Effect = "no_change"
	EffectNumericConstant    Effect = "numeric_constant"
	EffectSetTrue            Effect = "set_true"
	EffectSetFalse           Effect = "set_false"
	EffectChangeByExpression Effect = "change_by_expression"
)

// Influences reports whether the effect may change the property value.
func (e Effect) Influences() bool {
	switch e {
	case EffectNumericConstant, EffectSetTrue, EffectSetFalse, EffectChangeByExpression:
		return true
	case EffectNone, EffectNoChange:
		return false
	}
	return false
}

// SetsTrue reports whether the effect can drive a boolean property to true.
func (e Effect) SetsTrue() bool {
	return e == EffectSetTrue || e == EffectChangeByExpression
}

// SetsFalse reports whether the effect can drive a boolean property to false.
func (e Effect) SetsFalse() bool {
	return e == EffectSetFalse || e == EffectChangeByExpression
}

// Comparator is a binary relation between a property value and a literal.
type Comparator string

const (
	ComparatorLess         Comparator = "<"
	ComparatorLessEqual    Comparator = "<="
	ComparatorEqual        Comparator = "="
	ComparatorNotEqual     Comparator = "!="
	ComparatorGreaterEqual Comparator = ">="
	ComparatorGreater      Comparator = ">"
)

// ParseComparator parses one of < <= = != >= >. An empty relation means equality.
func ParseComparator(s string) (Comparator, error) {
	switch c := Comparator(strings.TrimSpace(s)); c {
	case "":
		return ComparatorEqual, nil
	case ComparatorLess, ComparatorLessEqual, ComparatorEqual,
		ComparatorNotEqual, ComparatorGreaterEqual, ComparatorGreater:
		return c, nil
	}
	return "", NewUnsupportedRelationError(s)
}

// ExpressionGoal is the intent of an instance description.
type ExpressionGoal string

const (
	// GoalRequirement is a precondition on provided inputs and a goal on required properties.
	GoalRequirement ExpressionGoal = "Requirement"

	// GoalAssurance is the value a capability guarantees for an output.
	GoalAssurance ExpressionGoal = "Assurance"

	// GoalActualValue is the initial value of a property.
	GoalActualValue ExpressionGoal = "Actual_Value"
)

// ParseExpressionGoal parses an expression goal IRI or name.
func ParseExpressionGoal(s string) (ExpressionGoal, error) {
	switch strings.ToLower(strings.ReplaceAll(LocalName(s), "_", "")) {
	case "requirement":
		return GoalRequirement, nil
	case "assurance":
		return GoalAssurance, nil
	case "actualvalue":
		return GoalActualValue, nil
	}
	return "", NewPermanentError("unknown expression goal "+s, nil).WithCode(ErrCodeValidation)
}

// ParseBoolLiteral accepts exactly "true" and "false".
func ParseBoolLiteral(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, NewUnsupportedValueError(DataTypeBoolean, s)
}

// ParseNumberLiteral parses a decimal or fractional literal for a numeric data type.
func ParseNumberLiteral(dt DataType, s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return nil, NewUnsupportedValueError(dt, s)
	}
	if dt == DataTypeInteger && !r.IsInt() {
		return nil, NewUnsupportedValueError(dt, s)
	}
	return r, nil
}

// LocalName returns the fragment or last path segment of an IRI.
func LocalName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/:"); i >= 0 && i < len(iri)-1 {
		return iri[i+1:]
	}
	return iri
}
