package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for search and retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure outside the model that may succeed on retry.
	// Examples: solver process crashes, fact endpoint timeouts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassRecoverable indicates an outcome the horizon search absorbs by growing
	// the horizon. Only Unsatisfiable carries this class.
	ErrorClassRecoverable ErrorClass = "recoverable"

	// ErrorClassTerminal indicates the search ran to completion without a plan.
	ErrorClassTerminal ErrorClass = "terminal"

	// ErrorClassPermanent indicates a contract or model error that aborts the request.
	// Examples: undeclared properties, malformed expression trees, unknown comparators.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code identifies the error kind for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the IRI of the entity that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s)%s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s)%s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// NewNotDeclaredError reports a lookup of an entity that was never declared.
func NewNotDeclaredError(kind, iri string) *EngineError {
	return NewPermanentError(kind+" not declared", nil).
		WithCode(ErrCodeNotDeclared).
		WithResource(iri)
}

// NewOutOfRangeError reports a lookup of a declared entity outside the declared horizon.
func NewOutOfRangeError(kind, iri string, happening, event int) *EngineError {
	return NewPermanentError(fmt.Sprintf("%s occurrence (%d,%d) outside the declared horizon", kind, happening, event), nil).
		WithCode(ErrCodeIndexOutOfRange).
		WithResource(iri).
		WithDetail("happening", happening).
		WithDetail("event", event)
}

// NewMalformedExpressionError reports a structurally invalid expression tree.
func NewMalformedExpressionError(root, reason string) *EngineError {
	return NewPermanentError("malformed expression: "+reason, nil).
		WithCode(ErrCodeMalformedExpression).
		WithResource(root)
}

// NewUnsupportedRelationError reports a comparator outside the supported set.
func NewUnsupportedRelationError(relation string) *EngineError {
	return NewPermanentError(fmt.Sprintf("unsupported relation %q", relation), nil).
		WithCode(ErrCodeUnsupportedRelation)
}

// NewUnsupportedValueError reports a literal that does not fit its data type.
func NewUnsupportedValueError(dataType DataType, literal string) *EngineError {
	return NewPermanentError(fmt.Sprintf("unsupported %s literal %q", dataType, literal), nil).
		WithCode(ErrCodeUnsupportedValue)
}

// NewUnsatisfiableError reports that no plan exists at the given horizon.
func NewUnsatisfiableError(happenings int) *EngineError {
	return (&EngineError{
		Class:   ErrorClassRecoverable,
		Message: fmt.Sprintf("no plan with %d happenings", happenings),
		Code:    ErrCodeUnsatisfiable,
	}).WithDetail("happenings", happenings)
}

// NewExhaustedError reports that the horizon search reached its bound without a plan.
func NewExhaustedError(maxHappenings int, core []string) *EngineError {
	return (&EngineError{
		Class:   ErrorClassTerminal,
		Message: fmt.Sprintf("no plan found within %d happenings", maxHappenings),
		Code:    ErrCodeExhausted,
	}).WithDetail("max_happenings", maxHappenings).WithDetail("unsat_core", core)
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasCode(err error, codes ...string) bool {
	var e *EngineError
	if !errors.As(err, &e) {
		return false
	}
	for _, c := range codes {
		if e.Code == c {
			return true
		}
	}
	return false
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return IsTransient(err)
}

// IsNotFound reports lookups of undeclared entities and out-of-range time indices.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotDeclared, ErrCodeIndexOutOfRange)
}

// IsOutOfRange distinguishes an out-of-range lookup from an undeclared one.
func IsOutOfRange(err error) bool {
	return hasCode(err, ErrCodeIndexOutOfRange)
}

// IsMalformedExpression returns true for structurally invalid expression trees.
func IsMalformedExpression(err error) bool {
	return hasCode(err, ErrCodeMalformedExpression)
}

// IsUnsupported returns true for unsupported comparators and value literals.
func IsUnsupported(err error) bool {
	return hasCode(err, ErrCodeUnsupportedRelation, ErrCodeUnsupportedValue)
}

// IsUnsatisfiable returns true if a single horizon had no plan.
func IsUnsatisfiable(err error) bool {
	return hasCode(err, ErrCodeUnsatisfiable)
}

// IsExhausted returns true if the whole horizon range had no plan.
func IsExhausted(err error) bool {
	return hasCode(err, ErrCodeExhausted)
}

// Error codes.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotDeclared         = "NOT_DECLARED"
	ErrCodeIndexOutOfRange     = "INDEX_OUT_OF_RANGE"
	ErrCodeMalformedExpression = "MALFORMED_EXPRESSION"
	ErrCodeUnsupportedRelation = "UNSUPPORTED_RELATION"
	ErrCodeUnsupportedValue    = "UNSUPPORTED_VALUE_LITERAL"
	ErrCodeUnsatisfiable       = "UNSATISFIABLE"
	ErrCodeExhausted           = "EXHAUSTED"
	ErrCodeSolverFailed        = "SOLVER_FAILED"
	ErrCodeQueryFailed         = "QUERY_FAILED"
	ErrCodeTimeout             = "TIMEOUT"
)
