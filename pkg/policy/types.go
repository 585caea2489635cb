package policy

import (
	"time"

	"github.com/openfroyo/capplan/pkg/plan"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that reject the plan.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that reject the plan.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity rejects a plan.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its package must define a
	// "deny" set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Capability is the capability IRI the violation refers to, if any.
	Capability string `json:"capability,omitempty"`

	// Step is the plan step the violation refers to, if any.
	Step *int `json:"step,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of evaluating every enabled policy.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as "input".
type Input struct {
	// Plan is the decoded plan.
	Plan *plan.Plan `json:"plan"`

	// Request describes the planning request that produced the plan.
	Request Request `json:"request"`
}

// Request describes a planning request to policies.
type Request struct {
	RunID         string `json:"run_id"`
	Required      string `json:"required_capability"`
	MaxHappenings int    `json:"max_happenings"`
	Horizon       int    `json:"horizon"`
	Backend       string `json:"backend"`
	// MaxPlanLength bounds the plan length when positive.
	MaxPlanLength int `json:"max_plan_length"`
	// ForbiddenCapabilities lists capability IRIs a plan must not invoke.
	ForbiddenCapabilities []string `json:"forbidden_capabilities"`
}
