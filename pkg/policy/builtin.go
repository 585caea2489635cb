package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		singleCapabilityPerStepPolicy(),
		planLengthPolicy(),
		forbiddenCapabilitiesPolicy(),
		emptyPlanPolicy(),
	}
}

// singleCapabilityPerStepPolicy flags steps that invoke more than one
// capability.
func singleCapabilityPerStepPolicy() Policy {
	return Policy{
		Name:        "single-capability-per-step",
		Description: "Flags plan steps that invoke more than one capability at the same happening",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"structure"},
		Rego: `package capplan.policies.single_capability

import rego.v1

deny contains violation if {
	some step in input.plan.plan_steps
	count(step.capability_applications) > 1
	iris := [app.capability_iri | some app in step.capability_applications]
	violation := {
		"message": sprintf("Step %d invokes %d capabilities: %s", [step.step_number, count(iris), concat(", ", iris)]),
		"step": step.step_number,
	}
}
`,
	}
}

// planLengthPolicy rejects plans longer than the requested bound.
func planLengthPolicy() Policy {
	return Policy{
		Name:        "plan-length-limit",
		Description: "Rejects plans with more steps than request.max_plan_length",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"limits"},
		Rego: `package capplan.policies.plan_length

import rego.v1

deny contains violation if {
	limit := input.request.max_plan_length
	limit > 0
	input.plan.plan_length > limit
	violation := {
		"message": sprintf("Plan has %d steps, the limit is %d", [input.plan.plan_length, limit]),
	}
}
`,
	}
}

// forbiddenCapabilitiesPolicy rejects plans invoking a forbidden capability.
func forbiddenCapabilitiesPolicy() Policy {
	return Policy{
		Name:        "forbidden-capabilities",
		Description: "Rejects plans that invoke a capability listed in request.forbidden_capabilities",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety"},
		Rego: `package capplan.policies.forbidden

import rego.v1

deny contains violation if {
	some step in input.plan.plan_steps
	some app in step.capability_applications
	app.capability_iri in input.request.forbidden_capabilities
	violation := {
		"message": sprintf("Capability %s is forbidden", [app.capability_iri]),
		"capability": app.capability_iri,
		"step": step.step_number,
	}
}
`,
	}
}

// emptyPlanPolicy notes plans whose goal already holds initially.
func emptyPlanPolicy() Policy {
	return Policy{
		Name:        "empty-plan",
		Description: "Reports plans that invoke no capability because the initial state already satisfies the goal",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"structure"},
		Rego: `package capplan.policies.empty_plan

import rego.v1

deny contains violation if {
	input.plan.plan_length == 0
	violation := {
		"message": sprintf("Goal of %s holds without invoking any capability", [input.request.required_capability]),
	}
}
`,
	}
}
