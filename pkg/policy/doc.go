// Package policy admits or rejects decoded plans using Open Policy Agent
// Rego policies.
//
// # Overview
//
// After the planner decodes a plan, the engine evaluates every enabled
// policy against an input document of the form
//
//	{
//	    "plan":    { "plan_steps": [...], "plan_length": 2, ... },
//	    "request": { "run_id": "...", "required_capability": "...", ... }
//	}
//
// The plan part is exactly the JSON a client receives. Each policy defines a
// "deny" set in its own package; every element of the set becomes a
// Violation. A violation of severity error or critical makes the result
// not allowed.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := eng.Evaluate(ctx, &policy.Input{
//	    Plan:    p,
//	    Request: policy.Request{Required: "urn:robot:task", MaxPlanLength: 5},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Allowed {
//	    for _, v := range result.Violations {
//	        fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// # Built-in Policies
//
//  1. single-capability-per-step - warns when a step invokes several capabilities
//  2. plan-length-limit - rejects plans longer than request.max_plan_length
//  3. forbidden-capabilities - rejects plans invoking request.forbidden_capabilities
//  4. empty-plan - notes plans that need no capability at all
//
// # Custom Policies
//
// Policies are loaded from .rego files, JSON definitions, directories and
// doublestar globs. A leading comment block becomes the description and a
// "# severity: <level>" line sets the severity:
//
//	# Grabbing is reserved for supervised runs.
//	# severity: error
//	package custom.no_grab
//
//	import rego.v1
//
//	deny contains violation if {
//	    some step in input.plan.plan_steps
//	    some app in step.capability_applications
//	    app.capability_iri == "urn:robot:grab"
//	    violation := {"message": "grab is not allowed", "capability": app.capability_iri}
//	}
//
// # Hot Reload
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.ReplacePolicies(ctx, policies)
//	})
package policy
