// Package plan decodes a satisfying assignment into a plan.
//
// The decoder never parses variable names: the property and capability
// registries that declared the variables resolve them back to their
// entities. Every true invocation variable becomes an application in the
// step of its happening, with the inputs of the capability bound at the
// first event and its outputs at the last. The JSON encoding of Plan is the
// plan document written to artifact sinks and returned by the HTTP API.
package plan
