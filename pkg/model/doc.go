// Package model turns catalog rows into the variable model of a planning
// problem.
//
// Fetch takes one snapshot of the capability model and selects the required
// capability. DeclareProperties, DeclareCapabilities and DeclareResources then
// build arena-indexed registries for a fixed horizon:
//
//	property variables    <IRI>_<happening>_<event>
//	capability variables  <IRI>_<happening>
//	required properties   <IRI>_0_0
//
// Every registry resolves variable names back to their entity so that solver
// models can be decoded without string parsing.
package model
