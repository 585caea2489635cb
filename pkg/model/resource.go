package model

import (
	"sort"

	"github.com/openfroyo/capplan/pkg/engine"
)

// Resource is a machine providing capabilities. Capabilities of one resource
// never run in the same happening.
type Resource struct {
	IRI          string
	Capabilities []CapabilityID
}

// ResourceRegistry groups the provided capabilities by resource.
type ResourceRegistry struct {
	resources []Resource
	byIRI     map[string]int
}

// DeclareResources builds the resource registry.
func DeclareResources(f *Facts, caps *CapabilityRegistry) (*ResourceRegistry, error) {
	r := &ResourceRegistry{byIRI: make(map[string]int)}
	for _, row := range f.Resources {
		if row.Text("Cap") == f.Required {
			continue
		}
		c, err := caps.Get(row.Text("Cap"))
		if err != nil {
			return nil, err
		}
		iri := row.Text("Resource")
		i, ok := r.byIRI[iri]
		if !ok {
			i = len(r.resources)
			r.byIRI[iri] = i
			r.resources = append(r.resources, Resource{IRI: iri})
		}
		res := &r.resources[i]
		if !containsCapability(res.Capabilities, c.ID) {
			res.Capabilities = append(res.Capabilities, c.ID)
		}
	}
	for i := range r.resources {
		ids := r.resources[i].Capabilities
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	}
	return r, nil
}

func containsCapability(ids []CapabilityID, id CapabilityID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// All returns every resource in declaration order.
func (r *ResourceRegistry) All() []Resource {
	return append([]Resource(nil), r.resources...)
}

// Get looks up a resource by IRI.
func (r *ResourceRegistry) Get(iri string) (Resource, error) {
	i, ok := r.byIRI[iri]
	if !ok {
		return Resource{}, engine.NewNotDeclaredError("resource", iri)
	}
	return r.resources[i], nil
}

// Len returns the number of resources.
func (r *ResourceRegistry) Len() int { return len(r.resources) }
