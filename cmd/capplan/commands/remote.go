package commands

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/planner"
)

// remotePlanners keeps one planner per SPARQL endpoint named in requests.
// At most size planners are kept; the least recently used is dropped.
type remotePlanners struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *planner.Planner]
	allowed map[string]bool
	build   func(endpoint string) (*planner.Planner, error)
}

func newRemotePlanners(size int, allowed []string, build func(string) (*planner.Planner, error)) (*remotePlanners, error) {
	cache, err := lru.New[string, *planner.Planner](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote planner cache: %w", err)
	}
	r := &remotePlanners{cache: cache, build: build}
	if len(allowed) > 0 {
		r.allowed = make(map[string]bool, len(allowed))
		for _, e := range allowed {
			r.allowed[e] = true
		}
	}
	return r, nil
}

// get returns the planner for endpoint, building it on first use.
func (r *remotePlanners) get(endpoint string) (*planner.Planner, error) {
	if r.allowed != nil && !r.allowed[endpoint] {
		return nil, engine.NewPermanentError("endpoint is not allowed", nil).
			WithCode(engine.ErrCodeValidation).
			WithResource(endpoint)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache.Get(endpoint); ok {
		return p, nil
	}
	p, err := r.build(endpoint)
	if err != nil {
		return nil, err
	}
	r.cache.Add(endpoint, p)
	return p, nil
}

// Len returns the number of planners kept.
func (r *remotePlanners) Len() int {
	return r.cache.Len()
}
