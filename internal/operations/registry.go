package operations

import (
	"fmt"
	"slices"
	"sync"
)

// Registry holds the pipeline steps in registration order
type Registry struct {
	mu    sync.RWMutex
	steps []Step
	index map[string]int
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register appends step. IDs must be non-empty and unique.
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register a nil step")
	}
	id := step.ID()
	if id == "" {
		return fmt.Errorf("step id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.index[id]; dup {
		return fmt.Errorf("step %q is already registered", id)
	}
	r.index[id] = len(r.steps)
	r.steps = append(r.steps, step)
	return nil
}

// Get returns the step registered under id
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("step %q is not registered", id)
	}
	return r.steps[i], nil
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[id]
	return ok
}

// List returns the steps in registration order
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.steps)
}

// ListIDs returns the step ids in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.steps))
	for i, s := range r.steps {
		ids[i] = s.ID()
	}
	return ids
}

// Count returns the number of registered steps
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// GetDependencyOrder returns the steps in waves: each wave holds every step
// whose dependencies all ran in earlier waves, in registration order. With
// clean, aggregate, population, normalize, publish registered that yields
// clean, population, aggregate, normalize, publish.
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.steps {
		for _, dep := range s.GetDependencies() {
			if _, ok := r.index[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on non-existent step %q", s.ID(), dep)
			}
		}
	}

	placed := make(map[string]bool, len(r.steps))
	ordered := make([]Step, 0, len(r.steps))
	for len(ordered) < len(r.steps) {
		var wave []Step
		for _, s := range r.steps {
			if !placed[s.ID()] && r.ready(s, placed) {
				wave = append(wave, s)
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("dependency cycle among steps %v", r.unplaced(placed))
		}
		for _, s := range wave {
			placed[s.ID()] = true
		}
		ordered = append(ordered, wave...)
	}
	return ordered, nil
}

func (r *Registry) ready(s Step, placed map[string]bool) bool {
	for _, dep := range s.GetDependencies() {
		if !placed[dep] {
			return false
		}
	}
	return true
}

func (r *Registry) unplaced(placed map[string]bool) []string {
	var ids []string
	for _, s := range r.steps {
		if !placed[s.ID()] {
			ids = append(ids, s.ID())
		}
	}
	return ids
}

// ValidateDependencies fails on a missing dependency or a cycle
func (r *Registry) ValidateDependencies() error {
	_, err := r.GetDependencyOrder()
	return err
}

// GetDependents returns the steps that list stepID as a direct dependency
func (r *Registry) GetDependents(stepID string) []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dependents []Step
	for _, s := range r.steps {
		if slices.Contains(s.GetDependencies(), stepID) {
			dependents = append(dependents, s)
		}
	}
	return dependents
}
