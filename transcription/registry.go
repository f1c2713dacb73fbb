package transcription

import (
	"fmt"

	"github.com/skillsenselab/chorus/errors"
)

// Registry is the immutable backend table, read-only after startup.
type Registry struct {
	descriptors []ServiceDescriptor
	byName      map[string]ServiceDescriptor
}

// NewRegistry builds a registry from the configured descriptors.
// Order is preserved and drives the ordering of every envelope.
func NewRegistry(descriptors []ServiceDescriptor) (*Registry, error) {
	byName := make(map[string]ServiceDescriptor, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("transcription: descriptor with empty name")
		}
		if d.BaseURL == "" {
			return nil, fmt.Errorf("transcription: backend %s has no base URL", d.Name)
		}
		if _, exists := byName[d.Name]; exists {
			return nil, fmt.Errorf("transcription: duplicate backend name %s", d.Name)
		}
		byName[d.Name] = d
	}

	return &Registry{
		descriptors: append([]ServiceDescriptor(nil), descriptors...),
		byName:      byName,
	}, nil
}

// Lookup returns the descriptor for a backend name.
func (r *Registry) Lookup(name string) (ServiceDescriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns all backend names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// Descriptors returns a copy of all descriptors in registry order.
func (r *Registry) Descriptors() []ServiceDescriptor {
	return append([]ServiceDescriptor(nil), r.descriptors...)
}

// Resolve maps requested names onto descriptors in registry order.
// An empty request resolves to the full registry. Unknown names are
// an InvalidInput error, the only error the dispatch path can return.
func (r *Registry) Resolve(names []string) ([]ServiceDescriptor, error) {
	if len(names) == 0 {
		return r.Descriptors(), nil
	}

	requested := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.byName[name]; !ok {
			return nil, errors.InvalidInput("models", fmt.Sprintf("unknown backend %q", name))
		}
		requested[name] = true
	}

	resolved := make([]ServiceDescriptor, 0, len(requested))
	for _, d := range r.descriptors {
		if requested[d.Name] {
			resolved = append(resolved, d)
		}
	}
	return resolved, nil
}
