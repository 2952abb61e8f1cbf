package capability

import (
	"context"
	"fmt"
)

// Kind identifies the executor family a capability belongs to.
type Kind string

const (
	KindRequest     Kind = "request"
	KindInteraction Kind = "interaction"
)

// Capability defines the interface for the executors a step can be routed to.
// A capability does no work by itself: Open acquires the backend session
// (HTTP client, browser tab) that instructions are invoked against.
type Capability interface {
	Name() string
	Description() string
	Kind() Kind
	Open(ctx context.Context) (Session, error)
}

// Session is an acquired backend resource. It is not safe for concurrent use.
type Session interface {
	Invoke(ctx context.Context, instruction string) (string, error)
	Close() error
}

// Info is the planner-facing view of a capability.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
}

// Registry holds the capabilities available to every run. It is built once and
// never mutated afterwards, so it can be shared between runs without locking.
type Registry struct {
	ordered []Capability
	byName  map[string]Capability
}

func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{byName: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if c == nil {
			return nil, fmt.Errorf("cannot register nil capability")
		}
		name := c.Name()
		if name == "" {
			return nil, fmt.Errorf("capability name cannot be empty")
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("capability '%s' is already registered", name)
		}
		r.byName[name] = c
		r.ordered = append(r.ordered, c)
	}
	return r, nil
}

// Get returns the capability registered under name, or nil.
func (r *Registry) Get(name string) Capability {
	if r == nil {
		return nil
	}
	return r.byName[name]
}

// ByKind returns the first registered capability of the given kind, or nil.
func (r *Registry) ByKind(kind Kind) Capability {
	if r == nil {
		return nil
	}
	for _, c := range r.ordered {
		if c.Kind() == kind {
			return c
		}
	}
	return nil
}

// Infos lists the registered capabilities in registration order.
func (r *Registry) Infos() []Info {
	if r == nil {
		return nil
	}
	infos := make([]Info, 0, len(r.ordered))
	for _, c := range r.ordered {
		infos = append(infos, Info{Name: c.Name(), Description: c.Description(), Kind: c.Kind()})
	}
	return infos
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ordered)
}
