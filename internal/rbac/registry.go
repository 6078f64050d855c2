package rbac

import (
	"fmt"
	"sort"
)

// Registry records the resources and actions the application declares.
// Capability catalogs and permission guards are checked against it at
// startup so a typo in a resource or action name fails loudly instead of
// silently denying at runtime.
type Registry struct {
	resources map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]map[string]struct{})}
}

// Declare registers a resource with its actions. Declaring the same
// resource again extends its action set.
func (r *Registry) Declare(resource string, actions ...string) {
	set, ok := r.resources[resource]
	if !ok {
		set = make(map[string]struct{}, len(actions))
		r.resources[resource] = set
	}
	for _, a := range actions {
		set[a] = struct{}{}
	}
}

// Knows reports whether the (resource, action) pair was declared.
func (r *Registry) Knows(resource, action string) bool {
	if r == nil {
		return false
	}
	set, ok := r.resources[resource]
	if !ok {
		return false
	}
	_, ok = set[action]
	return ok
}

// Check validates a capability against the registry.
func (r *Registry) Check(c Capability) error {
	if !r.Knows(c.Resource, c.Action) {
		return fmt.Errorf("rbac: capability %s not declared", c)
	}
	return nil
}

// Resources returns declared resource names in sorted order.
func (r *Registry) Resources() []string {
	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry declares the resources managed by the fleet admin.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Declare("vehicles", "read", "create", "update", "delete")
	reg.Declare("drivers", "read", "create", "update", "delete")
	reg.Declare("trips", "read", "create", "update", "approve")
	reg.Declare("documents", "read", "upload", "review", "approve")
	reg.Declare("maintenance", "read", "schedule", "close")
	reg.Declare("companies", "read", "update")
	reg.Declare("notifications", "read", "send")
	reg.Declare("audit", "read", "export")
	return reg
}
