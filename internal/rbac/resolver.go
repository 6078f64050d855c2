package rbac

import (
	"context"
	"log/slog"
)

// Override is a dynamic per-role capability adjustment loaded from the
// override store. Granted=false revokes a statically granted capability.
type Override struct {
	Capability
	Granted bool
}

// OverrideStore supplies dynamic capability overrides for a role. An empty
// slice means no overrides exist; errors mean the store is unreachable.
type OverrideStore interface {
	Overrides(ctx context.Context, role Role) ([]Override, error)
}

// Resolver decides whether a role may perform a (resource, action). It is a
// pure decision function: no side effects, and absence of data is denial.
type Resolver struct {
	catalog   *Catalog
	overrides OverrideStore
	logger    *slog.Logger
}

// NewResolver constructs a Resolver. The override store is optional; pass
// nil to resolve from the static catalog alone.
func NewResolver(catalog *Catalog, overrides OverrideStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, overrides: overrides, logger: logger}
}

// HasPermission reports whether the role may perform action on resource.
// Full-access roles short-circuit to true. Matching is exact: no prefix or
// wildcard matching on individual capabilities, so the rule stays auditable.
// An unreachable override store falls back to the static catalog rather than
// failing closed on infrastructure unavailability.
func (r *Resolver) HasPermission(ctx context.Context, role Role, resource, action string) bool {
	if role == "" {
		return false
	}
	if role.FullAccess() {
		return true
	}
	cap := Capability{Resource: resource, Action: action}
	if r.overrides != nil {
		rows, err := r.overrides.Overrides(ctx, role)
		if err != nil {
			r.logger.Warn("permission override lookup failed, using static catalog",
				slog.String("role", string(role)), slog.Any("error", err))
		} else {
			for _, o := range rows {
				if o.Capability == cap {
					return o.Granted
				}
			}
		}
	}
	return r.catalog.CapabilitiesFor(role).Contains(cap)
}

// EffectiveCapabilities returns the enumerated capabilities the role holds
// after overrides are applied, for the "what can I do" endpoint. Full-access
// roles return (nil, true).
func (r *Resolver) EffectiveCapabilities(ctx context.Context, role Role) ([]Capability, bool) {
	if role == "" {
		return nil, false
	}
	if role.FullAccess() {
		return nil, true
	}
	static := r.catalog.CapabilitiesFor(role)
	effective := make(map[Capability]struct{})
	for _, c := range static.List() {
		effective[c] = struct{}{}
	}
	if r.overrides != nil {
		rows, err := r.overrides.Overrides(ctx, role)
		if err != nil {
			r.logger.Warn("permission override lookup failed, using static catalog",
				slog.String("role", string(role)), slog.Any("error", err))
		} else {
			for _, o := range rows {
				if o.Granted {
					effective[o.Capability] = struct{}{}
				} else {
					delete(effective, o.Capability)
				}
			}
		}
	}
	set := CapabilitySet{members: effective}
	return set.List(), false
}
