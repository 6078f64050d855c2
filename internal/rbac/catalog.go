package rbac

import (
	"fmt"
	"sort"
)

// CapabilitySet is the result of a catalog lookup. Full-access roles carry
// the sentinel Full marker instead of an enumerated member set.
type CapabilitySet struct {
	Full    bool
	members map[Capability]struct{}
}

// Contains reports whether the set grants the capability. A full set
// contains everything; an empty set contains nothing (fail closed).
func (s CapabilitySet) Contains(c Capability) bool {
	if s.Full {
		return true
	}
	_, ok := s.members[c]
	return ok
}

// List returns the enumerated members sorted by resource then action.
// Empty for full sets, which have no enumeration.
func (s CapabilitySet) List() []Capability {
	caps := make([]Capability, 0, len(s.members))
	for c := range s.members {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool {
		if caps[i].Resource != caps[j].Resource {
			return caps[i].Resource < caps[j].Resource
		}
		return caps[i].Action < caps[j].Action
	})
	return caps
}

// Catalog is the static role to capability table. It is assembled once at
// startup and read-only afterwards, so lookups need no synchronisation.
type Catalog struct {
	grants map[Role]map[Capability]struct{}
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{grants: make(map[Role]map[Capability]struct{})}
}

// Grant adds capabilities to a role. Granting to a full-access role is a
// configuration mistake surfaced by Validate.
func (c *Catalog) Grant(role Role, caps ...Capability) {
	set, ok := c.grants[role]
	if !ok {
		set = make(map[Capability]struct{}, len(caps))
		c.grants[role] = set
	}
	for _, cap := range caps {
		set[cap] = struct{}{}
	}
}

// CapabilitiesFor looks up the capability set for a role. Unknown roles get
// the empty set; administrative roles get the full-access marker.
func (c *Catalog) CapabilitiesFor(role Role) CapabilitySet {
	if role.FullAccess() {
		return CapabilitySet{Full: true}
	}
	return CapabilitySet{members: c.grants[role]}
}

// Validate checks every granted capability against the registry and rejects
// grants made to full-access roles.
func (c *Catalog) Validate(reg *Registry) error {
	for role, set := range c.grants {
		if role.FullAccess() {
			return fmt.Errorf("rbac: role %s is full-access, enumerated grants are ignored", role)
		}
		for cap := range set {
			if err := reg.Check(cap); err != nil {
				return fmt.Errorf("rbac: role %s: %w", role, err)
			}
		}
	}
	return nil
}

// DefaultCatalog returns the stock grants for the built-in roles.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Grant(RoleSupervisor,
		Capability{"vehicles", "read"},
		Capability{"drivers", "read"},
		Capability{"trips", "read"},
		Capability{"trips", "approve"},
		Capability{"documents", "read"},
		Capability{"documents", "review"},
		Capability{"documents", "approve"},
		Capability{"maintenance", "read"},
		Capability{"maintenance", "schedule"},
		Capability{"maintenance", "close"},
		Capability{"audit", "read"},
	)
	c.Grant(RoleDriver,
		Capability{"vehicles", "read"},
		Capability{"trips", "read"},
		Capability{"trips", "create"},
		Capability{"trips", "update"},
		Capability{"documents", "read"},
		Capability{"documents", "upload"},
		Capability{"maintenance", "read"},
	)
	return c
}
