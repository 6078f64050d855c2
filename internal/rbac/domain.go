package rbac

import "fmt"

// Role represents a high-level permission grouping. The set is open ended:
// deployments may register additional roles in the catalog, but the four
// built-in roles cover the stock fleet admin.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleCompanyAdmin Role = "company_admin"
	RoleSupervisor   Role = "supervisor"
	RoleDriver       Role = "driver"
)

// FullAccess reports whether the role carries the administrative marker.
// Full-access roles bypass capability enumeration entirely so the catalog
// never has to be kept in sync as resources are added.
func (r Role) FullAccess() bool {
	return r == RoleSuperAdmin || r == RoleCompanyAdmin
}

// Capability is an atomic (resource, action) pair a role may perform.
type Capability struct {
	Resource string
	Action   string
}

func (c Capability) String() string {
	return fmt.Sprintf("%s:%s", c.Resource, c.Action)
}

// Principal describes the authenticated actor for one request. It is
// resolved once by the principal directory and passed explicitly into every
// core operation; nothing in this module reads an ambient current user.
type Principal struct {
	ID            string
	Role          Role
	CompanyID     string
	IsCurrentUser bool
}
