package workflow

import (
	"context"
	"time"

	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
)

// EntityType names a family of tracked business entities.
type EntityType string

const (
	EntityTrip           EntityType = "trip"
	EntityDocument       EntityType = "document"
	EntityMaintenanceJob EntityType = "maintenance_job"
)

// Metadata keys stamped on every committed transition.
const (
	MetaLastAction   = "lastAction"
	MetaLastActionBy = "lastActionBy"
	MetaLastActionAt = "lastActionAt"
)

// Instance is the persisted workflow record for one tracked entity. It is
// created when the entity enters its first trackable state, mutated only
// through a committed transition and never deleted; terminal states are
// retained for audit history.
type Instance struct {
	ID           string
	EntityType   EntityType
	EntityID     string
	CurrentState string
	AssignedTo   string
	CompanyID    string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PermissionChecker is the slice of the permission resolver the state
// machine needs. *rbac.Resolver satisfies it.
type PermissionChecker interface {
	HasPermission(ctx context.Context, role rbac.Role, resource, action string) bool
}

// Guard is the predicate attached to a transition rule. The union is
// closed: RoleGuard and PermissionGuard are the only implementations.
type Guard interface {
	allows(ctx context.Context, p rbac.Principal, perms PermissionChecker) bool
}

// RoleGuard passes when the principal's role is in the enumerated set.
// There is no hierarchy climbing: a company_admin does not satisfy a
// driver-only guard. Guards that should admit several roles list them all.
type RoleGuard struct {
	Roles []rbac.Role
}

func (g RoleGuard) allows(ctx context.Context, p rbac.Principal, perms PermissionChecker) bool {
	for _, role := range g.Roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// PermissionGuard passes when the permission resolver grants the pair.
// Full-access roles therefore satisfy every permission guard.
type PermissionGuard struct {
	Resource string
	Action   string
}

func (g PermissionGuard) allows(ctx context.Context, p rbac.Principal, perms PermissionChecker) bool {
	if perms == nil {
		return false
	}
	return perms.HasPermission(ctx, p.Role, g.Resource, g.Action)
}

// Rule is a guarded edge in an entity type's state graph.
type Rule struct {
	From   string
	To     string
	Action string
	Guard  Guard
}

// Event is the audit record emitted once per committed transition.
type Event struct {
	EventType   string    `json:"event_type"`
	WorkflowID  string    `json:"workflow_id"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	Action      string    `json:"action"`
	FromState   string    `json:"from_state"`
	ToState     string    `json:"to_state"`
	PrincipalID string    `json:"principal_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventTypeAction is the event_type every transition event carries.
const EventTypeAction = "workflow_action"

// AuditSink receives transition events. Emission is best effort: failures
// are logged and never roll back a committed transition.
type AuditSink interface {
	Append(ctx context.Context, ev Event) error
}

// Store persists workflow instances. Conditional updates are the store's
// contract: of two racing writers that read the same state, exactly one
// CASUpdate succeeds and the other sees shared.ErrConflict.
type Store interface {
	LoadInstance(ctx context.Context, entityType EntityType, entityID string) (Instance, error)
	Create(ctx context.Context, inst Instance) (Instance, error)
	CASUpdate(ctx context.Context, inst Instance, expectedUpdatedAt time.Time) (Instance, error)
	ListByCompany(ctx context.Context, companyID string, entityType EntityType, limit, offset int) ([]Instance, int, error)
}
