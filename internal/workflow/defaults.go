package workflow

import "github.com/mbyo2/vehicle-log-sys/internal/rbac"

// TripRules is the trip lifecycle: drivers draft and submit, approvers
// decide, drivers complete or revise.
func TripRules() []Rule {
	return []Rule{
		{From: "draft", To: "submitted", Action: "submit", Guard: RoleGuard{Roles: []rbac.Role{rbac.RoleDriver}}},
		{From: "submitted", To: "approved", Action: "approve", Guard: PermissionGuard{Resource: "trips", Action: "approve"}},
		{From: "submitted", To: "rejected", Action: "reject", Guard: PermissionGuard{Resource: "trips", Action: "approve"}},
		{From: "approved", To: "completed", Action: "complete", Guard: RoleGuard{Roles: []rbac.Role{rbac.RoleDriver}}},
		{From: "rejected", To: "draft", Action: "revise", Guard: RoleGuard{Roles: []rbac.Role{rbac.RoleDriver}}},
	}
}

// DocumentRules is the compliance document lifecycle.
func DocumentRules() []Rule {
	return []Rule{
		{From: "uploaded", To: "under_review", Action: "review", Guard: PermissionGuard{Resource: "documents", Action: "review"}},
		{From: "under_review", To: "approved", Action: "approve", Guard: PermissionGuard{Resource: "documents", Action: "approve"}},
		{From: "under_review", To: "rejected", Action: "reject", Guard: PermissionGuard{Resource: "documents", Action: "approve"}},
		{From: "rejected", To: "uploaded", Action: "resubmit", Guard: RoleGuard{Roles: []rbac.Role{rbac.RoleDriver, rbac.RoleSupervisor}}},
	}
}

// MaintenanceRules is the maintenance job lifecycle.
func MaintenanceRules() []Rule {
	return []Rule{
		{From: "reported", To: "scheduled", Action: "schedule", Guard: PermissionGuard{Resource: "maintenance", Action: "schedule"}},
		{From: "scheduled", To: "in_progress", Action: "start", Guard: RoleGuard{Roles: []rbac.Role{rbac.RoleDriver, rbac.RoleSupervisor}}},
		{From: "in_progress", To: "completed", Action: "finish", Guard: PermissionGuard{Resource: "maintenance", Action: "close"}},
		{From: "scheduled", To: "cancelled", Action: "cancel", Guard: PermissionGuard{Resource: "maintenance", Action: "schedule"}},
	}
}

// DefaultTable loads the built-in rule sets against the registry.
func DefaultTable(reg *rbac.Registry) (*Table, error) {
	t := NewTable()
	if err := t.Load(EntityTrip, reg, TripRules()); err != nil {
		return nil, err
	}
	if err := t.Load(EntityDocument, reg, DocumentRules()); err != nil {
		return nil, err
	}
	if err := t.Load(EntityMaintenanceJob, reg, MaintenanceRules()); err != nil {
		return nil, err
	}
	return t, nil
}
