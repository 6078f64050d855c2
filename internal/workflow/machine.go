package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/shared"
)

// Machine applies guarded transitions to workflow instances. It holds no
// per-instance state of its own: the rule table and resolver are read-only
// after construction, so one Machine serves all requests concurrently.
type Machine struct {
	table  *Table
	perms  PermissionChecker
	store  Store
	sink   AuditSink
	logger *slog.Logger
	clock  func() time.Time
}

// NewMachine constructs a Machine. The sink may be nil when no auditing is
// wired, e.g. in tests of pure guard evaluation.
func NewMachine(table *Table, perms PermissionChecker, store Store, sink AuditSink, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		table:  table,
		perms:  perms,
		store:  store,
		sink:   sink,
		logger: logger,
		clock:  time.Now,
	}
}

// GetAvailableActions returns every action leaving the instance's current
// state whose guard the principal satisfies. Read-only and side-effect
// free; this backs the "what can I do now" query.
func (m *Machine) GetAvailableActions(ctx context.Context, principal rbac.Principal, inst Instance) ([]string, error) {
	rules, err := m.availableRules(ctx, principal, inst)
	if err != nil {
		return nil, err
	}
	actions := make([]string, 0, len(rules))
	for _, rule := range rules {
		actions = append(actions, rule.Action)
	}
	return actions, nil
}

// ApplyAction commits the requested transition. A missing rule and a failed
// guard collapse into the same shared.ErrForbidden so unauthorized callers
// cannot probe which transitions exist. The store's conditional update
// decides races: the loser gets shared.ErrConflict and must reload. A
// write timeout surfaces as shared.ErrUnknownOutcome and emits no audit
// event, since the transition may not have committed.
func (m *Machine) ApplyAction(ctx context.Context, principal rbac.Principal, inst Instance, action string, patch map[string]any) (Instance, error) {
	rules, err := m.availableRules(ctx, principal, inst)
	if err != nil {
		return Instance{}, err
	}
	var matched *Rule
	for i := range rules {
		if rules[i].Action == action {
			matched = &rules[i]
			break
		}
	}
	if matched == nil {
		return Instance{}, shared.ErrForbidden
	}

	now := m.clock()
	updated := inst
	updated.CurrentState = matched.To
	updated.AssignedTo = principal.ID
	updated.UpdatedAt = now
	updated.Metadata = mergeMetadata(inst.Metadata, map[string]any{
		MetaLastAction:   action,
		MetaLastActionBy: principal.ID,
		MetaLastActionAt: now.UTC().Format(time.RFC3339Nano),
	}, patch)

	persisted, err := m.store.CASUpdate(ctx, updated, inst.UpdatedAt)
	if err != nil {
		return Instance{}, err
	}

	m.emit(ctx, Event{
		EventType:   EventTypeAction,
		WorkflowID:  persisted.ID,
		EntityType:  string(persisted.EntityType),
		EntityID:    persisted.EntityID,
		Action:      action,
		FromState:   matched.From,
		ToState:     matched.To,
		PrincipalID: principal.ID,
		OccurredAt:  now,
	})
	return persisted, nil
}

// Track creates the workflow instance for an entity entering its first
// trackable state. The state must belong to the entity type's graph.
func (m *Machine) Track(ctx context.Context, principal rbac.Principal, entityType EntityType, entityID, initialState string) (Instance, error) {
	set, err := m.table.RuleSet(entityType)
	if err != nil {
		return Instance{}, err
	}
	if _, ok := set.States()[initialState]; !ok {
		return Instance{}, fmt.Errorf("workflow: state %q not in %s graph", initialState, entityType)
	}
	now := m.clock()
	inst := Instance{
		ID:           uuid.NewString(),
		EntityType:   entityType,
		EntityID:     entityID,
		CurrentState: initialState,
		CompanyID:    principal.CompanyID,
		Metadata:     map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return m.store.Create(ctx, inst)
}

// Load fetches the instance for an entity, scoped to the principal's
// company. Cross-tenant reads are denied with the same collapsed error as a
// failed guard; super admins see every tenant.
func (m *Machine) Load(ctx context.Context, principal rbac.Principal, entityType EntityType, entityID string) (Instance, error) {
	inst, err := m.store.LoadInstance(ctx, entityType, entityID)
	if err != nil {
		return Instance{}, err
	}
	if principal.Role != rbac.RoleSuperAdmin && inst.CompanyID != principal.CompanyID {
		return Instance{}, shared.ErrForbidden
	}
	return inst, nil
}

// List returns one tenant page of instances of an entity type, with the
// pagination computed from the unpaged total. Non-super-admin callers are
// pinned to their own company regardless of the requested one.
func (m *Machine) List(ctx context.Context, principal rbac.Principal, entityType EntityType, companyID string, page, perPage int) ([]Instance, shared.Pagination, error) {
	if principal.ID == "" || principal.Role == "" {
		return nil, shared.Pagination{}, shared.ErrForbidden
	}
	if _, err := m.table.RuleSet(entityType); err != nil {
		return nil, shared.Pagination{}, err
	}
	if principal.Role != rbac.RoleSuperAdmin {
		companyID = principal.CompanyID
	}
	if companyID == "" {
		return nil, shared.Pagination{}, shared.ErrForbidden
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	instances, total, err := m.store.ListByCompany(ctx, companyID, entityType, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return instances, shared.NewPagination(page, perPage, total), nil
}

func (m *Machine) availableRules(ctx context.Context, principal rbac.Principal, inst Instance) ([]Rule, error) {
	if principal.ID == "" || principal.Role == "" {
		return nil, shared.ErrForbidden
	}
	set, err := m.table.RuleSet(inst.EntityType)
	if err != nil {
		return nil, err
	}
	var allowed []Rule
	for _, rule := range set.TransitionsFrom(inst.CurrentState) {
		if rule.Guard.allows(ctx, principal, m.perms) {
			allowed = append(allowed, rule)
		}
	}
	return allowed, nil
}

func (m *Machine) emit(ctx context.Context, ev Event) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Append(ctx, ev); err != nil {
		m.logger.Error("append audit event",
			slog.String("workflow_id", ev.WorkflowID),
			slog.String("action", ev.Action),
			slog.Any("error", err))
	}
}

func mergeMetadata(base map[string]any, stamps map[string]any, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(stamps)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range stamps {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// IsConflict reports whether err is the lost-race error callers retry on.
func IsConflict(err error) bool {
	return errors.Is(err, shared.ErrConflict)
}
