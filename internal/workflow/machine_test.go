package workflow

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/shared"
)

type memoryStore struct {
	mu        sync.Mutex
	instances map[string]Instance
	byEntity  map[string]string
	loadErr   error
	casErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		instances: make(map[string]Instance),
		byEntity:  make(map[string]string),
	}
}

func entityKey(entityType EntityType, entityID string) string {
	return string(entityType) + "/" + entityID
}

func (s *memoryStore) put(inst Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.ID] = inst
	s.byEntity[entityKey(inst.EntityType, inst.EntityID)] = inst.ID
}

func (s *memoryStore) LoadInstance(ctx context.Context, entityType EntityType, entityID string) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return Instance{}, s.loadErr
	}
	id, ok := s.byEntity[entityKey(entityType, entityID)]
	if !ok {
		return Instance{}, shared.ErrNotFound
	}
	return s.instances[id], nil
}

func (s *memoryStore) Create(ctx context.Context, inst Instance) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey(inst.EntityType, inst.EntityID)
	if _, exists := s.byEntity[key]; exists {
		return Instance{}, shared.ErrConflict
	}
	s.instances[inst.ID] = inst
	s.byEntity[key] = inst.ID
	return inst, nil
}

func (s *memoryStore) CASUpdate(ctx context.Context, inst Instance, expectedUpdatedAt time.Time) (Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casErr != nil {
		return Instance{}, s.casErr
	}
	current, ok := s.instances[inst.ID]
	if !ok {
		return Instance{}, shared.ErrNotFound
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return Instance{}, shared.ErrConflict
	}
	s.instances[inst.ID] = inst
	return inst, nil
}

func (s *memoryStore) ListByCompany(ctx context.Context, companyID string, entityType EntityType, limit, offset int) ([]Instance, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Instance
	for _, inst := range s.instances {
		if inst.CompanyID == companyID && inst.EntityType == entityType {
			matched = append(matched, inst)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingSink) Append(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func testResolver() *rbac.Resolver {
	catalog := rbac.NewCatalog()
	catalog.Grant(rbac.RoleSupervisor,
		rbac.Capability{Resource: "trips", Action: "approve"},
		rbac.Capability{Resource: "documents", Action: "review"},
	)
	return rbac.NewResolver(catalog, nil, slog.Default())
}

func testMachine(t *testing.T, sink AuditSink) (*Machine, *memoryStore) {
	t.Helper()
	table, err := DefaultTable(rbac.DefaultRegistry())
	require.NoError(t, err)
	store := newMemoryStore()
	return NewMachine(table, testResolver(), store, sink, slog.Default()), store
}

func tripInstance(state string) Instance {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return Instance{
		ID:           "wf-1",
		EntityType:   EntityTrip,
		EntityID:     "trip-42",
		CurrentState: state,
		CompanyID:    "co-1",
		Metadata:     map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

var (
	driver     = rbac.Principal{ID: "u-driver", Role: rbac.RoleDriver, CompanyID: "co-1"}
	supervisor = rbac.Principal{ID: "u-super", Role: rbac.RoleSupervisor, CompanyID: "co-1"}
	admin      = rbac.Principal{ID: "u-admin", Role: rbac.RoleCompanyAdmin, CompanyID: "co-1"}
)

func TestAvailableActionsDriverOnDraft(t *testing.T) {
	m, _ := testMachine(t, nil)
	actions, err := m.GetAvailableActions(context.Background(), driver, tripInstance("draft"))
	require.NoError(t, err)
	require.Equal(t, []string{"submit"}, actions)
}

func TestAvailableActionsDriverOnSubmittedIsEmpty(t *testing.T) {
	m, _ := testMachine(t, nil)
	actions, err := m.GetAvailableActions(context.Background(), driver, tripInstance("submitted"))
	require.NoError(t, err)
	require.Empty(t, actions)
}

func TestAvailableActionsSupervisorOnSubmitted(t *testing.T) {
	m, _ := testMachine(t, nil)
	actions, err := m.GetAvailableActions(context.Background(), supervisor, tripInstance("submitted"))
	require.NoError(t, err)
	require.Equal(t, []string{"approve", "reject"}, actions)
}

func TestAvailableActionsAdminSeesAllPermissionGuardedActions(t *testing.T) {
	m, _ := testMachine(t, nil)
	actions, err := m.GetAvailableActions(context.Background(), admin, tripInstance("submitted"))
	require.NoError(t, err)
	require.Equal(t, []string{"approve", "reject"}, actions)
}

func TestAvailableActionsAdminDoesNotSatisfyRoleGuard(t *testing.T) {
	// Role guards enumerate roles explicitly; the administrative marker only
	// bypasses permission guards.
	m, _ := testMachine(t, nil)
	actions, err := m.GetAvailableActions(context.Background(), admin, tripInstance("draft"))
	require.NoError(t, err)
	require.Empty(t, actions)
}

func TestAvailableActionsIdempotent(t *testing.T) {
	m, _ := testMachine(t, nil)
	first, err := m.GetAvailableActions(context.Background(), supervisor, tripInstance("submitted"))
	require.NoError(t, err)
	second, err := m.GetAvailableActions(context.Background(), supervisor, tripInstance("submitted"))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestApplyActionSubmitRoundTrip(t *testing.T) {
	sink := &recordingSink{}
	m, store := testMachine(t, sink)
	inst := tripInstance("draft")
	store.put(inst)

	updated, err := m.ApplyAction(context.Background(), driver, inst, "submit", map[string]any{"odometer": 120})
	require.NoError(t, err)
	require.Equal(t, "submitted", updated.CurrentState)
	require.Equal(t, driver.ID, updated.AssignedTo)
	require.Equal(t, "submit", updated.Metadata[MetaLastAction])
	require.Equal(t, driver.ID, updated.Metadata[MetaLastActionBy])
	require.Equal(t, 120, updated.Metadata["odometer"])
	require.True(t, updated.UpdatedAt.After(inst.UpdatedAt))

	events := sink.Events()
	require.Len(t, events, 1)
	require.Equal(t, EventTypeAction, events[0].EventType)
	require.Equal(t, "draft", events[0].FromState)
	require.Equal(t, "submitted", events[0].ToState)
	require.Equal(t, driver.ID, events[0].PrincipalID)
}

func TestApplyActionForbiddenLeavesInstanceUntouched(t *testing.T) {
	sink := &recordingSink{}
	_, store := testMachine(t, sink)
	inst := tripInstance("submitted")
	store.put(inst)

	// The test resolver grants the supervisor trips:approve; strip it by
	// building a machine with an empty catalog instead.
	table, err := DefaultTable(rbac.DefaultRegistry())
	require.NoError(t, err)
	bare := NewMachine(table, rbac.NewResolver(rbac.NewCatalog(), nil, slog.Default()), store, sink, slog.Default())

	_, err = bare.ApplyAction(context.Background(), supervisor, inst, "approve", nil)
	require.ErrorIs(t, err, shared.ErrForbidden)

	stored, err := store.LoadInstance(context.Background(), EntityTrip, "trip-42")
	require.NoError(t, err)
	require.Equal(t, "submitted", stored.CurrentState)
	require.Empty(t, sink.Events())
}

func TestApplyActionUnknownActionCollapsesToForbidden(t *testing.T) {
	m, store := testMachine(t, nil)
	inst := tripInstance("draft")
	store.put(inst)

	_, err := m.ApplyAction(context.Background(), driver, inst, "teleport", nil)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestApplyActionConcurrentApproveReject(t *testing.T) {
	sink := &recordingSink{}
	m, store := testMachine(t, sink)
	inst := tripInstance("submitted")
	store.put(inst)

	// Both callers read the same revision before either writes.
	first, firstErr := m.ApplyAction(context.Background(), supervisor, inst, "approve", nil)
	_, secondErr := m.ApplyAction(context.Background(), supervisor, inst, "reject", nil)

	require.NoError(t, firstErr)
	require.Equal(t, "approved", first.CurrentState)
	require.ErrorIs(t, secondErr, shared.ErrConflict)
	require.Len(t, sink.Events(), 1)
}

func TestApplyActionUnknownOutcomeEmitsNoAudit(t *testing.T) {
	sink := &recordingSink{}
	m, store := testMachine(t, sink)
	inst := tripInstance("draft")
	store.put(inst)
	store.casErr = shared.ErrUnknownOutcome

	_, err := m.ApplyAction(context.Background(), driver, inst, "submit", nil)
	require.ErrorIs(t, err, shared.ErrUnknownOutcome)
	require.Empty(t, sink.Events())
}

func TestApplyActionAuditFailureDoesNotRollBack(t *testing.T) {
	sink := &recordingSink{err: context.DeadlineExceeded}
	m, store := testMachine(t, sink)
	inst := tripInstance("draft")
	store.put(inst)

	updated, err := m.ApplyAction(context.Background(), driver, inst, "submit", nil)
	require.NoError(t, err)
	require.Equal(t, "submitted", updated.CurrentState)
}

func TestDocumentReviewWithoutApprove(t *testing.T) {
	sink := &recordingSink{}
	m, store := testMachine(t, sink)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	inst := Instance{
		ID:           "wf-doc",
		EntityType:   EntityDocument,
		EntityID:     "doc-7",
		CurrentState: "uploaded",
		CompanyID:    "co-1",
		Metadata:     map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	store.put(inst)

	// The test resolver grants documents:review but not documents:approve.
	reviewed, err := m.ApplyAction(context.Background(), supervisor, inst, "review", nil)
	require.NoError(t, err)
	require.Equal(t, "under_review", reviewed.CurrentState)

	_, err = m.ApplyAction(context.Background(), supervisor, reviewed, "approve", nil)
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Len(t, sink.Events(), 1)
}

func TestApplyActionEmptyPrincipal(t *testing.T) {
	m, store := testMachine(t, nil)
	inst := tripInstance("draft")
	store.put(inst)

	_, err := m.ApplyAction(context.Background(), rbac.Principal{}, inst, "submit", nil)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestTrackValidatesInitialState(t *testing.T) {
	m, _ := testMachine(t, nil)
	created, err := m.Track(context.Background(), driver, EntityTrip, "trip-99", "draft")
	require.NoError(t, err)
	require.Equal(t, "draft", created.CurrentState)
	require.Equal(t, driver.CompanyID, created.CompanyID)
	require.NotEmpty(t, created.ID)

	_, err = m.Track(context.Background(), driver, EntityTrip, "trip-100", "limbo")
	require.Error(t, err)
}

func TestLoadEnforcesTenantScope(t *testing.T) {
	m, store := testMachine(t, nil)
	inst := tripInstance("draft")
	inst.CompanyID = "co-2"
	store.put(inst)

	_, err := m.Load(context.Background(), driver, EntityTrip, "trip-42")
	require.ErrorIs(t, err, shared.ErrForbidden)

	root := rbac.Principal{ID: "u-root", Role: rbac.RoleSuperAdmin, CompanyID: "co-1"}
	got, err := m.Load(context.Background(), root, EntityTrip, "trip-42")
	require.NoError(t, err)
	require.Equal(t, inst.ID, got.ID)
}

func TestListPinsTenantAndPaginates(t *testing.T) {
	m, store := testMachine(t, nil)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		inst := tripInstance("draft")
		inst.ID = "wf-co1-" + strconv.Itoa(i)
		inst.EntityID = "trip-co1-" + strconv.Itoa(i)
		inst.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		store.put(inst)
	}
	other := tripInstance("draft")
	other.ID = "wf-co2"
	other.EntityID = "trip-co2"
	other.CompanyID = "co-2"
	store.put(other)

	// requested company is ignored for tenant-bound callers
	instances, paging, err := m.List(context.Background(), driver, EntityTrip, "co-2", 1, 2)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	require.Equal(t, 3, paging.Total)
	require.Equal(t, 2, paging.TotalPages)
	require.Equal(t, "wf-co1-2", instances[0].ID)
	for _, inst := range instances {
		require.Equal(t, "co-1", inst.CompanyID)
	}

	instances, _, err = m.List(context.Background(), driver, EntityTrip, "", 2, 2)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	root := rbac.Principal{ID: "u-root", Role: rbac.RoleSuperAdmin}
	instances, paging, err = m.List(context.Background(), root, EntityTrip, "co-2", 1, 20)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, "wf-co2", instances[0].ID)
	require.Equal(t, 1, paging.Total)

	_, _, err = m.List(context.Background(), root, EntityTrip, "", 1, 20)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestListUnknownEntityTypeIsNotFound(t *testing.T) {
	m, _ := testMachine(t, nil)
	_, _, err := m.List(context.Background(), driver, EntityType("cargo"), "", 1, 20)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
