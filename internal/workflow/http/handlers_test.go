package workflowhttp

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/shared"
	_ "github.com/mbyo2/vehicle-log-sys/internal/testing/guard"
	"github.com/mbyo2/vehicle-log-sys/internal/workflow"
)

type fakeStore struct {
	inst   workflow.Instance
	casErr error
}

func (f *fakeStore) LoadInstance(ctx context.Context, entityType workflow.EntityType, entityID string) (workflow.Instance, error) {
	if f.inst.ID == "" {
		return workflow.Instance{}, shared.ErrNotFound
	}
	return f.inst, nil
}

func (f *fakeStore) Create(ctx context.Context, inst workflow.Instance) (workflow.Instance, error) {
	return inst, nil
}

func (f *fakeStore) CASUpdate(ctx context.Context, inst workflow.Instance, expected time.Time) (workflow.Instance, error) {
	if f.casErr != nil {
		return workflow.Instance{}, f.casErr
	}
	f.inst = inst
	return inst, nil
}

func (f *fakeStore) ListByCompany(ctx context.Context, companyID string, entityType workflow.EntityType, limit, offset int) ([]workflow.Instance, int, error) {
	if f.inst.ID == "" || f.inst.CompanyID != companyID || f.inst.EntityType != entityType {
		return nil, 0, nil
	}
	return []workflow.Instance{f.inst}, 1, nil
}

func newTestRouter(t *testing.T, store workflow.Store, principal rbac.Principal) http.Handler {
	t.Helper()
	table, err := workflow.DefaultTable(rbac.DefaultRegistry())
	require.NoError(t, err)
	catalog := rbac.DefaultCatalog()
	machine := workflow.NewMachine(table, rbac.NewResolver(catalog, nil, slog.Default()), store, nil, slog.Default())
	handler := NewHandler(slog.Default(), machine)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal)))
		})
	})
	r.Route("/api", handler.MountRoutes)
	return r
}

func submittedTrip() workflow.Instance {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	return workflow.Instance{
		ID:           "wf-1",
		EntityType:   workflow.EntityTrip,
		EntityID:     "trip-1",
		CurrentState: "submitted",
		CompanyID:    "co-1",
		Metadata:     map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestActionsEndpoint(t *testing.T) {
	store := &fakeStore{inst: submittedTrip()}
	supervisor := rbac.Principal{ID: "u-1", Role: rbac.RoleSupervisor, CompanyID: "co-1"}
	router := newTestRouter(t, store, supervisor)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workflows/trip/trip-1/actions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"approve"`)
	require.Contains(t, rec.Body.String(), `"reject"`)
}

func TestApplyEndpointStatusMapping(t *testing.T) {
	supervisor := rbac.Principal{ID: "u-1", Role: rbac.RoleSupervisor, CompanyID: "co-1"}
	driver := rbac.Principal{ID: "u-2", Role: rbac.RoleDriver, CompanyID: "co-1"}

	cases := []struct {
		name      string
		principal rbac.Principal
		store     *fakeStore
		body      string
		want      int
	}{
		{"approve ok", supervisor, &fakeStore{inst: submittedTrip()}, `{"action":"approve"}`, http.StatusOK},
		{"guard denied", driver, &fakeStore{inst: submittedTrip()}, `{"action":"approve"}`, http.StatusForbidden},
		{"lost race", supervisor, &fakeStore{inst: submittedTrip(), casErr: shared.ErrConflict}, `{"action":"approve"}`, http.StatusConflict},
		{"write timeout", supervisor, &fakeStore{inst: submittedTrip(), casErr: shared.ErrUnknownOutcome}, `{"action":"approve"}`, http.StatusBadGateway},
		{"missing instance", supervisor, &fakeStore{}, `{"action":"approve"}`, http.StatusNotFound},
		{"missing action field", supervisor, &fakeStore{inst: submittedTrip()}, `{}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, tc.store, tc.principal)
			req := httptest.NewRequest(http.MethodPost, "/api/workflows/trip/trip-1/actions", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCrossTenantLoadIsForbidden(t *testing.T) {
	store := &fakeStore{inst: submittedTrip()}
	outsider := rbac.Principal{ID: "u-9", Role: rbac.RoleSupervisor, CompanyID: "co-9"}
	router := newTestRouter(t, store, outsider)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workflows/trip/trip-1/actions", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListEndpointScopesToTenant(t *testing.T) {
	store := &fakeStore{inst: submittedTrip()}
	supervisor := rbac.Principal{ID: "u-1", Role: rbac.RoleSupervisor, CompanyID: "co-1"}
	router := newTestRouter(t, store, supervisor)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workflows/trip?page=1&per_page=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1`)
	require.Contains(t, rec.Body.String(), `"entity_id":"trip-1"`)

	// a caller from another tenant sees an empty page, not the neighbour's fleet
	outsider := rbac.Principal{ID: "u-9", Role: rbac.RoleSupervisor, CompanyID: "co-9"}
	router = newTestRouter(t, store, outsider)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workflows/trip", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":0`)
	require.NotContains(t, rec.Body.String(), "trip-1")
}
