package workflowhttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/shared"
	"github.com/mbyo2/vehicle-log-sys/internal/workflow"
)

// Handler exposes workflow operations over HTTP. It is a thin shell: the
// principal is taken from the request context and everything else is the
// state machine's decision.
type Handler struct {
	logger   *slog.Logger
	machine  *workflow.Machine
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, machine *workflow.Machine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		machine:  machine,
		validate: validator.New(),
	}
}

type trackRequest struct {
	InitialState string `json:"initial_state" validate:"required"`
}

type applyRequest struct {
	Action   string         `json:"action" validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

type instanceResponse struct {
	ID           string         `json:"id"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	CurrentState string         `json:"current_state"`
	AssignedTo   string         `json:"assigned_to,omitempty"`
	CompanyID    string         `json:"company_id"`
	Metadata     map[string]any `json:"metadata"`
	UpdatedAt    string         `json:"updated_at"`
}

type actionsResponse struct {
	CurrentState string   `json:"current_state"`
	Actions      []string `json:"actions"`
}

type listResponse struct {
	Items      []instanceResponse `json:"items"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	Total      int                `json:"total"`
	TotalPages int                `json:"total_pages"`
}

// List returns one page of the tenant's instances of an entity type.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	entityType := workflow.EntityType(chi.URLParam(r, "entityType"))
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	instances, paging, err := h.machine.List(r.Context(), principal, entityType, q.Get("company_id"), page, perPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]instanceResponse, 0, len(instances))
	for _, inst := range instances {
		items = append(items, toInstanceResponse(inst))
	}
	h.writeJSON(w, listResponse{
		Items:      items,
		Page:       paging.Page,
		PerPage:    paging.PerPage,
		Total:      paging.Total,
		TotalPages: paging.TotalPages,
	})
}

// Actions lists the actions the caller may take on the entity right now.
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	inst, err := h.loadInstance(w, r, principal)
	if err != nil {
		return
	}
	actions, err := h.machine.GetAvailableActions(r.Context(), principal, inst)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, actionsResponse{CurrentState: inst.CurrentState, Actions: actions})
}

// Apply commits a transition on the entity.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	inst, err := h.loadInstance(w, r, principal)
	if err != nil {
		return
	}
	updated, err := h.machine.ApplyAction(r.Context(), principal, inst, req.Action, req.Metadata)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, toInstanceResponse(updated))
}

// Track starts tracking an entity in its first trackable state.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entityType := workflow.EntityType(chi.URLParam(r, "entityType"))
	entityID := chi.URLParam(r, "entityID")
	created, err := h.machine.Track(r.Context(), principal, entityType, entityID, req.InitialState)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, toInstanceResponse(created))
}

// Show returns the current instance record.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	inst, err := h.loadInstance(w, r, principal)
	if err != nil {
		return
	}
	h.writeJSON(w, toInstanceResponse(inst))
}

func (h *Handler) loadInstance(w http.ResponseWriter, r *http.Request, principal rbac.Principal) (workflow.Instance, error) {
	entityType := workflow.EntityType(chi.URLParam(r, "entityType"))
	entityID := chi.URLParam(r, "entityID")
	inst, err := h.machine.Load(r.Context(), principal, entityType, entityID)
	if err != nil {
		h.writeError(w, r, err)
		return workflow.Instance{}, err
	}
	return inst, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *workflow.ConfigError
	switch {
	case errors.Is(err, shared.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, shared.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case workflow.IsConflict(err):
		http.Error(w, "instance changed, reload and retry", http.StatusConflict)
	case errors.Is(err, shared.ErrUnknownOutcome):
		http.Error(w, "write outcome unknown, re-read before retrying", http.StatusBadGateway)
	case errors.As(err, &cfgErr):
		h.logger.Error("workflow configuration", slog.String("entity_type", string(cfgErr.EntityType)), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	default:
		h.logger.Error("workflow request", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func toInstanceResponse(inst workflow.Instance) instanceResponse {
	return instanceResponse{
		ID:           inst.ID,
		EntityType:   string(inst.EntityType),
		EntityID:     inst.EntityID,
		CurrentState: inst.CurrentState,
		AssignedTo:   inst.AssignedTo,
		CompanyID:    inst.CompanyID,
		Metadata:     inst.Metadata,
		UpdatedAt:    inst.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
