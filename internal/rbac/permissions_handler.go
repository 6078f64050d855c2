package rbac

import (
	"encoding/json"
	"net/http"

	"log/slog"
)

// PermissionsHandler serves the effective capabilities of the current
// principal so the admin UI can hide actions the caller may not take.
type PermissionsHandler struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewPermissionsHandler constructs the handler.
func NewPermissionsHandler(resolver *Resolver, logger *slog.Logger) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{resolver: resolver, logger: logger}
}

type permissionsResponse struct {
	Role         string   `json:"role"`
	FullAccess   bool     `json:"full_access"`
	Capabilities []string `json:"capabilities"`
}

// Current writes the caller's role and capability list.
func (h *PermissionsHandler) Current(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	caps, full := h.resolver.EffectiveCapabilities(r.Context(), principal.Role)
	resp := permissionsResponse{
		Role:         string(principal.Role),
		FullAccess:   full,
		Capabilities: make([]string, 0, len(caps)),
	}
	for _, c := range caps {
		resp.Capabilities = append(resp.Capabilities, c.String())
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("encode permissions", slog.Any("error", err))
	}
}
