package audithttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes attaches audit endpoints under the given router. Export gets
// its own middleware since reading the timeline and pulling a CSV dump are
// separate capabilities.
func (h *Handler) MountRoutes(r chi.Router, exportGuard func(http.Handler) http.Handler) {
	r.Get("/audit", h.Timeline)
	r.With(exportGuard).Get("/audit/export", h.Export)
}
