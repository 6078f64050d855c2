package workflowhttp

import "github.com/go-chi/chi/v5"

// MountRoutes attaches workflow endpoints under the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/workflows/{entityType}", h.List)
	r.Route("/workflows/{entityType}/{entityID}", func(r chi.Router) {
		r.Get("/", h.Show)
		r.Post("/", h.Track)
		r.Get("/actions", h.Actions)
		r.Post("/actions", h.Apply)
	})
}
