package app

import (
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/mbyo2/vehicle-log-sys/internal/audit/http"
	"github.com/mbyo2/vehicle-log-sys/internal/auth"
	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	workflowhttp "github.com/mbyo2/vehicle-log-sys/internal/workflow/http"
	"github.com/mbyo2/vehicle-log-sys/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	AuthMiddleware     auth.Middleware
	RBACMiddleware     rbac.Middleware
	WorkflowHandler    *workflowhttp.Handler
	PermissionsHandler *rbac.PermissionsHandler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with fleet defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.RequirePrincipal)

			r.Get("/permissions", params.PermissionsHandler.Current)
			params.WorkflowHandler.MountRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAny(rbac.Capability{Resource: "audit", Action: "read"}))
				params.AuditHandler.MountRoutes(r,
					params.RBACMiddleware.RequireAny(rbac.Capability{Resource: "audit", Action: "export"}))
			})
		})

		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
