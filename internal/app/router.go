package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-auth/aegis/internal/auth"
	"github.com/aegis-auth/aegis/internal/guard"
	"github.com/aegis-auth/aegis/internal/observability"
	"github.com/aegis-auth/aegis/internal/rbac"
	"github.com/aegis-auth/aegis/internal/users"
	"github.com/aegis-auth/aegis/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	GuardResolver  *guard.Resolver
	AuthHandler    *auth.Handler
	AuthMiddleware auth.Middleware
	Authorizer     rbac.Authorizer
	RBACHandler    *rbac.Handler
	UsersHandler   *users.Handler
	JobsHandler    *jobs.Handler
	Pool           *pgxpool.Pool
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with Aegis defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(guard.Middleware(params.GuardResolver))
	r.Use(rbac.RequestMemo())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	guardCfg := params.GuardResolver.Config()
	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		if !guardCfg.Enabled {
			return
		}
		// Each guard also gets its own prefix so clients can address a
		// guard by path instead of header or query.
		for _, name := range guardCfg.Names() {
			prefix := guardCfg.Prefixes[name]
			if prefix == "" {
				continue
			}
			r.Route("/"+prefix, params.AuthHandler.MountRoutes)
		}
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.AuthMiddleware.Verify)
		params.RBACHandler.MountRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(params.Authorizer.RequireAllPrivileges("users.manage"))
			params.UsersHandler.MountRoutes(r)
		})
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
