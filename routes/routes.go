package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/headerauth/app"
	"github.com/upb/headerauth/handlers"
	"github.com/upb/headerauth/middleware"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/utils"
)

const defaultRequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeout))

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cfg.Auth.APIKeyHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)

	if cfg.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	authErrors := handlers.AuthErrorHandler(deps.Logger)
	userAuth := middleware.NewHeaderAuthMiddleware(deps.UserAuth, deps.Logger,
		middleware.WithMetrics(deps.Metrics),
		middleware.WithErrorHandler(authErrors),
		middleware.WithPrincipalName("user"))
	accountAuth := middleware.NewHeaderAuthMiddleware(deps.ServiceAccountAuth, deps.Logger,
		middleware.WithMetrics(deps.Metrics),
		middleware.WithErrorHandler(authErrors),
		middleware.WithPrincipalName("service_account"))

	// API v1 routes. Both principal types are resolved for every request;
	// neither middleware rejects, the per-route guards do.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.WithAuthContext)
		r.Use(userAuth.Handler)
		r.Use(accountAuth.Handler)

		r.Get("/whoami", deps.Principal.HandleWhoami)

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAuthenticatedMiddleware[*models.User](deps.Logger))
			r.Get("/me", deps.Principal.HandleCurrentUser)
		})

		r.Route("/service-accounts", func(r chi.Router) {
			r.Use(middleware.RequireAuthenticatedMiddleware[*models.ServiceAccount](deps.Logger))
			r.Get("/me", deps.Principal.HandleCurrentServiceAccount)
			r.Delete("/me", deps.Principal.HandleRevokeCurrentServiceAccount)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
