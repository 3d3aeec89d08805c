package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/docsquare/auth-gateway/app"
	"github.com/docsquare/auth-gateway/models"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(deps.Metrics.Instrument)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	if deps.Config.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Credential endpoints sit behind the per-IP limiter
			r.Group(func(r chi.Router) {
				r.Use(deps.CredentialsLimiter.Limit)
				r.Post("/register", deps.AuthHandler.HandleRegister)
				r.Post("/login", deps.AuthHandler.HandleLogin)
				r.Post("/forgot-password", deps.AuthHandler.HandleForgotPassword)
				r.Post("/reset-password", deps.AuthHandler.HandleResetPassword)
			})

			r.Post("/refresh", deps.AuthHandler.HandleRefresh)
			r.Post("/verify", deps.AuthHandler.HandleVerify)
			r.Post("/validate-reset-token", deps.AuthHandler.HandleValidateResetToken)

			// Session endpoints require a valid access token
			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireAuth)
				r.Get("/me", deps.AuthHandler.HandleMe)
				r.Post("/logout", deps.AuthHandler.HandleLogout)
				r.Post("/logout-all", deps.AuthHandler.HandleLogoutAll)
			})
		})

		// Usage accounting
		r.Route("/usage", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/consume", deps.UsageHandler.HandleConsume)
			r.Get("/stats", deps.UsageHandler.HandleStats)
			r.Get("/stats/{id}", deps.UsageHandler.HandleStatsForUser)
		})

		// User and role administration (require admin role)
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequirePermission(models.ResourceUsers, models.ActionManage))
			r.Get("/users", deps.AdminHandler.HandleListUsers)
			r.Get("/users/{id}", deps.AdminHandler.HandleGetUser)
			r.Post("/users/{id}/roles", deps.AdminHandler.HandleAssignRole)
			r.Delete("/users/{id}/roles/{role}", deps.AdminHandler.HandleRemoveRole)
			r.Put("/users/{id}/quota", deps.AdminHandler.HandleSetQuotaOverrides)
			r.Put("/users/{id}/active", deps.AdminHandler.HandleSetActive)
			r.Get("/roles", deps.AdminHandler.HandleListRoles)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
