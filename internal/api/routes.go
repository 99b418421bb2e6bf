package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/optin/internal/config"
	"github.com/ignite/optin/internal/pkg/metrics"
)

// SetupRoutes configures all routes. Admin routes are mounted only when an
// admin token is configured.
func SetupRoutes(h *Handlers, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health.HandleHealth)
	r.Get("/health/live", h.health.HandleLiveness)
	r.Get("/health/ready", h.health.HandleReadiness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/subscribe", h.Subscribe)
		r.Options("/subscribe", h.Preflight)
		r.Get("/confirm", h.ConfirmLink)
		r.Post("/confirm", h.Confirm)
		r.Options("/confirm", h.Preflight)
		r.Get("/unsubscribe", h.Unsubscribe)
		r.Post("/unsubscribe", h.UnsubscribeOneClick)
		r.Post("/webhooks/resend", h.ResendWebhook)

		if cfg.AdminToken == "" {
			return
		}
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(cfg.AdminToken))
			r.Post("/send-bulk", h.SendBulk)
			r.Post("/import-emails", h.ImportEmails)
			r.Get("/admin/events", h.ListEvents)
			r.Get("/admin/suppression/{email}", h.SuppressionStatus)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	return r
}
