/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. Logger:        Request logging
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the web client
  5. Authenticate:  Bearer token, on every route except /api/health

ROUTE GROUPS:
  /api/health           Liveness (public)
  /api/recognitions/*   Recognition workflow, feed, reactions
  /api/rewards/*        Catalog and redemption
  /api/redemptions      My redemptions
  /api/points/*         My ledger
  /api/admin/*          Fulfillment, audit trail, allowance reset,
                        analytics, point grants

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authenticate middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Route("/recognitions", func(r chi.Router) {
				r.Post("/", h.CreateRecognition)
				r.Get("/", h.ListRecognitions)
				r.Get("/feed", h.Feed)
				r.Get("/pending", h.ListPendingRecognitions)
				r.Get("/recipients", h.AllowedRecipients)
				r.Post("/{id}/approve", h.ApproveRecognition)
				r.Post("/{id}/reject", h.RejectRecognition)
				r.Post("/{id}/react", h.React)
			})

			r.Route("/rewards", func(r chi.Router) {
				r.Get("/", h.ListRewards)
				r.Post("/", h.CreateReward)
				r.Put("/{id}", h.UpdateReward)
				r.Post("/{id}/redeem", h.Redeem)
			})

			r.Get("/redemptions", h.ListRedemptions)
			r.Get("/points/ledger", h.GetLedger)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/redemptions", h.AdminListRedemptions)
				r.Patch("/redemptions/{id}", h.AdminUpdateRedemption)
				r.Get("/audit-logs", h.ListAuditLogs)
				r.Post("/allowances/reset", h.ResetAllowances)
				r.Get("/analytics/overview", h.AnalyticsOverview)
				r.Post("/users/{id}/points", h.GrantPoints)
			})
		})
	})

	return r
}
