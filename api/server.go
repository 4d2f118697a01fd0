/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/identity/*       Token resolution
  /api/products         Catalog
  /api/checkout         Atomic purchase commit
  /api/accounts/*       Wallet and history
  /api/reports/*        Sales reporting
  /api/advisor/*        Generative suggestions (advisory only)
  /api/seed             Demo data (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Identity routes
		r.Route("/identity", func(r chi.Router) {
			r.Post("/resolve", h.ResolveIdentity)
		})

		// Catalog routes
		r.Get("/products", h.ListProducts)

		// Checkout routes
		r.Post("/checkout", h.Checkout)

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/{id}/topup", h.TopUp)
			r.Get("/{id}/orders", h.AccountOrders)
		})

		// Reporting routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/top-products", h.TopProducts)
			r.Get("/recent-orders", h.RecentOrders)
		})

		// Advisor routes
		r.Route("/advisor", func(r chi.Router) {
			r.Post("/suggest", h.SuggestMeal)
			r.Get("/insights", h.SalesInsights)
		})

		// Demo data (dev only)
		r.Post("/seed", h.Seed)
	})

	return r
}
