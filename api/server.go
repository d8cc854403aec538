/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions of the reference persistence service. This is the wiring
  layer that connects URLs to handlers.

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
  /api/line-items/*        Budget line items + aggregate reads
  /api/purchase-requests/* Purchase requests + approval transitions
  /api/transactions/*      Transactions

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
		// Line item routes
		r.Route("/line-items", func(r chi.Router) {
			r.Get("/", h.ListLineItems)
			r.Post("/", h.CreateLineItem)
			r.Get("/{id}", h.GetLineItem)
			r.Put("/{id}", h.UpdateLineItem)
			r.Delete("/{id}", h.DeleteLineItem)
			r.Get("/{id}/aggregate", h.GetAggregate)
		})

		// Purchase request routes
		r.Route("/purchase-requests", func(r chi.Router) {
			r.Post("/", h.CreatePurchaseRequest)
			r.Get("/{id}", h.GetPurchaseRequest)
			r.Put("/{id}", h.UpdatePurchaseRequest)
			r.Delete("/{id}", h.DeletePurchaseRequest)
			r.Post("/{id}/transition", h.TransitionPurchaseRequest)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})
	})

	return r
}
