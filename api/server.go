/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Auth:       Bearer token to member identity

ROUTE GROUPS:
  /api/households/*     Households, rota items, purchases, balances,
                        settlements
  /healthz              Liveness probe (unauthenticated)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/middleware.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/household-ledger/auth"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, tokens *auth.Manager) *chi.Mux {
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

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(tokens))

		r.Route("/households", func(r chi.Router) {
			r.Post("/", h.CreateHousehold)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetHousehold)
				r.Get("/balances", h.GetBalances)
				r.Get("/purchases", h.ListOpenPurchases)

				r.Route("/items", func(r chi.Router) {
					r.Get("/", h.ListItems)
					r.Post("/", h.CreateItem)
					r.Post("/{itemID}/turn", h.SetTurn)
					r.Post("/{itemID}/rota/remove", h.RemoveFromRota)
					r.Post("/{itemID}/purchases", h.RecordPurchase)
					r.Delete("/{itemID}", h.DeactivateItem)
				})

				r.Route("/settlements", func(r chi.Router) {
					r.Get("/", h.ListSettlements)
					r.Post("/", h.CloseSettlement)
					r.Get("/{sid}", h.GetSettlement)
				})
			})
		})
	})

	return r
}
