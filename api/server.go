/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/enrollments/*  The six mutation operations
  /api/students/*     Read-only balance, history, and sharing projections
  /api/sharing/*      Sharing link create/remove
  /api/scenarios/*    Demo scenarios (enabled only with a Resetter)

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
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Mutation operations
		r.Route("/enrollments", func(r chi.Router) {
			r.Post("/payment", h.Payment)
			r.Post("/attendance", h.Attendance)
			r.Post("/refund", h.Refund)
			r.Post("/transfer", h.Transfer)
			r.Post("/transfer-class", h.TransferClass)
		})

		// Sharing links
		r.Route("/sharing", func(r chi.Router) {
			r.Post("/", h.Share)
			r.Delete("/{id}", h.Unshare)
		})

		// Read projections
		r.Route("/students/{studentID}", func(r chi.Router) {
			r.Get("/enrollments", h.ListEnrollments)
			r.Get("/sharing", h.ListSharing)
			r.Route("/courses/{courseID}", func(r chi.Router) {
				r.Get("/", h.GetEnrollment)
				r.Get("/history", h.History)
			})
		})

		// Demo scenarios
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
