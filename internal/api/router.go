package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Binding flow endpoints
			r.Route("/flows", func(r chi.Router) {
				r.Post("/", s.handleStartFlow)
				r.Post("/hint", s.handleHint)

				r.Route("/{id}", func(r chi.Router) {
					r.Post("/user", s.handleSubmitUser)
					r.Post("/pick", s.handlePickDevice)
					r.Post("/confirm", s.handleConfirm)
				})
			})

			// Committed entry endpoints
			r.Route("/entries", func(r chi.Router) {
				r.Get("/", s.handleListEntries)
				r.Delete("/{id}", s.handleDeleteEntry)
			})

			// Home-config endpoints
			r.Route("/home-config", func(r chi.Router) {
				r.Get("/", s.handleGetHomeConfig)
				r.Post("/import", s.handleImportHomeConfig)
				r.Delete("/", s.handleClearHomeConfig)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
