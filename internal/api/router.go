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

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Gateway status and control
			r.Route("/sync", func(r chi.Router) {
				r.Get("/status", s.handleSyncStatus)
				r.Post("/devices/{device}/subscribe", s.handleSubscribeDevice)
			})

			// Materialized slot values
			r.Route("/devices/{device}", func(r chi.Router) {
				r.Get("/values", s.handleDeviceValues)
				r.Get("/values/{key}", s.handleDeviceValue)
				r.Get("/menu", s.handleDeviceMenu)
			})
		})

		// WebSocket sits outside the bearer-token group: browsers cannot
		// set Authorization on a WS dial, so auth is the single-use ticket
		// validated in the handler (issued by the protected ws-ticket route).
		r.Get("/ws", s.handleWebSocket)
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
