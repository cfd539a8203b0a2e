package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
// ctx bounds background work started by handlers.
func (s *Server) buildRouter(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/state", s.handleGetDeviceState)
					r.With(requireRole(RoleAdmin, RoleOperator)).Post("/commands", s.handleDeviceCommand)
				})
			})

			r.With(requireRole(RoleAdmin)).Post("/discovery", func(w http.ResponseWriter, r *http.Request) {
				s.handleDiscovery(ctx, w, r)
			})

			if s.audit != nil {
				r.With(requireRole(RoleAdmin)).Get("/audit", s.handleListAudit)
			}
		})
	})

	return r
}

// handleHealth returns the server health status with device counts.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	managed, online, offline := s.platform.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": map[string]int{
			"managed": managed,
			"online":  online,
			"offline": offline,
		},
	})
}
