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

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/lamps", func(r chi.Router) {
				r.Get("/", s.handleListLamps)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLamp)
					r.Get("/details", s.handleLampDetails)
					r.Post("/claim", s.handleClaimLamp)
					r.Put("/name", s.handleRenameLamp)

					r.Get("/smart-config", s.handleGetSmartConfig)
					r.Put("/smart-config", s.handleSetSmartConfig)

					r.Get("/config", s.handleGetConfig)
					r.Put("/config", s.handleApplyConfig)
					r.Post("/config/refresh", s.handleRefreshConfig)

					r.Post("/command", s.handleApplyCommand)
					r.Get("/status", s.handleGetStatus)

					r.Get("/presets", s.handleListPresets)
					r.Put("/presets/{slot}", s.handleSavePreset)
					r.Post("/presets/{slot}/activate", s.handleActivatePreset)

					r.Post("/reboot", s.handleReboot)
					r.Post("/blink", s.handleBlink)
					r.Put("/wifi", s.handleSetWifi)
					r.Post("/alerts/ack", s.handleAckAlerts)

					r.Get("/history/temperature", s.handleTemperatureHistory)
					r.Get("/history/ambient", s.handleAmbientHistory)
					r.Get("/audit", s.handleLampAudit)
				})
			})
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
