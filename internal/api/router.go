package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-charger/internal/auth"
	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
	"github.com/nerrad567/gray-logic-charger/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/charger", s.handleGetCharger)
		r.Get("/bays", s.handleListBays)
		r.Get("/bays/{id}", s.handleGetBay)
		r.Get("/modules", s.handleListModules)
		r.Get("/models", s.handleListModels)
		r.Get("/variables", s.handleVariables)
		r.Get("/feedbacks", s.handleListFeedbacks)
		r.Get("/feedbacks/{name}", s.handleEvaluateFeedback)

		r.Route("/commands", func(r chi.Router) {
			r.Use(s.requirePermission(auth.PermChargerCommand))
			r.Post("/storage-mode", s.handleCommand(commandStorageMode))
			r.Post("/flash", s.handleCommand(commandFlash))
			r.Post("/device-id", s.handleCommand(commandDeviceID))
			r.Post("/refresh", s.handleCommand(commandRefresh))
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/bays/{id}", s.handleBayHistory)
			r.Get("/commands", s.handleCommandHistory)
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	if s.cfg.Panel.Enabled {
		r.Handle("/*", panel.Handler(s.cfg.Panel.Dir))
	}

	return r
}

// wsPath is the WebSocket route relative to /api/v1.
func (s *Server) wsPath() string {
	const prefix = "/api/v1"
	p := s.wsCfg.Path
	if len(p) > len(prefix) && p[:len(prefix)] == prefix {
		return p[len(prefix):]
	}
	return "/ws"
}

// handleHealth returns the bridge health message.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.bridge.Health()
	status := http.StatusOK
	if health.Status == sbrc.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":  health.Status,
		"version": s.version,
		"bridge":  health,
	})
}
