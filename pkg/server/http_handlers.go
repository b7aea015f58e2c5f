package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const statsTimeout = 2 * time.Second

// Handler returns the router serving /ws, /healthz, /stats and /metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.HandleWebSocket)
	r.Get("/healthz", s.HealthHandler)
	r.Get("/stats", s.StatsHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return r
}

// HealthHandler serves health check status
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	health := map[string]interface{}{
		"status":         "healthy",
		"version":        s.cfg.ServerVersion,
		"uptime_seconds": int64(time.Since(s.hub.startTime).Seconds()),
	}

	select {
	case <-s.hub.Done():
		status = http.StatusServiceUnavailable
		health["status"] = "stopped"
	default:
	}

	s.writeJSON(w, status, health)
}

// StatsHandler serves the hub snapshot
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	st, err := s.hub.Stats(ctx)
	if err != nil {
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode http response", zap.Error(err))
	}
}
