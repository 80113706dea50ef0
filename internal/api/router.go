package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matrx-platform/sandbox-orchestrator/internal/config"
)

// version is stamped at build time via -ldflags; "dev" otherwise.
var version = "dev"

// Server is the HTTP transport layer: routing, auth, validation, and
// error-to-status mapping only (§4.5 — "no domain logic").
type Server struct {
	cfg       *config.Config
	manager   LifecycleService
	logger    *slog.Logger
	mux       *http.ServeMux
	startedAt time.Time
}

func NewServer(cfg *config.Config, manager LifecycleService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		manager:   manager,
		logger:    logger,
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.requestIDMiddleware(s.loggingMiddleware(s.authMiddleware(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /sandboxes", s.handleCreateSandbox)
	s.mux.HandleFunc("GET /sandboxes", s.handleListSandboxes)
	s.mux.HandleFunc("GET /sandboxes/{id}", s.handleGetSandbox)
	s.mux.HandleFunc("POST /sandboxes/{id}/exec", s.handleExec)
	s.mux.HandleFunc("POST /sandboxes/{id}/heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("POST /sandboxes/{id}/complete", s.handleComplete)
	s.mux.HandleFunc("POST /sandboxes/{id}/error", s.handleError)
	s.mux.HandleFunc("DELETE /sandboxes/{id}", s.handleDestroySandbox)

	if s.cfg.MetricsEnabled {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}
}

// handleHealth returns the union of spec.md's {status, version} and the
// original system's richer {active_sandboxes, uptime_seconds}.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, err := s.manager.ActiveSandboxCount(r.Context())
	if err != nil {
		s.logger.Warn("health check: failed to count active sandboxes", "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          version,
		"active_sandboxes": active,
		"uptime_seconds":   int(time.Since(s.startedAt).Seconds()),
	})
}
