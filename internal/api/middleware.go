package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/matrx-platform/sandbox-orchestrator/internal/lifecycle"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"

	// requestingUserHeader carries the caller's identity for ownership
	// scoping. The §4.5 shared-secret header authenticates the caller as
	// a deployment, not as a specific user — this is a second, optional
	// header a multi-tenant deployment sets to get per-user isolation on
	// GetSandbox/ListSandboxes and friends; an unscoped deployment simply
	// never sets it and every request behaves as the admin/all-users
	// caller, matching the original system's behavior.
	requestingUserHeader = "X-User-ID"
)

// authMiddleware enforces the shared-secret header per §4.5: missing →
// 401, wrong → 403, no server-side secret configured → WARN and accept
// (explicit local-development opt-in). The comparison is constant-time
// (crypto/subtle), fixing the plain `!=` gap seen in earlier sandkasten-
// style implementations.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if s.cfg.APIKey == "" {
			s.logger.Warn("no api_key configured, accepting request unauthenticated")
			next.ServeHTTP(w, r)
			return
		}

		presented := r.Header.Get(s.cfg.APIKeyHeaderName)
		if presented == "" {
			writeError(w, s.logger, fmt.Errorf("%w: missing %s header", lifecycle.ErrUnauthenticated, s.cfg.APIKeyHeaderName))
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, s.logger, fmt.Errorf("%w: invalid %s", lifecycle.ErrForbidden, s.cfg.APIKeyHeaderName))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestingUser extracts the optional per-user scoping header; "" means
// the unscoped/admin caller.
func requestingUser(r *http.Request) string {
	return r.Header.Get(requestingUserHeader)
}

// requestIDMiddleware stamps every request with a correlation id, reused
// from the incoming header when the caller already has one (proxied
// requests), generated otherwise.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware emits one structured entry per request — method,
// path, status, duration, sandbox id (if present in the path), user id
// (if the caller set the scoping header) — per §4.5.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Context().Value(requestIDKey),
		}
		if sandboxID := r.PathValue("id"); sandboxID != "" {
			attrs = append(attrs, "sandbox_id", sandboxID)
		}
		if user := requestingUser(r); user != "" {
			attrs = append(attrs, "user_id", user)
		}
		s.logger.Info("request", attrs...)
	})
}
