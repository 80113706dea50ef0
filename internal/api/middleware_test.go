package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/matrx-platform/sandbox-orchestrator/internal/config"
)

func newAuthedTestServer(m *mockLifecycle, apiKey string) *Server {
	cfg := config.Default()
	cfg.APIKey = apiKey
	return NewServer(cfg, m, nil)
}

func TestAuthMiddlewareAllowsHealthWithoutSecret(t *testing.T) {
	m := &mockLifecycle{}
	m.On("ActiveSandboxCount", mock.Anything).Return(0, nil)
	s := newAuthedTestServer(m, "secret-key")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareRejectsMissingHeaderWith401(t *testing.T) {
	s := newAuthedTestServer(&mockLifecycle{}, "secret-key")

	req := httptest.NewRequest("GET", "/sandboxes", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectsWrongSecretWith403(t *testing.T) {
	s := newAuthedTestServer(&mockLifecycle{}, "secret-key")

	req := httptest.NewRequest("GET", "/sandboxes", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthMiddlewareAcceptsCorrectSecret(t *testing.T) {
	m := &mockLifecycle{}
	m.On("ListSandboxes", mock.Anything, "").Return(nil, nil)
	s := newAuthedTestServer(m, "secret-key")

	req := httptest.NewRequest("GET", "/sandboxes", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareOpenAccessWhenNoSecretConfigured(t *testing.T) {
	m := &mockLifecycle{}
	m.On("ListSandboxes", mock.Anything, "").Return(nil, nil)
	s := newAuthedTestServer(m, "")

	req := httptest.NewRequest("GET", "/sandboxes", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDMiddlewarePreservesIncomingID(t *testing.T) {
	s := newAuthedTestServer(&mockLifecycle{}, "")

	m := s.manager.(*mockLifecycle)
	m.On("ListSandboxes", mock.Anything, "").Return(nil, nil)

	req := httptest.NewRequest("GET", "/sandboxes", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}
