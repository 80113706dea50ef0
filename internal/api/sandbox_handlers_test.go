package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/matrx-platform/sandbox-orchestrator/internal/config"
	"github.com/matrx-platform/sandbox-orchestrator/internal/lifecycle"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

func newTestServer(m *mockLifecycle) *Server {
	cfg := config.Default()
	cfg.APIKey = ""
	return NewServer(cfg, m, nil)
}

func TestHandleCreateSandboxHappyPath(t *testing.T) {
	m := &mockLifecycle{}
	s := newTestServer(m)

	rec := &registry.Record{SandboxID: "sb-1", UserID: "u-alice", Status: registry.StatusReady}
	m.On("CreateSandbox", mock.Anything, "u-alice", mock.Anything).Return(rec, nil)

	body, _ := json.Marshal(map[string]any{"user_id": "u-alice", "ttl_seconds": 60})
	req := httptest.NewRequest("POST", "/sandboxes", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var got registry.Record
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "sb-1", got.SandboxID)
}

func TestHandleCreateSandboxRejectsMissingUserID(t *testing.T) {
	m := &mockLifecycle{}
	s := newTestServer(m)

	body, _ := json.Marshal(map[string]any{"ttl_seconds": 60})
	req := httptest.NewRequest("POST", "/sandboxes", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	m.AssertNotCalled(t, "CreateSandbox", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCreateSandboxRejectsUnknownField(t *testing.T) {
	m := &mockLifecycle{}
	s := newTestServer(m)

	body, _ := json.Marshal(map[string]any{"user_id": "u-alice", "bogus_field": true})
	req := httptest.NewRequest("POST", "/sandboxes", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleGetSandboxNotFoundForMismatchedOwner(t *testing.T) {
	m := &mockLifecycle{}
	s := newTestServer(m)

	m.On("GetSandbox", mock.Anything, "sb-1", "u-bob").Return(nil, lifecycle.ErrNotFound)

	req := httptest.NewRequest("GET", "/sandboxes/sb-1", nil)
	req.Header.Set(requestingUserHeader, "u-bob")
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var envelope errorEnvelope
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "NotFound", envelope.Error.Kind)
}

func TestHandleListSandboxesReturnsEmptyArrayNotNull(t *testing.T) {
	m := &mockLifecycle{}
	s := newTestServer(m)

	m.On("ListSandboxes", mock.Anything, "").Return(nil, nil)

	req := httptest.NewRequest("GET", "/sandboxes", nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestHandleDestroySandboxDefaultsGracefulTrue(t *testing.T) {
	m := &mockLifecycle{}
	s := newTestServer(m)

	rec := &registry.Record{SandboxID: "sb-1", Status: registry.StatusStopped}
	m.On("DestroySandbox", mock.Anything, "sb-1", "", true, registry.StopReasonUserRequested).Return(rec, nil)

	req := httptest.NewRequest("DELETE", "/sandboxes/sb-1", nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleDestroySandboxRespectsGracefulFalse(t *testing.T) {
	m := &mockLifecycle{}
	s := newTestServer(m)

	rec := &registry.Record{SandboxID: "sb-1", Status: registry.StatusStopped}
	m.On("DestroySandbox", mock.Anything, "sb-1", "", false, registry.StopReasonUserRequested).Return(rec, nil)

	req := httptest.NewRequest("DELETE", "/sandboxes/sb-1?graceful=false", nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
