package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrx-platform/sandbox-orchestrator/internal/containerdriver"
	"github.com/matrx-platform/sandbox-orchestrator/internal/lifecycle"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   string
		wantStatus int
	}{
		{"validation", fmt.Errorf("%w: empty command", lifecycle.ErrValidation), "Validation", http.StatusUnprocessableEntity},
		{"unauthenticated", fmt.Errorf("%w", lifecycle.ErrUnauthenticated), "Unauthenticated", http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("%w", lifecycle.ErrForbidden), "Forbidden", http.StatusForbidden},
		{"not found lifecycle", fmt.Errorf("%w: sb-1", lifecycle.ErrNotFound), "NotFound", http.StatusNotFound},
		{"not found registry", fmt.Errorf("wrap: %w", registry.ErrNotFound), "NotFound", http.StatusNotFound},
		{"conflict", fmt.Errorf("%w", lifecycle.ErrConflict), "Conflict", http.StatusConflict},
		{"invalid state", fmt.Errorf("%w", lifecycle.ErrInvalidState), "InvalidState", http.StatusConflict},
		{"engine unavailable lifecycle", fmt.Errorf("%w", lifecycle.ErrEngineUnavailable), "EngineUnavailable", http.StatusServiceUnavailable},
		{"engine unavailable driver", fmt.Errorf("%w", containerdriver.ErrEngineUnavailable), "EngineUnavailable", http.StatusServiceUnavailable},
		{"timeout lifecycle", fmt.Errorf("%w", lifecycle.ErrTimeout), "Timeout", http.StatusGatewayTimeout},
		{"timeout driver", fmt.Errorf("%w", containerdriver.ErrTimeout), "Timeout", http.StatusGatewayTimeout},
		{"store unavailable", fmt.Errorf("%w", lifecycle.ErrStoreUnavailable), "StoreUnavailable", http.StatusServiceUnavailable},
		{"unclassified", fmt.Errorf("something went wrong"), "Internal", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, status := classify(tt.err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestWriteErrorMasksInternalMessageAndAttachesCorrelationID(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, slog.Default(), fmt.Errorf("disk is full"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var envelope errorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "Internal", envelope.Error.Kind)
	assert.Equal(t, "internal error", envelope.Error.Message)
	assert.NotEmpty(t, envelope.Error.CorrelationID)
}

func TestWriteErrorPreservesMessageForNonInternalKinds(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, slog.Default(), fmt.Errorf("%w: sb-1 not found", lifecycle.ErrNotFound))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "NotFound", envelope.Error.Kind)
	assert.Contains(t, envelope.Error.Message, "sb-1")
	assert.Empty(t, envelope.Error.CorrelationID)
}

func TestWriteValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeValidationError(rec, "command is required")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "Validation", envelope.Error.Kind)
	assert.Equal(t, "command is required", envelope.Error.Message)
}
