package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/matrx-platform/sandbox-orchestrator/internal/containerdriver"
	"github.com/matrx-platform/sandbox-orchestrator/internal/lifecycle"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// errorEnvelope is the §7 user-visible error shape: {error: {kind,
// message, correlation_id?}}. Unlike the teacher's flat APIError, the
// kind here is the contract-level taxonomy name from §7, not a
// free-form application error code.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// classify maps a domain-layer error to its §7 taxonomy kind and HTTP
// status. Order matters: check the most specific sentinels first since
// lifecycle wraps registry's own sentinels inside its own via %w chains.
func classify(err error) (kind string, status int) {
	switch {
	case errors.Is(err, lifecycle.ErrValidation):
		return "Validation", http.StatusUnprocessableEntity
	case errors.Is(err, lifecycle.ErrUnauthenticated):
		return "Unauthenticated", http.StatusUnauthorized
	case errors.Is(err, lifecycle.ErrForbidden):
		return "Forbidden", http.StatusForbidden
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, registry.ErrNotFound):
		return "NotFound", http.StatusNotFound
	case errors.Is(err, lifecycle.ErrConflict), errors.Is(err, registry.ErrConflict):
		return "Conflict", http.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalidState):
		return "InvalidState", http.StatusConflict
	case errors.Is(err, lifecycle.ErrEngineUnavailable), errors.Is(err, containerdriver.ErrEngineUnavailable):
		return "EngineUnavailable", http.StatusServiceUnavailable
	case errors.Is(err, lifecycle.ErrTimeout), errors.Is(err, containerdriver.ErrTimeout):
		return "Timeout", http.StatusGatewayTimeout
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		return "StoreUnavailable", http.StatusServiceUnavailable
	default:
		return "Internal", http.StatusInternalServerError
	}
}

// writeError renders err through classify and logs the full error context
// for Internal-kind failures, per §7's "must log full context" clause.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind, status := classify(err)
	body := errorBody{Kind: kind, Message: err.Error()}
	if kind == "Internal" {
		correlationID := uuid.New().String()
		body.CorrelationID = correlationID
		body.Message = "internal error"
		logger.Error("internal error", "correlation_id", correlationID, "err", err)
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

// writeValidationError is the dedicated 422 path for request-body
// validation and decode failures, which never reach the domain layer.
func writeValidationError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{
		Error: errorBody{Kind: "Validation", Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
