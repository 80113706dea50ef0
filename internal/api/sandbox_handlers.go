package api

import (
	"net/http"

	"github.com/matrx-platform/sandbox-orchestrator/internal/lifecycle"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

func (s *Server) handleCreateSandbox(w http.ResponseWriter, r *http.Request) {
	var req createSandboxRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if err := validateCreateSandboxRequest(req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	rec, err := s.manager.CreateSandbox(r.Context(), req.UserID, lifecycle.CreateOptions{
		TTLSeconds: req.TTLSeconds,
		Config:     req.Config,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetSandbox(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSandboxID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	rec, err := s.manager.GetSandbox(r.Context(), id, requestingUser(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListSandboxes(w http.ResponseWriter, r *http.Request) {
	recs, err := s.manager.ListSandboxes(r.Context(), requestingUser(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if recs == nil {
		recs = []*registry.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleDestroySandbox(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSandboxID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	graceful := true
	if v := r.URL.Query().Get("graceful"); v != "" {
		graceful = v != "false" && v != "0"
	}

	rec, err := s.manager.DestroySandbox(r.Context(), id, requestingUser(r), graceful, registry.StopReasonUserRequested)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
