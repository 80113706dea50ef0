package api

import (
	"net/http"
)

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSandboxID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	var req execRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if err := validateExecRequest(req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	result, err := s.manager.ExecInSandbox(r.Context(), id, requestingUser(r), req.Command, req.Cwd, req.TimeoutSeconds)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exit_code": result.ExitCode,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
		"cwd":       result.Cwd,
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSandboxID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if err := s.manager.Heartbeat(r.Context(), id, requestingUser(r)); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSandboxID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	var req completeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if err := s.manager.MarkComplete(r.Context(), id, requestingUser(r), req.Result); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSandboxID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	var req errorRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if err := validateErrorRequest(req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	errorInfo := map[string]string{"message": req.Message}
	for k, v := range req.Details {
		errorInfo[k] = v
	}

	if err := s.manager.MarkError(r.Context(), id, requestingUser(r), errorInfo); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
