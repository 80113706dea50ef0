package api

import (
	"fmt"
	"regexp"
)

// sandboxIDPattern accepts the uuid.NewString() shape the Lifecycle
// Manager generates, without hard-coding the UUID package's own regex.
var sandboxIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,255}$`)

// userIDPattern mirrors lifecycle.userIDPattern so the HTTP layer can
// reject a malformed user_id with 422 before ever calling into the
// domain layer (§7: "bad inputs ... surfaced as 422").
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,255}$`)

func validateSandboxID(id string) error {
	if !sandboxIDPattern.MatchString(id) {
		return fmt.Errorf("sandbox id %q is malformed", id)
	}
	return nil
}

type createSandboxRequest struct {
	UserID     string            `json:"user_id"`
	TTLSeconds int               `json:"ttl_seconds"`
	Config     map[string]string `json:"config"`
}

func validateCreateSandboxRequest(req createSandboxRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !userIDPattern.MatchString(req.UserID) {
		return fmt.Errorf("user_id must match %s", userIDPattern.String())
	}
	if req.TTLSeconds < 0 {
		return fmt.Errorf("ttl_seconds must be non-negative")
	}
	return nil
}

type execRequest struct {
	Command        string `json:"command"`
	Cwd            string `json:"cwd"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func validateExecRequest(req execRequest) error {
	if req.Command == "" {
		return fmt.Errorf("command is required")
	}
	if req.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be non-negative")
	}
	return nil
}

type completeRequest struct {
	Result map[string]string `json:"result"`
}

type errorRequest struct {
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

func validateErrorRequest(req errorRequest) error {
	if req.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
