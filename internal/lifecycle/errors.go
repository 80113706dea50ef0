package lifecycle

import "errors"

// Error taxonomy per §7 — contract-level names, not tied to a single
// backend's vocabulary. The HTTP layer (internal/api) maps each to a
// status code.
var (
	ErrValidation        = errors.New("lifecycle: validation failed")
	ErrUnauthenticated   = errors.New("lifecycle: unauthenticated")
	ErrForbidden         = errors.New("lifecycle: forbidden")
	ErrNotFound          = errors.New("lifecycle: sandbox not found")
	ErrConflict          = errors.New("lifecycle: sandbox already exists")
	ErrInvalidState      = errors.New("lifecycle: operation not legal for current state")
	ErrEngineUnavailable = errors.New("lifecycle: container engine unavailable")
	ErrTimeout           = errors.New("lifecycle: deadline exceeded")
	ErrStoreUnavailable  = errors.New("lifecycle: registry store unavailable")
	ErrInternal          = errors.New("lifecycle: internal error")
)
