package lifecycle

import (
	"fmt"

	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// validTransitions is the §4.4 state machine DAG, following antwort's
// pkg/api/state.go map-of-valid-next-states pattern. Every status not a
// key here, or not found in its value slice, rejects with ErrInvalidState.
// Terminal states (stopped, failed) map to an empty slice.
var validTransitions = map[registry.Status][]registry.Status{
	registry.StatusCreating:     {registry.StatusStarting, registry.StatusFailed},
	registry.StatusStarting:     {registry.StatusReady, registry.StatusFailed},
	registry.StatusReady:        {registry.StatusRunning, registry.StatusShuttingDown, registry.StatusExpired},
	registry.StatusRunning:      {registry.StatusShuttingDown, registry.StatusExpired},
	registry.StatusExpired:      {registry.StatusShuttingDown},
	registry.StatusShuttingDown: {registry.StatusStopped},
	registry.StatusStopped:      {},
	registry.StatusFailed:       {},
}

// validateTransition checks whether moving a record from `from` to `to`
// is legal per the §4.4 DAG. No transition out of a terminal state is
// ever valid (I4).
func validateTransition(from, to registry.Status) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid transition from %s to %s", ErrInvalidState, from, to)
}

// isTerminal reports whether status has no outgoing transitions.
func isTerminal(status registry.Status) bool {
	allowed, ok := validTransitions[status]
	return ok && len(allowed) == 0
}

// isActiveForExec reports whether status permits ExecInSandbox (§4.4.4:
// "ready" or "running").
func isActiveForExec(status registry.Status) bool {
	return status == registry.StatusReady || status == registry.StatusRunning
}
