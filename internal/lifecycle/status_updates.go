package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// Heartbeat refreshes last_heartbeat_at without touching status or expiry
// (§4.4.5). Neither the reconciliation loop nor the expiry loop reads
// last_heartbeat_at; reconciliation judges drift from the engine's
// container list alone.
func (m *Manager) Heartbeat(ctx context.Context, sandboxID, requestingUser string) error {
	rec, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if requestingUser != "" && rec.UserID != requestingUser {
		return ErrNotFound
	}
	if isTerminal(rec.Status) {
		return fmt.Errorf("%w: sandbox status is %s", ErrInvalidState, rec.Status)
	}

	now := time.Now().UTC()
	_, err = m.store.Update(ctx, sandboxID, registry.Patch{LastHeartbeatAt: &now})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MarkComplete records the result of an in-sandbox task into the record's
// Config metadata without forcing a state transition — the sandbox stays
// alive for further exec calls until the caller destroys it or its TTL
// expires (§4.4.6). Keys are namespaced under "result." to keep them
// visibly distinct from caller-supplied Config.
func (m *Manager) MarkComplete(ctx context.Context, sandboxID, requestingUser string, result map[string]string) error {
	return m.mergeMetadata(ctx, sandboxID, requestingUser, "result.", result)
}

// MarkError records error details the same way MarkComplete records a
// result (§4.4.7) — it does not transition the sandbox to `failed`,
// because `failed` is reserved for provisioning failures (§4.4's
// CreateSandbox semantics); an error reported about work running inside
// an otherwise-healthy sandbox leaves the sandbox `ready`/`running`.
func (m *Manager) MarkError(ctx context.Context, sandboxID, requestingUser string, errorInfo map[string]string) error {
	return m.mergeMetadata(ctx, sandboxID, requestingUser, "error.", errorInfo)
}

func (m *Manager) mergeMetadata(ctx context.Context, sandboxID, requestingUser, prefix string, fields map[string]string) error {
	lock := m.sandboxLock(sandboxID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if requestingUser != "" && rec.UserID != requestingUser {
		return ErrNotFound
	}
	if isTerminal(rec.Status) {
		return fmt.Errorf("%w: sandbox status is %s", ErrInvalidState, rec.Status)
	}

	merged := make(map[string]string, len(rec.Config)+len(fields))
	for k, v := range rec.Config {
		merged[k] = v
	}
	for k, v := range fields {
		merged[prefix+k] = v
	}

	if _, err := m.store.Update(ctx, sandboxID, registry.Patch{Config: merged}); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
