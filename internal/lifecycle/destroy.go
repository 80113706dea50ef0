package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/matrx-platform/sandbox-orchestrator/internal/metrics"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// DestroySandbox tears a sandbox down, idempotently: calling it again on
// an already-terminal record just returns the record as-is rather than
// erroring, since two concurrent destroy requests (or a destroy racing
// the expiry loop, §8 P6) are a normal occurrence, not a caller mistake.
//
// graceful asks the driver to stop the container with the configured
// grace period before removing it; a non-graceful destroy removes it
// directly (§4.4.8, used when the container is already known dead).
func (m *Manager) DestroySandbox(ctx context.Context, sandboxID, requestingUser string, graceful bool, reason registry.StopReason) (*registry.Record, error) {
	lock := m.sandboxLock(sandboxID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if requestingUser != "" && rec.UserID != requestingUser {
		return nil, ErrNotFound
	}

	if isTerminal(rec.Status) {
		return rec, nil
	}

	shuttingDown := registry.StatusShuttingDown
	rec, err = m.store.Update(ctx, sandboxID, registry.Patch{Status: &shuttingDown})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if rec.ContainerID != "" {
		if graceful {
			stopTimeout := time.Duration(m.cfg.ShutdownTimeoutSeconds) * time.Second
			if err := m.driver.Stop(ctx, rec.ContainerID, stopTimeout); err != nil {
				m.logger.Warn("graceful stop failed, removing anyway", "sandbox_id", sandboxID, "err", err)
			}
		}
		if err := m.driver.Remove(ctx, rec.ContainerID); err != nil {
			m.logger.Warn("container removal failed", "sandbox_id", sandboxID, "container_id", rec.ContainerID, "err", err)
		}
	}

	stopped := registry.StatusStopped
	now := time.Now().UTC()
	final, err := m.store.Update(ctx, sandboxID, registry.Patch{
		Status:     &stopped,
		StopReason: &reason,
		StoppedAt:  &now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	m.removeSandboxLock(sandboxID)
	metrics.DestroysTotal.WithLabelValues(string(reason)).Inc()
	metrics.SandboxesActive.Dec()
	return final, nil
}
