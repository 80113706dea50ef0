package lifecycle

import (
	"context"
	"time"

	"github.com/matrx-platform/sandbox-orchestrator/internal/containerdriver"
	"github.com/matrx-platform/sandbox-orchestrator/internal/metrics"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// RunReconciliationLoop periodically cross-checks live records against
// what the container engine actually has running, grounded on the
// orchestrator reference's reconcile_loop: a non-terminal record whose
// container_id names no live container is drifted and gets closed out
// (a record with no container_id yet is still being provisioned and is
// skipped); a container
// the engine reports that no record references is logged, never removed,
// since destroying infrastructure the registry doesn't know about is
// outside this loop's authority.
func (m *Manager) RunReconciliationLoop(ctx context.Context) {
	interval := time.Duration(m.cfg.ReconcileIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcileOnce(ctx)
		}
	}
}

func (m *Manager) reconcileOnce(ctx context.Context) {
	liveContainers, err := m.driver.ListByLabel(ctx, sandboxLabelSelector)
	if err != nil {
		m.logger.Error("reconciliation: failed to list containers", "err", err)
		return
	}
	byContainerID := make(map[string]containerdriver.ContainerInfo, len(liveContainers))
	for _, c := range liveContainers {
		byContainerID[c.ContainerID] = c
	}

	all, err := m.store.List(ctx, "")
	if err != nil {
		m.logger.Error("reconciliation: failed to list records", "err", err)
		return
	}

	knownSandboxIDs := make(map[string]bool, len(all))
	for _, rec := range all {
		knownSandboxIDs[rec.SandboxID] = true
		if isTerminal(rec.Status) || rec.ContainerID == "" {
			continue
		}
		if _, ok := byContainerID[rec.ContainerID]; ok {
			continue
		}
		m.logger.Warn("reconciliation: orphaned record, no matching container", "sandbox_id", rec.SandboxID, "status", rec.Status)
		m.closeOrphanedRecord(ctx, rec)
	}

	for _, c := range liveContainers {
		if !knownSandboxIDs[c.SandboxID] {
			m.logger.Warn("reconciliation: container with no known record", "container_id", c.ContainerID, "sandbox_id", c.SandboxID)
			metrics.ReconcileUntrackedContainersTotal.Inc()
		}
	}
}

// closeOrphanedRecord transitions a drifted record to `stopped` with
// reason `error`, mirroring failSandbox but reached from reconciliation
// rather than from a provisioning error; it applies to any non-terminal
// status.
func (m *Manager) closeOrphanedRecord(ctx context.Context, rec *registry.Record) {
	lock := m.sandboxLock(rec.SandboxID)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.store.Get(ctx, rec.SandboxID)
	if err != nil || isTerminal(current.Status) {
		return
	}

	stopped := registry.StatusStopped
	reason := registry.StopReasonError
	now := time.Now().UTC()
	if _, err := m.store.Update(ctx, rec.SandboxID, registry.Patch{
		Status:     &stopped,
		StopReason: &reason,
		StoppedAt:  &now,
	}); err != nil {
		m.logger.Error("reconciliation: failed to close orphaned record", "sandbox_id", rec.SandboxID, "err", err)
		return
	}
	m.removeSandboxLock(rec.SandboxID)
	metrics.ReconcileOrphansClosedTotal.Inc()
	metrics.SandboxesActive.Dec()
}

// RunExpiryLoop sweeps the registry for records past their lease and
// destroys them gracefully, mirroring the orchestrator reference's
// expiry sweep cadence (§4.4's background loops).
func (m *Manager) RunExpiryLoop(ctx context.Context) {
	interval := time.Duration(m.cfg.ExpiryIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.expireOnce(ctx)
		}
	}
}

func (m *Manager) expireOnce(ctx context.Context) {
	expired, err := m.store.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		m.logger.Error("expiry sweep: failed to list expired records", "err", err)
		return
	}
	for _, rec := range expired {
		if _, err := m.DestroySandbox(ctx, rec.SandboxID, rec.UserID, true, registry.StopReasonExpired); err != nil {
			m.logger.Error("expiry sweep: failed to destroy expired sandbox", "sandbox_id", rec.SandboxID, "err", err)
		}
	}
}
