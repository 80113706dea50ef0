package lifecycle

import (
	"context"
	"fmt"

	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// GetSandbox fetches a record and enforces ownership: a non-admin caller
// may only read their own sandboxes. A mismatched owner looks identical
// to a missing record (§8 P3, and the seed scenario's explicit "404, not
// 403, to avoid an existence oracle"). An empty requestingUser is the
// admin/unscoped caller — mirrors registry.Store.List's own "" == all
// users convention (§4.1) — and bypasses the ownership check.
func (m *Manager) GetSandbox(ctx context.Context, sandboxID, requestingUser string) (*registry.Record, error) {
	rec, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if requestingUser != "" && rec.UserID != requestingUser {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ListSandboxes returns every record owned by requestingUser.
func (m *Manager) ListSandboxes(ctx context.Context, requestingUser string) ([]*registry.Record, error) {
	recs, err := m.store.List(ctx, requestingUser)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return recs, nil
}

// ActiveSandboxCount counts every record not yet in a terminal state,
// backing /health's richer {active_sandboxes} field (the original
// system's health response, folded into SPEC_FULL.md's union shape).
func (m *Manager) ActiveSandboxCount(ctx context.Context) (int, error) {
	recs, err := m.store.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	count := 0
	for _, rec := range recs {
		if !isTerminal(rec.Status) {
			count++
		}
	}
	return count, nil
}
