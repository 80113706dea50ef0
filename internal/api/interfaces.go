package api

import (
	"context"

	"github.com/matrx-platform/sandbox-orchestrator/internal/lifecycle"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// LifecycleService abstracts the Sandbox Lifecycle Manager operations the
// HTTP layer calls, the same way the teacher's SessionService interface
// lets handlers depend on a narrow contract instead of *lifecycle.Manager
// directly (mocked in tests via mockLifecycle).
type LifecycleService interface {
	CreateSandbox(ctx context.Context, userID string, opts lifecycle.CreateOptions) (*registry.Record, error)
	GetSandbox(ctx context.Context, sandboxID, requestingUser string) (*registry.Record, error)
	ListSandboxes(ctx context.Context, requestingUser string) ([]*registry.Record, error)
	ExecInSandbox(ctx context.Context, sandboxID, requestingUser, command, cwdOverride string, timeoutSeconds int) (lifecycle.ExecResult, error)
	Heartbeat(ctx context.Context, sandboxID, requestingUser string) error
	MarkComplete(ctx context.Context, sandboxID, requestingUser string, result map[string]string) error
	MarkError(ctx context.Context, sandboxID, requestingUser string, errorInfo map[string]string) error
	DestroySandbox(ctx context.Context, sandboxID, requestingUser string, graceful bool, reason registry.StopReason) (*registry.Record, error)
	ActiveSandboxCount(ctx context.Context) (int, error)
}
