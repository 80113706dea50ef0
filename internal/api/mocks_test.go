package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/matrx-platform/sandbox-orchestrator/internal/lifecycle"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) CreateSandbox(ctx context.Context, userID string, opts lifecycle.CreateOptions) (*registry.Record, error) {
	args := m.Called(ctx, userID, opts)
	if rec := args.Get(0); rec != nil {
		return rec.(*registry.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLifecycle) GetSandbox(ctx context.Context, sandboxID, requestingUser string) (*registry.Record, error) {
	args := m.Called(ctx, sandboxID, requestingUser)
	if rec := args.Get(0); rec != nil {
		return rec.(*registry.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLifecycle) ListSandboxes(ctx context.Context, requestingUser string) ([]*registry.Record, error) {
	args := m.Called(ctx, requestingUser)
	if recs := args.Get(0); recs != nil {
		return recs.([]*registry.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLifecycle) ExecInSandbox(ctx context.Context, sandboxID, requestingUser, command, cwdOverride string, timeoutSeconds int) (lifecycle.ExecResult, error) {
	args := m.Called(ctx, sandboxID, requestingUser, command, cwdOverride, timeoutSeconds)
	return args.Get(0).(lifecycle.ExecResult), args.Error(1)
}

func (m *mockLifecycle) Heartbeat(ctx context.Context, sandboxID, requestingUser string) error {
	args := m.Called(ctx, sandboxID, requestingUser)
	return args.Error(0)
}

func (m *mockLifecycle) MarkComplete(ctx context.Context, sandboxID, requestingUser string, result map[string]string) error {
	args := m.Called(ctx, sandboxID, requestingUser, result)
	return args.Error(0)
}

func (m *mockLifecycle) MarkError(ctx context.Context, sandboxID, requestingUser string, errorInfo map[string]string) error {
	args := m.Called(ctx, sandboxID, requestingUser, errorInfo)
	return args.Error(0)
}

func (m *mockLifecycle) DestroySandbox(ctx context.Context, sandboxID, requestingUser string, graceful bool, reason registry.StopReason) (*registry.Record, error) {
	args := m.Called(ctx, sandboxID, requestingUser, graceful, reason)
	if rec := args.Get(0); rec != nil {
		return rec.(*registry.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLifecycle) ActiveSandboxCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
