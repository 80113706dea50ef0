package lifecycle

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/matrx-platform/sandbox-orchestrator/internal/containerdriver"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, rec *registry.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStore) Get(ctx context.Context, sandboxID string) (*registry.Record, error) {
	args := m.Called(ctx, sandboxID)
	if rec := args.Get(0); rec != nil {
		return rec.(*registry.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) List(ctx context.Context, userID string) ([]*registry.Record, error) {
	args := m.Called(ctx, userID)
	if recs := args.Get(0); recs != nil {
		return recs.([]*registry.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, sandboxID string, patch registry.Patch) (*registry.Record, error) {
	args := m.Called(ctx, sandboxID, patch)
	if rec := args.Get(0); rec != nil {
		return rec.(*registry.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, sandboxID string) error {
	args := m.Called(ctx, sandboxID)
	return args.Error(0)
}

func (m *mockStore) ListExpired(ctx context.Context, now time.Time) ([]*registry.Record, error) {
	args := m.Called(ctx, now)
	if recs := args.Get(0); recs != nil {
		return recs.([]*registry.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) Create(ctx context.Context, spec containerdriver.CreateSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *mockDriver) Start(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *mockDriver) Inspect(ctx context.Context, containerID string) (containerdriver.InspectResult, error) {
	args := m.Called(ctx, containerID)
	return args.Get(0).(containerdriver.InspectResult), args.Error(1)
}

func (m *mockDriver) Exec(ctx context.Context, containerID, command string, deadline time.Time, cwd string) (containerdriver.ExecResult, error) {
	args := m.Called(ctx, containerID, command, deadline, cwd)
	return args.Get(0).(containerdriver.ExecResult), args.Error(1)
}

func (m *mockDriver) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	args := m.Called(ctx, containerID, timeout)
	return args.Error(0)
}

func (m *mockDriver) Remove(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *mockDriver) ListByLabel(ctx context.Context, labelSelector string) ([]containerdriver.ContainerInfo, error) {
	args := m.Called(ctx, labelSelector)
	if infos := args.Get(0); infos != nil {
		return infos.([]containerdriver.ContainerInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDriver) Close() error {
	args := m.Called()
	return args.Error(0)
}
