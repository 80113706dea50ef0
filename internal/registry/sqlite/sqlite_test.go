package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testRecord(id, userID string) *registry.Record {
	now := time.Now().UTC()
	return &registry.Record{
		SandboxID: id,
		UserID:    userID,
		Status:    registry.StatusCreating,
		HotPath:   "/home/agent",
		ColdPath:  "/data/cold",
		Cwd:       "/home/agent",
		Config:    map[string]string{"foo": "bar"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("sbx-1", "u-alice")
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "sbx-1")
	require.NoError(t, err)
	assert.Equal(t, "u-alice", got.UserID)
	assert.Equal(t, "bar", got.Config["foo"])
}

func TestSaveConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testRecord("sbx-1", "u-alice")))
	err := s.Save(ctx, testRecord("sbx-1", "u-bob"))
	assert.ErrorIs(t, err, registry.ErrConflict)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestListScopedByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testRecord("sbx-1", "u-alice")))
	require.NoError(t, s.Save(ctx, testRecord("sbx-2", "u-bob")))
	require.NoError(t, s.Save(ctx, testRecord("sbx-3", "u-alice")))

	recs, err := s.List(ctx, "u-alice")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestListEmpty(t *testing.T) {
	s := newTestStore(t)
	recs, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpdatePersistsAndReturnsMergedRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testRecord("sbx-1", "u-alice")))

	status := registry.StatusReady
	cwd := "/home/agent/project"
	updated, err := s.Update(ctx, "sbx-1", registry.Patch{Status: &status, Cwd: &cwd})
	require.NoError(t, err)
	assert.Equal(t, registry.StatusReady, updated.Status)
	assert.Equal(t, cwd, updated.Cwd)

	got, err := s.Get(ctx, "sbx-1")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusReady, got.Status)
	assert.Equal(t, cwd, got.Cwd)
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestStore(t)
	status := registry.StatusReady
	_, err := s.Update(context.Background(), "missing", registry.Patch{Status: &status})
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestDeleteNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestListExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	expired := testRecord("sbx-expired", "u-alice")
	expired.Status = registry.StatusReady
	expired.ExpiresAt = &past
	require.NoError(t, s.Save(ctx, expired))

	notExpired := testRecord("sbx-alive", "u-alice")
	notExpired.Status = registry.StatusRunning
	notExpired.ExpiresAt = &future
	require.NoError(t, s.Save(ctx, notExpired))

	notActive := testRecord("sbx-stopped", "u-alice")
	notActive.Status = registry.StatusStopped
	notActive.ExpiresAt = &past
	require.NoError(t, s.Save(ctx, notActive))

	recs, err := s.ListExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "sbx-expired", recs[0].SandboxID)
}

func TestExpiresAtNilSurvivesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("sbx-1", "u-alice")
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "sbx-1")
	require.NoError(t, err)
	assert.Nil(t, got.ExpiresAt)
}
