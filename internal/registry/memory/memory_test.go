package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

func testRecord(id, userID string) *registry.Record {
	now := time.Now().UTC()
	return &registry.Record{
		SandboxID: id,
		UserID:    userID,
		Status:    registry.StatusCreating,
		HotPath:   "/home/agent",
		ColdPath:  "/data/cold",
		Cwd:       "/home/agent",
		Config:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	rec := testRecord("sbx-1", "u-alice")
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "sbx-1")
	require.NoError(t, err)
	assert.Equal(t, "u-alice", got.UserID)
}

func TestSaveConflict(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testRecord("sbx-1", "u-alice")))
	err := s.Save(ctx, testRecord("sbx-1", "u-bob"))
	assert.ErrorIs(t, err, registry.ErrConflict)
}

func TestGetNotFound(t *testing.T) {
	s := New(0)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestListScopedByUser(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testRecord("sbx-1", "u-alice")))
	require.NoError(t, s.Save(ctx, testRecord("sbx-2", "u-bob")))
	require.NoError(t, s.Save(ctx, testRecord("sbx-3", "u-alice")))

	recs, err := s.List(ctx, "u-alice")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "u-alice", r.UserID)
	}
}

func TestUpdateAdvancesUpdatedAt(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	rec := testRecord("sbx-1", "u-alice")
	require.NoError(t, s.Save(ctx, rec))

	status := registry.StatusReady
	updated, err := s.Update(ctx, "sbx-1", registry.Patch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, registry.StatusReady, updated.Status)
	assert.True(t, updated.UpdatedAt.After(rec.UpdatedAt) || updated.UpdatedAt.Equal(rec.UpdatedAt))
}

func TestUpdateNotFound(t *testing.T) {
	s := New(0)
	status := registry.StatusReady
	_, err := s.Update(context.Background(), "missing", registry.Patch{Status: &status})
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestListExpired(t *testing.T) {
	s := New(0)
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

func TestRetentionPrunesOldTerminalRecords(t *testing.T) {
	s := New(time.Millisecond)
	ctx := context.Background()

	rec := testRecord("sbx-1", "u-alice")
	stopped := time.Now().UTC().Add(-time.Hour)
	rec.StoppedAt = &stopped
	rec.Status = registry.StatusStopped
	require.NoError(t, s.Save(ctx, rec))

	// Trigger pruneLocked via a second Save.
	require.NoError(t, s.Save(ctx, testRecord("sbx-2", "u-bob")))

	_, err := s.Get(ctx, "sbx-1")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCloneIsolatesMutation(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	rec := testRecord("sbx-1", "u-alice")
	rec.Config["key"] = "value"
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "sbx-1")
	require.NoError(t, err)
	got.Config["key"] = "mutated"

	got2, err := s.Get(ctx, "sbx-1")
	require.NoError(t, err)
	assert.Equal(t, "value", got2.Config["key"])
}
