package objectstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsExcludedMatchesTransientPatterns(t *testing.T) {
	assert.True(t, isExcluded("notes.txt.swp"))
	assert.True(t, isExcluded("users/u-1/hot/foo~"))
	assert.True(t, isExcluded(".DS_Store"))
	assert.True(t, isExcluded("scratch.tmp"))
	assert.False(t, isExcluded("users/u-1/hot/main.go"))
}

func TestWithRetrySucceedsWithoutExhaustingAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), discardLogger(), "test-op", func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryGivesUpAfterConfiguredAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := withRetry(context.Background(), discardLogger(), "test-op", func() error {
		calls++
		return sentinel
	})
	assert.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, syncRetries, calls)
}

func TestWithRetryRecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), discardLogger(), "test-op", func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, discardLogger(), "test-op", func() error {
		calls++
		return errors.New("fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
