package containerdriver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConnectionFailure(t *testing.T) {
	assert.True(t, isConnectionFailure(errors.New("dial unix /var/run/docker.sock: connect: connection refused")))
	assert.True(t, isConnectionFailure(errors.New("Cannot connect to the Docker daemon at unix:///var/run/docker.sock")))
	assert.False(t, isConnectionFailure(errors.New("no such container")))
}

func TestTranslateEngineErrNilIsNil(t *testing.T) {
	assert.NoError(t, translateEngineErr(nil))
}

// newReachableTestDriver returns a DockerDriver connected to a live daemon,
// skipping the test when none is reachable. Mirrors the teacher's own
// reliance on a real daemon for anything beyond pure-function coverage.
func newReachableTestDriver(t *testing.T) *DockerDriver {
	t.Helper()
	d, err := NewDockerDriver()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := d.docker.Ping(ctx); err != nil {
		t.Skip("no reachable Docker daemon, skipping integration test")
	}
	return d
}

func TestListByLabelAgainstLiveDaemon(t *testing.T) {
	d := newReachableTestDriver(t)
	_, err := d.ListByLabel(context.Background(), labelPrefix+"managed=true")
	assert.NoError(t, err)
}
