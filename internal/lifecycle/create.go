package lifecycle

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/matrx-platform/sandbox-orchestrator/internal/containerdriver"
	"github.com/matrx-platform/sandbox-orchestrator/internal/metrics"
	"github.com/matrx-platform/sandbox-orchestrator/internal/objectstore"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
	"github.com/matrx-platform/sandbox-orchestrator/protocol"
)

// userIDPattern is §4.4's CreateSandbox precondition on user_id shape.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,255}$`)

// CreateOptions carries the caller-supplied fields from the POST
// /sandboxes body (§6.1).
type CreateOptions struct {
	TTLSeconds int
	Config     map[string]string
}

// CreateSandbox provisions a fresh sandbox end to end: registers a
// `creating` record, asks the driver to create and start a container,
// polls for the in-container readiness marker, and on success transitions
// to `ready` with a lease. Any failure before `ready` rolls the record to
// `failed` and removes whatever the driver created.
func (m *Manager) CreateSandbox(ctx context.Context, userID string, opts CreateOptions) (*registry.Record, error) {
	start := time.Now()
	defer func() { metrics.SandboxCreateDuration.Observe(time.Since(start).Seconds()) }()

	if !userIDPattern.MatchString(userID) {
		return nil, fmt.Errorf("%w: user_id %q does not match %s", ErrValidation, userID, userIDPattern.String())
	}

	ttl := opts.TTLSeconds
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTLSeconds
	}

	sandboxID := uuid.NewString()
	now := time.Now().UTC()

	cfgCopy := opts.Config
	if cfgCopy == nil {
		cfgCopy = map[string]string{}
	}

	rec := &registry.Record{
		SandboxID:  sandboxID,
		UserID:     userID,
		Status:     registry.StatusCreating,
		HotPath:    protocol.DefaultHotPath,
		ColdPath:   protocol.DefaultColdPath,
		Cwd:        protocol.DefaultCwd,
		Config:     cfgCopy,
		TTLSeconds: ttl,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConflict, err)
	}

	lock := m.sandboxLock(sandboxID)
	lock.Lock()
	defer lock.Unlock()

	containerID, err := m.createAndStart(ctx, rec)
	if err != nil {
		m.failSandbox(ctx, sandboxID, err)
		metrics.SandboxesCreatedTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	updated, err := m.transition(ctx, sandboxID, registry.StatusStarting, nil)
	if err != nil {
		m.driver.Remove(ctx, containerID)
		m.failSandbox(ctx, sandboxID, err)
		metrics.SandboxesCreatedTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	rec = updated

	readinessDeadline := time.Now().Add(time.Duration(m.cfg.ReadinessTimeoutSeconds) * time.Second)
	if err := m.waitForReady(ctx, containerID, readinessDeadline); err != nil {
		m.driver.Remove(ctx, containerID)
		m.failSandbox(ctx, sandboxID, err)
		metrics.SandboxesCreatedTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	expiresAt := time.Now().Add(time.Duration(ttl) * time.Second)
	readyStatus := registry.StatusReady
	final, err := m.store.Update(ctx, sandboxID, registry.Patch{
		Status:    &readyStatus,
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		m.driver.Remove(ctx, containerID)
		m.failSandbox(ctx, sandboxID, err)
		metrics.SandboxesCreatedTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	metrics.SandboxesCreatedTotal.WithLabelValues("ready").Inc()
	metrics.SandboxesActive.Inc()
	return final, nil
}

func (m *Manager) createAndStart(ctx context.Context, rec *registry.Record) (string, error) {
	prefixes := objectstore.PrefixesForUser(rec.UserID)

	env := map[string]string{
		protocol.SandboxIDEnvVar:              rec.SandboxID,
		protocol.UserIDEnvVar:                 rec.UserID,
		protocol.HotPathEnvVar:                rec.HotPath,
		protocol.ColdPathEnvVar:               rec.ColdPath,
		protocol.ShutdownTimeoutSecondsEnvVar: fmt.Sprintf("%d", m.cfg.ShutdownTimeoutSeconds),
	}
	if m.object != nil {
		env[protocol.S3BucketEnvVar] = m.object.Bucket()
		env[protocol.S3RegionEnvVar] = m.object.Region()
		env[protocol.HotPrefixEnvVar] = prefixes.HotPrefix
		env[protocol.ColdPrefixEnvVar] = prefixes.ColdPrefix
	}

	spec := containerdriver.CreateSpec{
		SandboxID:     rec.SandboxID,
		UserID:        rec.UserID,
		ImageRef:      m.cfg.SandboxImageRef,
		Env:           env,
		CPULimit:      m.cfg.ContainerCPULimit,
		MemLimitMB:    m.cfg.ContainerMemLimitMB,
		PidsLimit:     m.cfg.ContainerPidsLimit,
		DockerNetwork: m.cfg.DockerNetwork,
	}

	containerID, err := m.driver.Create(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	if _, err := m.store.Update(ctx, rec.SandboxID, registry.Patch{ContainerID: &containerID}); err != nil {
		m.driver.Remove(ctx, containerID)
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := m.driver.Start(ctx, containerID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return containerID, nil
}

// waitForReady polls for the readiness marker by shelling a `test -f`
// check into the container, matching the Python reference's
// _wait_for_ready 2-second poll interval but driven by the driver's Exec
// rather than a direct engine exec_run call.
func (m *Manager) waitForReady(ctx context.Context, containerID string, deadline time.Time) error {
	const pollInterval = 2 * time.Second
	check := fmt.Sprintf("test -f %s", protocol.ReadinessMarkerPath)

	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: readiness marker not observed before deadline", ErrTimeout)
		}

		result, err := m.driver.Exec(ctx, containerID, check, deadline, "/")
		if err == nil && result.ExitCode == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// transition applies a state-machine move and persists it, validating
// against validTransitions first so an illegal move never reaches the
// store.
func (m *Manager) transition(ctx context.Context, sandboxID string, to registry.Status, extra *registry.Patch) (*registry.Record, error) {
	rec, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if err := validateTransition(rec.Status, to); err != nil {
		return nil, err
	}

	patch := registry.Patch{Status: &to}
	if extra != nil {
		patch.Cwd = extra.Cwd
		patch.ContainerID = extra.ContainerID
		patch.Config = extra.Config
		patch.ExpiresAt = extra.ExpiresAt
		patch.LastHeartbeatAt = extra.LastHeartbeatAt
		patch.StoppedAt = extra.StoppedAt
		patch.StopReason = extra.StopReason
	}

	updated, err := m.store.Update(ctx, sandboxID, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return updated, nil
}

// failSandbox marks a sandbox failed after an error occurring anywhere
// before it reaches `ready`, per §4.4's CreateSandbox failure semantics.
func (m *Manager) failSandbox(ctx context.Context, sandboxID string, cause error) {
	current, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		m.logger.Error("failed to load sandbox before marking failed", "sandbox_id", sandboxID, "err", err)
		return
	}
	if isTerminal(current.Status) {
		return
	}

	failed := registry.StatusFailed
	reason := registry.StopReasonError
	now := time.Now().UTC()
	if _, err := m.store.Update(ctx, sandboxID, registry.Patch{
		Status:     &failed,
		StopReason: &reason,
		StoppedAt:  &now,
	}); err != nil {
		m.logger.Error("failed to mark sandbox failed", "sandbox_id", sandboxID, "cause", cause, "update_err", err)
	}
}
