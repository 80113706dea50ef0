package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/matrx-platform/sandbox-orchestrator/internal/containerdriver"
	"github.com/matrx-platform/sandbox-orchestrator/internal/metrics"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
)

// maxCommandLengthBytesDefault is the command length limit ExecInSandbox
// enforces when the config sets none, in addition to whatever the HTTP
// layer validates.
const maxCommandLengthBytesDefault = 10000

// ExecResult mirrors the {exit_code, stdout, stderr, new_cwd} shape from
// §4.2/§4.4, independent of containerdriver's own result type so the API
// layer doesn't import the driver package.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Cwd      string
}

// ExecInSandbox runs command inside sandboxID's container, serialized
// against any other mutation of the same sandbox via the per-sandbox
// lock (§5's exec-serializability guarantee, P5). On success the new cwd
// is persisted to the record only when exit_code == 0 — the "least
// surprise" choice from the design notes: a failing command (e.g. `cd
// /nonexistent`) should not silently relocate the session. The returned
// Cwd is the directory the record holds after the call.
func (m *Manager) ExecInSandbox(ctx context.Context, sandboxID, requestingUser, command string, cwdOverride string, timeoutSeconds int) (ExecResult, error) {
	start := time.Now()
	defer func() { metrics.ExecDuration.Observe(time.Since(start).Seconds()) }()

	if len(command) == 0 {
		return ExecResult{}, fmt.Errorf("%w: command must be non-empty", ErrValidation)
	}
	maxLen := maxCommandLengthBytesDefault
	if m.cfg != nil && m.cfg.MaxCommandLengthByte > 0 {
		maxLen = m.cfg.MaxCommandLengthByte
	}
	if len(command) > maxLen {
		return ExecResult{}, fmt.Errorf("%w: command exceeds %d bytes", ErrValidation, maxLen)
	}

	lock := m.sandboxLock(sandboxID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.store.Get(ctx, sandboxID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if requestingUser != "" && rec.UserID != requestingUser {
		return ExecResult{}, ErrNotFound
	}
	if !isActiveForExec(rec.Status) {
		return ExecResult{}, fmt.Errorf("%w: sandbox status is %s", ErrInvalidState, rec.Status)
	}

	effectiveCwd := rec.Cwd
	if cwdOverride != "" {
		effectiveCwd = cwdOverride
	}

	deadline := m.execDeadline(timeoutSeconds)
	result, err := m.driver.Exec(ctx, rec.ContainerID, command, deadline, effectiveCwd)
	if err != nil {
		translated := m.translateExecErr(ctx, sandboxID, err)
		metrics.ExecTotal.WithLabelValues(execOutcomeLabel(translated)).Inc()
		return ExecResult{}, translated
	}

	now := time.Now().UTC()
	patch := registry.Patch{LastHeartbeatAt: &now}
	if rec.Status == registry.StatusReady {
		running := registry.StatusRunning
		patch.Status = &running
	}
	finalCwd := effectiveCwd
	if result.ExitCode == 0 && result.NewCwd != "" {
		patch.Cwd = &result.NewCwd
		finalCwd = result.NewCwd
	}
	if _, err := m.store.Update(ctx, sandboxID, patch); err != nil {
		m.logger.Error("failed to persist exec side effects", "sandbox_id", sandboxID, "err", err)
	}

	metrics.ExecTotal.WithLabelValues("ok").Inc()
	return ExecResult{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		Cwd:      finalCwd,
	}, nil
}

// translateExecErr implements §7's propagation policy: a driver-layer
// NotFound or not-running during exec means the container vanished out
// from under us, which the Lifecycle Manager turns into a reconciliation
// event (mark the record stopped/error) while the caller just sees
// InvalidState.
func (m *Manager) translateExecErr(ctx context.Context, sandboxID string, err error) error {
	switch {
	case isErr(err, containerdriver.ErrNotFound), isErr(err, containerdriver.ErrNotRunning):
		stopped := registry.StatusStopped
		reason := registry.StopReasonError
		now := time.Now().UTC()
		if _, uerr := m.store.Update(ctx, sandboxID, registry.Patch{
			Status: &stopped, StopReason: &reason, StoppedAt: &now,
		}); uerr != nil {
			m.logger.Error("failed to record drift during exec", "sandbox_id", sandboxID, "err", uerr)
		}
		metrics.SandboxesActive.Dec()
		return fmt.Errorf("%w: container no longer present", ErrInvalidState)
	case isErr(err, containerdriver.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case isErr(err, containerdriver.ErrEngineUnavailable):
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
}

// execOutcomeLabel maps a translated exec error to the low-cardinality
// metrics.ExecTotal outcome label.
func execOutcomeLabel(err error) string {
	switch {
	case isErr(err, ErrInvalidState):
		return "invalid_state"
	case isErr(err, ErrTimeout):
		return "timeout"
	case isErr(err, ErrEngineUnavailable):
		return "engine_unavailable"
	default:
		return "internal"
	}
}

func isErr(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return errorsIsFallback(err, target)
}

// errorsIsFallback is a final plain equality check on the error isErr's
// loop stopped at; it repeats the loop's last comparison, so it adds no
// match of its own. containerdriver wraps with a single %w, which the
// loop's Unwrap walk already covers.
func errorsIsFallback(err, target error) bool {
	return err == target
}
