package containerdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/matrx-platform/sandbox-orchestrator/protocol"
)

// cwdSentinelPrefix marks the line this package appends to stderr after
// the caller's command finishes, carrying the shell's final working
// directory. Printed to stderr (not stdout) so the caller's own stdout
// stays exactly what their command produced — an adaptation of the
// teacher's PTY sentinel-wrap (cmd/runner/exec.go's buildWrappedCommand)
// to Docker's one-shot, non-PTY exec: there the sentinel also carried the
// exit code because the PTY session had no other way to report it; here
// the exit code comes straight from ContainerExecInspect, so the sentinel
// only needs the cwd.
const cwdSentinelPrefix = protocol.CwdSentinelPrefix

// buildWrappedCommand base64-encodes command to dodge quoting hazards
// (embedded quotes, newlines) and appends a $PWD-reporting sentinel line
// that runs unconditionally after the command, whatever its exit status.
func buildWrappedCommand(command string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(command))
	return fmt.Sprintf(
		`eval "$(echo %s | base64 -d)"; __sandbox_ec=$?; printf '%s%%s\n' "$PWD" >&2; exit $__sandbox_ec`,
		encoded, cwdSentinelPrefix,
	)
}

// splitCwdSentinel pulls the sentinel line out of raw stderr, returning
// the stderr the caller should actually see and the reported cwd (empty
// if the sentinel never appeared, e.g. the shell itself was killed).
func splitCwdSentinel(rawStderr []byte) (cleanStderr string, cwd string) {
	prefix := []byte(cwdSentinelPrefix)
	idx := bytes.LastIndex(rawStderr, prefix)
	if idx < 0 {
		return string(rawStderr), ""
	}
	before := rawStderr[:idx]
	rest := rawStderr[idx+len(prefix):]
	if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
		cwd = string(bytes.TrimSpace(rest[:nl]))
		before = append(before, rest[nl+1:]...)
	} else {
		cwd = string(bytes.TrimSpace(rest))
	}
	return string(before), cwd
}

// Exec runs command inside containerID as the container's configured
// default user (the exec itself sets no user), honoring cwd and deadline
// per §4.2. Before executing, it re-inspects the
// container and refuses with ErrNotRunning if the engine state is not
// "running" — the explicit recheck §4.2 requires beyond whatever state
// the Lifecycle Manager last observed, and the same recheck the Python
// reference's exec_in_sandbox performs immediately before calling
// container.exec_run.
func (d *DockerDriver) Exec(ctx context.Context, containerID, command string, deadline time.Time, cwd string) (ExecResult, error) {
	inspect, err := d.Inspect(ctx, containerID)
	if err != nil {
		return ExecResult{}, err
	}
	if inspect.State != StateRunning {
		return ExecResult{}, ErrNotRunning
	}

	execCtx := ctx
	var cancel context.CancelFunc
	if !deadline.IsZero() {
		execCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	wrapped := buildWrappedCommand(command)
	execCfg := dockercontainer.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", wrapped},
		WorkingDir:   cwd,
		AttachStdout: true,
		AttachStderr: true,
	}

	execResp, err := d.docker.ContainerExecCreate(execCtx, containerID, execCfg)
	if err != nil {
		return ExecResult{}, translateEngineErr(err)
	}

	attachResp, err := d.docker.ContainerExecAttach(execCtx, execResp.ID, dockercontainer.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, translateEngineErr(err)
	}
	defer attachResp.Close()

	type readResult struct {
		stdout, stderr bytes.Buffer
		err            error
	}
	done := make(chan readResult, 1)
	go func() {
		var r readResult
		_, r.err = stdcopy.StdCopy(&r.stdout, &r.stderr, attachResp.Reader)
		done <- r
	}()

	var r readResult
	select {
	case r = <-done:
	case <-execCtx.Done():
		return ExecResult{}, ErrTimeout
	}
	if r.err != nil {
		return ExecResult{}, translateEngineErr(r.err)
	}

	inspectResp, err := d.docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return ExecResult{}, translateEngineErr(err)
	}

	cleanStderr, newCwd := splitCwdSentinel(r.stderr.Bytes())
	if newCwd == "" {
		newCwd = cwd
	}

	return ExecResult{
		ExitCode: inspectResp.ExitCode,
		Stdout:   r.stdout.String(),
		Stderr:   cleanStderr,
		NewCwd:   newCwd,
	}, nil
}
