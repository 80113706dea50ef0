package containerdriver

import (
	"context"
	"fmt"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"
)

const labelPrefix = "orchestrator."

// DockerDriver is the Docker Engine API-backed Driver, grounded on the
// teacher's internal/docker.Client: labels, resource limits, and
// no-new-privileges/CapDrop hardening carry over directly. Unlike the
// teacher, sandboxes also request the FUSE device and SYS_ADMIN
// capability needed for the cold-mount step of the in-container
// lifecycle protocol (§4.6), following the Python reference's
// sandbox_manager.create_sandbox.
type DockerDriver struct {
	docker *client.Client
}

var _ Driver = (*DockerDriver)(nil)

// NewDockerDriver connects to the Docker daemon using the standard
// environment-derived configuration (DOCKER_HOST, DOCKER_CERT_PATH, ...).
func NewDockerDriver() (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return &DockerDriver{docker: cli}, nil
}

func (d *DockerDriver) Close() error {
	return d.docker.Close()
}

func (d *DockerDriver) Create(ctx context.Context, spec CreateSpec) (string, error) {
	labels := map[string]string{
		labelPrefix + "sandbox_id": spec.SandboxID,
		labelPrefix + "user_id":    spec.UserID,
		labelPrefix + "managed":    "true",
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	resources := dockercontainer.Resources{
		NanoCPUs:  int64(spec.CPULimit * 1e9),
		Memory:    int64(spec.MemLimitMB) * 1024 * 1024,
		PidsLimit: int64Ptr(int64(spec.PidsLimit)),
	}

	hostCfg := &dockercontainer.HostConfig{
		Resources:      resources,
		AutoRemove:     false,
		SecurityOpt:    []string{"no-new-privileges"},
		CapAdd:         []string{"SYS_ADMIN"},
		CapDrop:        []string{"ALL", "NET_RAW"},
		Devices: []dockercontainer.DeviceMapping{
			{PathOnHost: "/dev/fuse", PathInContainer: "/dev/fuse", CgroupPermissions: "rwm"},
		},
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
		ShmSize:    64 * units.MiB,
	}
	if spec.DockerNetwork != "" {
		hostCfg.NetworkMode = dockercontainer.NetworkMode(spec.DockerNetwork)
	}

	containerCfg := &dockercontainer.Config{
		Image:  spec.ImageRef,
		Labels: labels,
		Env:    env,
		Tty:    false,
	}

	name := "sandbox-" + spec.SandboxID
	resp, err := d.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", translateEngineErr(err)
	}
	return resp.ID, nil
}

func (d *DockerDriver) Start(ctx context.Context, containerID string) error {
	if err := d.docker.ContainerStart(ctx, containerID, dockercontainer.StartOptions{}); err != nil {
		// Per §4.2's create failure semantics: leave no half-created resource behind.
		d.docker.ContainerRemove(ctx, containerID, dockercontainer.RemoveOptions{Force: true})
		return translateEngineErr(err)
	}
	return nil
}

func (d *DockerDriver) Inspect(ctx context.Context, containerID string) (InspectResult, error) {
	info, err := d.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return InspectResult{}, translateEngineErr(err)
	}

	state := StateUnknown
	switch {
	case info.State.Running:
		state = StateRunning
	case info.State.Status == "exited", info.State.Status == "dead":
		state = StateExited
	}

	var startedAt time.Time
	if t, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
		startedAt = t
	}

	return InspectResult{
		State:     state,
		ExitCode:  info.State.ExitCode,
		StartedAt: startedAt,
	}, nil
}

func (d *DockerDriver) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	err := d.docker.ContainerStop(ctx, containerID, dockercontainer.StopOptions{Timeout: &secs})
	if err != nil && !client.IsErrNotFound(err) {
		return translateEngineErr(err)
	}
	return nil
}

func (d *DockerDriver) Remove(ctx context.Context, containerID string) error {
	err := d.docker.ContainerRemove(ctx, containerID, dockercontainer.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return translateEngineErr(err)
	}
	return nil
}

func (d *DockerDriver) ListByLabel(ctx context.Context, labelSelector string) ([]ContainerInfo, error) {
	f := filters.NewArgs()
	f.Add("label", labelSelector)

	containers, err := d.docker.ContainerList(ctx, dockercontainer.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, translateEngineErr(err)
	}

	var out []ContainerInfo
	for _, ctr := range containers {
		sandboxID := ctr.Labels[labelPrefix+"sandbox_id"]
		if sandboxID == "" {
			continue
		}
		out = append(out, ContainerInfo{ContainerID: ctr.ID, SandboxID: sandboxID})
	}
	return out, nil
}

func int64Ptr(v int64) *int64 { return &v }

func translateEngineErr(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrNotFound(err) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if isConnectionFailure(err) {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrEngineError, err)
}

// isConnectionFailure recognizes the daemon-unreachable case by message,
// since the exact sentinel exported by the docker client package has
// shifted across versions; matching the teacher's isBusyLock style rather
// than depending on an unstable API.
func isConnectionFailure(err error) bool {
	s := err.Error()
	return contains(s, "connection refused") || contains(s, "cannot connect to the Docker daemon") ||
		contains(s, "context deadline exceeded")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
