// Package protocol is the wire contract between the orchestrator and
// what runs inside a sandbox container: the environment variables the
// orchestrator injects at create time, the well-known paths the
// in-container init process and the host-side exec path both rely on,
// and the sentinel the host uses to recover a command's resulting
// working directory across a one-shot, non-interactive exec.
package protocol

// Env var names the orchestrator injects into every sandbox container
// (§4.6), read by cmd/sandbox-init on startup.
const (
	SandboxIDEnvVar              = "SANDBOX_ID"
	UserIDEnvVar                 = "USER_ID"
	HotPathEnvVar                = "HOT_PATH"
	ColdPathEnvVar               = "COLD_PATH"
	ShutdownTimeoutSecondsEnvVar = "SHUTDOWN_TIMEOUT_SECONDS"
	S3BucketEnvVar               = "S3_BUCKET"
	S3RegionEnvVar               = "S3_REGION"
	HotPrefixEnvVar              = "HOT_PREFIX"
	ColdPrefixEnvVar             = "COLD_PREFIX"
)

// DefaultHotPath and DefaultColdPath are the in-container mount points a
// freshly created sandbox's registry.Record carries before init ever
// runs (§4.1's HotPath/ColdPath fields default to these).
const (
	DefaultHotPath  = "/home/agent/hot"
	DefaultColdPath = "/home/agent/cold"
	DefaultCwd      = "/home/agent"
)

// ReadinessMarkerPath is the file cmd/sandbox-init creates once the hot
// sync-down has completed and the cold mount has been attempted (a failed
// cold mount does not hold the marker back). The Lifecycle Manager's
// waitForReady polls for it via a shell test, mirroring the orchestrator
// reference's sandbox_manager._wait_for_ready.
const ReadinessMarkerPath = "/tmp/.sandbox_ready"

// CwdSentinelPrefix marks the line appended to a wrapped command's
// stderr carrying the shell's resulting working directory, so a
// one-shot Docker exec can report a cwd change the way a persistent
// shell session would. Null-prefixed so it can't collide with anything
// a command itself might print to stderr.
const CwdSentinelPrefix = "\x00__sandbox_cwd__:"
