// Command sandbox-init is the in-container half of the lifecycle
// protocol: it runs as PID 1 (or a supervised child of it) inside every
// sandbox image, mirrors hot storage down on startup and back up on
// shutdown, attempts a cold mount, signals readiness, and then blocks
// until the orchestrator asks it to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/matrx-platform/sandbox-orchestrator/internal/objectstore"
	"github.com/matrx-platform/sandbox-orchestrator/protocol"
)

type env struct {
	sandboxID       string
	userID          string
	bucket          string
	region          string
	hotPath         string
	coldPath        string
	hotPrefix       string
	coldPrefix      string
	shutdownTimeout time.Duration
}

func loadEnv() (*env, error) {
	e := &env{
		hotPath:         protocol.DefaultHotPath,
		coldPath:        protocol.DefaultColdPath,
		shutdownTimeout: 30 * time.Second,
	}

	required := map[string]*string{
		protocol.SandboxIDEnvVar: &e.sandboxID,
		protocol.UserIDEnvVar:    &e.userID,
		protocol.S3BucketEnvVar:  &e.bucket,
	}
	for name, dest := range required {
		v := os.Getenv(name)
		if v == "" {
			return nil, fmt.Errorf("missing required environment variable %s", name)
		}
		*dest = v
	}

	if v := os.Getenv(protocol.S3RegionEnvVar); v != "" {
		e.region = v
	} else {
		e.region = "us-east-1"
	}
	if v := os.Getenv(protocol.HotPathEnvVar); v != "" {
		e.hotPath = v
	}
	if v := os.Getenv(protocol.ColdPathEnvVar); v != "" {
		e.coldPath = v
	}
	if v := os.Getenv(protocol.ShutdownTimeoutSecondsEnvVar); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("malformed %s: %w", protocol.ShutdownTimeoutSecondsEnvVar, err)
		}
		e.shutdownTimeout = time.Duration(secs) * time.Second
	}

	prefixes := objectstore.PrefixesForUser(e.userID)
	e.hotPrefix = prefixes.HotPrefix
	e.coldPrefix = prefixes.ColdPrefix
	if v := os.Getenv(protocol.HotPrefixEnvVar); v != "" {
		e.hotPrefix = v
	}
	if v := os.Getenv(protocol.ColdPrefixEnvVar); v != "" {
		e.coldPrefix = v
	}

	return e, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	e, err := loadEnv()
	if err != nil {
		logger.Error("invalid environment", "error", err)
		os.Exit(1)
	}
	logger = logger.With("sandbox_id", e.sandboxID, "user_id", e.userID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(e.region))
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}
	client := s3.NewFromConfig(awsCfg)

	if err := runStartup(ctx, e, client, logger); err != nil {
		logger.Error("startup sequence failed", "error", err)
		os.Exit(1)
	}

	logger.Info("ready, blocking for termination signal")
	<-ctx.Done()
	logger.Info("termination signal received, running shutdown sequence")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
	defer shutdownCancel()

	if err := runShutdown(shutdownCtx, e, client, logger); err != nil {
		logger.Error("shutdown sequence failed", "error", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// runStartup implements §4.6's numbered startup sequence, steps 2-5
// (step 1, env validation, already happened in loadEnv).
func runStartup(ctx context.Context, e *env, client *s3.Client, logger *slog.Logger) error {
	if err := os.MkdirAll(e.hotPath, 0o755); err != nil {
		return fmt.Errorf("create hot path: %w", err)
	}
	if err := objectstore.SyncDown(ctx, client, e.bucket, e.hotPrefix, e.hotPath, logger); err != nil {
		return fmt.Errorf("hot-sync down: %w", err)
	}
	logger.Info("hot-sync down complete")

	if err := mountCold(e); err != nil {
		logger.Warn("cold mount unavailable, proceeding without it", "error", err)
	} else {
		logger.Info("cold mount established", "path", e.coldPath)
	}

	if err := prepareAgentEnv(e); err != nil {
		return fmt.Errorf("prepare agent environment: %w", err)
	}

	if err := writeReadinessMarker(); err != nil {
		return fmt.Errorf("write readiness marker: %w", err)
	}
	logger.Info("readiness marker written", "path", protocol.ReadinessMarkerPath)
	return nil
}

// runShutdown implements §4.6's shutdown sequence. Hot-sync-up failures
// are returned (the orchestrator needs to know data may not have been
// flushed); unmount/cleanup failures are logged and swallowed, since
// step 3 is explicitly best-effort.
func runShutdown(ctx context.Context, e *env, client *s3.Client, logger *slog.Logger) error {
	if err := os.Remove(protocol.ReadinessMarkerPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove readiness marker", "error", err)
	}

	if err := objectstore.SyncUp(ctx, client, e.bucket, e.hotPrefix, e.hotPath, logger); err != nil {
		return fmt.Errorf("hot-sync up: %w", err)
	}
	logger.Info("hot-sync up complete")

	if err := unmountCold(e); err != nil {
		logger.Warn("cold unmount failed, continuing shutdown", "error", err)
	}
	return nil
}

func writeReadinessMarker() error {
	f, err := os.Create(protocol.ReadinessMarkerPath)
	if err != nil {
		return err
	}
	return f.Close()
}

// prepareAgentEnv ensures the agent user's home directory and a minimal
// shell profile exist; the profile exports HOT_PATH and COLD_PATH and
// changes into the default working directory. PATH is left untouched.
func prepareAgentEnv(e *env) error {
	u, err := user.Current()
	home := "/home/agent"
	if err == nil && u.HomeDir != "" {
		home = u.HomeDir
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	profile := filepath.Join(home, ".profile")
	contents := fmt.Sprintf("export HOT_PATH=%q\nexport COLD_PATH=%q\ncd %q\n", e.hotPath, e.coldPath, protocol.DefaultCwd)
	return os.WriteFile(profile, []byte(contents), 0o644)
}
