// Command orchestrator runs the sandbox orchestrator daemon: it loads
// configuration, wires the Registry Store, Container Driver, and
// Object-Store Gateway into a Lifecycle Manager, and serves the HTTP
// API surface with background reconciliation and expiry loops running
// alongside it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matrx-platform/sandbox-orchestrator/internal/api"
	"github.com/matrx-platform/sandbox-orchestrator/internal/config"
	"github.com/matrx-platform/sandbox-orchestrator/internal/containerdriver"
	"github.com/matrx-platform/sandbox-orchestrator/internal/lifecycle"
	"github.com/matrx-platform/sandbox-orchestrator/internal/objectstore"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry/memory"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry/postgres"
	"github.com/matrx-platform/sandbox-orchestrator/internal/registry/sqlite"
)

func main() {
	cfgPath := flag.String("config", "", "path to orchestrator.yaml")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if cfg.APIKey == "" {
		logger.Warn("no API key configured — running in open access mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("open registry store", "error", err, "backend", cfg.SandboxStoreBackend)
		os.Exit(1)
	}
	defer closeStore()

	driver, err := containerdriver.NewDockerDriver()
	if err != nil {
		logger.Error("docker client", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	var gateway *objectstore.Gateway
	if cfg.ObjectStoreBucket != "" {
		gateway, err = objectstore.New(ctx, cfg.ObjectStoreBucket, cfg.ObjectStoreRegion)
		if err != nil {
			logger.Error("construct object-store gateway", "error", err)
			os.Exit(1)
		}
		if err := gateway.VerifyBucket(ctx); err != nil {
			logger.Error("object-store bucket unreachable", "error", err, "bucket", cfg.ObjectStoreBucket)
			os.Exit(1)
		}
		logger.Info("object-store bucket verified", "bucket", cfg.ObjectStoreBucket)
	} else {
		logger.Warn("no object-store bucket configured — sandboxes will run without hot/cold sync")
	}

	mgr := lifecycle.NewManager(cfg, store, driver, gateway, logger)

	if cfg.ReconcileIntervalSeconds > 0 {
		go mgr.RunReconciliationLoop(ctx)
	}
	if cfg.ExpiryIntervalSeconds > 0 {
		go mgr.RunExpiryLoop(ctx)
	}

	srv := api.NewServer(cfg, mgr, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // exec can run long
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openStore picks the Registry Store backend named by
// cfg.SandboxStoreBackend (§4.1): memory, sqlite, or postgres. Returns a
// close func so callers have one deferred cleanup regardless of backend.
func openStore(cfg *config.Config) (registry.Store, func(), error) {
	switch cfg.SandboxStoreBackend {
	case "", "memory":
		st := memory.New(time.Duration(cfg.RegistryRetention) * time.Second)
		return st, func() {}, nil
	case "sqlite":
		st, err := sqlite.New(cfg.DatabaseURL, 1)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case "postgres":
		st, err := postgres.New(context.Background(), postgres.Config{
			DSN:            cfg.DatabaseURL,
			MigrateOnStart: true,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sandbox_store_backend %q", cfg.SandboxStoreBackend)
	}
}
