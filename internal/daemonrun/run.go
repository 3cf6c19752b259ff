// Package daemonrun wires configuration, logging, storage, and the daemon
// server into a runnable process. The fbuildd binary is a thin shell around
// Run.
package daemonrun

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"fbuild/internal/config"
	"fbuild/internal/daemon"
	"fbuild/internal/dispatch"
	"fbuild/internal/firmware"
	"fbuild/internal/history"
	"fbuild/internal/lockmap"
	"fbuild/internal/logging"
	"fbuild/internal/opstatus"
)

// Options configures daemon process runtime behavior.
type Options struct {
	ConfigPath string
}

// Run starts the daemon runtime loop and blocks until shutdown.
func Run(cmdCtx context.Context, opts Options) error {
	cfg, resolvedPath, _, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("daemon starting", logging.String("config", resolvedPath))

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hist, err := history.Open(cfg)
	if err != nil {
		logger.Warn("history store unavailable, operations will not be recorded",
			logging.Error(err))
		hist = nil
	}
	if hist != nil {
		defer hist.Close()
	}

	statuses := opstatus.NewStore(cfg.Paths.DaemonDir)
	locks := lockmap.NewRegistry()
	toolchain := firmware.NewExecToolchain(cfg, logger)
	dispatcher := dispatch.New(cfg, statuses, locks, toolchain, hist, logger)

	server, err := daemon.New(cfg, dispatcher, statuses, locks, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	return server.Run(signalCtx)
}
