package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/app"
	"github.com/kavik/groupwarden-go/internal/config"
	"github.com/kavik/groupwarden-go/internal/util"
)

const (
	buildTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Exiting with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Groupwarden bot starting...",
		zap.String("log_level", cfg.Logging.Level),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buildCtx, buildCancel := context.WithTimeout(runCtx, buildTimeout)
	container, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		return fmt.Errorf("assemble application services: %w", err)
	}

	bot, err := container.NewBot()
	if err != nil {
		container.Close()
		return err
	}

	if err := bot.Start(runCtx); err != nil {
		container.Close()
		return fmt.Errorf("start bot: %w", err)
	}

	// Serve until a shutdown signal arrives or the update feed gives
	// up reconnecting; either way drain gracefully.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-bot.Failed():
		runErr = fmt.Errorf("update feed exhausted reconnect attempts")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := bot.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return runErr
}
