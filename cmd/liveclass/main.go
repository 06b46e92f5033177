package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"liveclass/internal/app"
	"liveclass/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run loads configuration, serves until SIGINT/SIGTERM and shuts down
// gracefully.
func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", zap.Error(err))
		return err
	}

	if err := application.Start(context.Background()); err != nil {
		_ = application.Stop(context.Background())
		return err
	}

	signals, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-signals.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-application.Errors():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	return serveErr
}
