// Package main runs the BookMate API server and its reconciliation scheduler.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookmate/bookmate/internal/app/runtime"
	"github.com/bookmate/bookmate/internal/config"
	"github.com/bookmate/bookmate/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New("bookmate", cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialise")
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		logger.WithError(runErr).Error("server stopped")
	}

	logger.Info("shutting down")
	if err := application.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("shutdown error")
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
