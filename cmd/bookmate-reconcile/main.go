// Package main runs one reconciliation pass over every tenant and exits.
// It suits an external cron when the in-process scheduler is disabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/runtime"
	"github.com/bookmate/bookmate/internal/config"
	"github.com/bookmate/bookmate/internal/logging"
)

func main() {
	tenantID := flag.String("tenant", "", "reconcile a single tenant instead of all")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall deadline")
	triggerFlag := flag.String("trigger", reconciliation.TriggerScheduled, "trigger recorded on the runs (scheduled or manual)")
	flag.Parse()

	trigger, err := parseTrigger(*triggerFlag)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// The one-shot run never starts the scheduler.
	cfg.Reconcile.Cron = "off"
	logger := logging.New("bookmate-reconcile", cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logging.WithActor(logging.WithTraceID(ctx, logging.NewTraceID()), "bookmate-reconcile")

	application, err := runtime.NewApplication(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialise")
	}
	code := reconcile(ctx, application, *tenantID, trigger, logger)
	if err := application.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	os.Exit(code)
}

// parseTrigger defaults to scheduled: this command is normally started by cron.
func parseTrigger(raw string) (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(raw)); t {
	case "", reconciliation.TriggerScheduled:
		return reconciliation.TriggerScheduled, nil
	case reconciliation.TriggerManual:
		return t, nil
	}
	return "", fmt.Errorf("unknown trigger %q (want scheduled or manual)", raw)
}

func reconcile(ctx context.Context, application *runtime.Application, tenantID, trigger string, logger *logging.Logger) int {
	svc := application.Core().Reconcile
	if tenantID == "" {
		if err := svc.RunAll(ctx, trigger); err != nil {
			logger.WithError(err).Error("reconciliation failed")
			return 1
		}
		logger.Info("reconciliation finished")
		return 0
	}

	run, err := svc.Run(ctx, tenantID, trigger)
	if err != nil {
		logger.WithError(err).Error("reconciliation failed")
		return 1
	}
	logger.WithField("run_id", run.ID).WithField("status", run.Status).Info("reconciliation finished")
	if run.Status == reconciliation.StatusError {
		return 2
	}
	return 0
}
