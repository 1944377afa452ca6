package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bookmate/bookmate/internal/app/metrics"
	"github.com/bookmate/bookmate/internal/app/services/books"
	"github.com/bookmate/bookmate/internal/app/services/reconcile"
	"github.com/bookmate/bookmate/internal/app/services/tenants"
	"github.com/bookmate/bookmate/internal/app/storage"
	"github.com/bookmate/bookmate/internal/app/system"
	"github.com/bookmate/bookmate/internal/cache"
	"github.com/bookmate/bookmate/internal/ledger"
	"github.com/bookmate/bookmate/internal/logging"
	"github.com/bookmate/bookmate/internal/sheets"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Tenants   storage.TenantStore
	Runs      storage.RunStore
	Snapshots storage.SnapshotStore
	Audit     storage.AuditStore
}

// Options carries the non-storage dependencies and tuning.
type Options struct {
	// Sheets is nil when no Google credentials are configured.
	Sheets sheets.ReadWriter
	// Cache defaults to an in-process memory store.
	Cache cache.Store
	// WebhookFactory defaults to instrumented appsscript clients.
	WebhookFactory tenants.Factory
	WebhookTimeout time.Duration

	Layout    ledger.Layout
	TTL       time.Duration
	InboxTTL  time.Duration
	Tolerance decimal.Decimal
	Retention time.Duration
	// ReconcileSchedule is a cron spec; empty disables scheduled runs.
	ReconcileSchedule string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Tenants   *tenants.Registry
	Books     *books.Service
	Reconcile *reconcile.Service
	Cache     *cache.Loader
	Scheduler *reconcile.Scheduler
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("bookmate", "info", "json")
	}

	mem := storage.NewMemory()
	if stores.Tenants == nil {
		stores.Tenants = mem
	}
	if stores.Runs == nil {
		stores.Runs = mem
	}
	if stores.Snapshots == nil {
		stores.Snapshots = mem
	}
	if stores.Audit == nil {
		stores.Audit = mem
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.Layout.DataSheet == "" {
		opts.Layout = ledger.DefaultLayout()
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("workbook layout: %w", err)
	}
	if opts.WebhookFactory == nil {
		opts.WebhookFactory = tenants.DefaultFactory(opts.WebhookTimeout, log)
	}
	if opts.Sheets == nil {
		log.Warn("Google credentials not set; Sheets-backed endpoints and reconciliation data are disabled")
	}

	manager := system.NewManager()
	registry := tenants.NewRegistry(stores.Tenants, opts.WebhookFactory, log)
	loader := cache.NewLoader(opts.Cache, log, metrics.RecordCacheLookup)

	booksService := books.New(registry, opts.Sheets, loader, stores.Snapshots, stores.Audit, books.Config{
		Layout:    opts.Layout,
		TTL:       opts.TTL,
		InboxTTL:  opts.InboxTTL,
		Tolerance: opts.Tolerance,
	}, log)

	var reader sheets.Reader
	if opts.Sheets != nil {
		reader = opts.Sheets
	}
	reconcileService := reconcile.New(registry, booksService, reader, stores.Runs, stores.Audit, opts.Tolerance, opts.Retention, log)

	application := &Application{
		manager:   manager,
		log:       log,
		Tenants:   registry,
		Books:     booksService,
		Reconcile: reconcileService,
		Cache:     loader,
	}

	if opts.ReconcileSchedule != "" {
		scheduler, err := reconcile.NewScheduler(reconcileService, opts.ReconcileSchedule, log)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(scheduler); err != nil {
			return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
		}
		application.Scheduler = scheduler
	} else {
		log.Warn("reconcile schedule disabled; runs only on demand")
	}

	return application, nil
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
