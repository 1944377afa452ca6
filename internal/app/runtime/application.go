// Package runtime wires configuration, persistence and transports into a
// runnable BookMate process.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "github.com/lib/pq"

	app "github.com/bookmate/bookmate/internal/app"
	"github.com/bookmate/bookmate/internal/app/domain/tenant"
	"github.com/bookmate/bookmate/internal/app/httpapi"
	"github.com/bookmate/bookmate/internal/app/storage/postgres"
	"github.com/bookmate/bookmate/internal/cache"
	"github.com/bookmate/bookmate/internal/config"
	"github.com/bookmate/bookmate/internal/ledger"
	"github.com/bookmate/bookmate/internal/logging"
	"github.com/bookmate/bookmate/internal/middleware"
	"github.com/bookmate/bookmate/internal/platform/migrations"
	"github.com/bookmate/bookmate/internal/sheets"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logging.Logger
	core       *app.Application
	httpServer *http.Server
	limiter    *middleware.RateLimiter
	cache      cache.Store
	db         *sql.DB
}

// NewApplication connects to Postgres, applies migrations, seeds the default
// tenant and builds the HTTP server.
func NewApplication(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("bookmate", cfg.Logging.Level, cfg.Logging.Format)
	}

	layout, err := ledger.LoadLayoutOrDefault(cfg.LayoutFile)
	if err != nil {
		return nil, fmt.Errorf("load layout: %w", err)
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(db)
	if t, ok := defaultTenant(cfg); ok {
		if _, err := store.UpsertTenant(ctx, t); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed default tenant: %w", err)
		}
		log.WithField("tenant_id", t.ID).Info("default tenant configured")
	}

	cacheStore, err := buildCache(ctx, cfg.Cache)
	if err != nil {
		db.Close()
		return nil, err
	}

	opts := app.Options{
		Cache:          cacheStore,
		WebhookTimeout: cfg.AppsScript.Timeout,
		Layout:         layout,
		TTL:            cfg.Cache.TTL,
		InboxTTL:       cfg.Cache.InboxTTL,
		Tolerance:      cfg.Reconcile.ToleranceDecimal(),
		Retention:      cfg.Reconcile.Retention,
	}
	if cfg.Reconcile.Enabled() {
		opts.ReconcileSchedule = cfg.Reconcile.Cron
	}
	if cfg.Google.HasCredentials() {
		client, err := sheets.New(ctx, sheets.Config{
			CredentialsJSON: cfg.Google.CredentialsJSON,
			CredentialsFile: cfg.Google.CredentialsFile,
		})
		if err != nil {
			cacheStore.Close()
			db.Close()
			return nil, fmt.Errorf("google sheets: %w", err)
		}
		opts.Sheets = client
	}

	core, err := app.New(app.Stores{
		Tenants:   store,
		Runs:      store,
		Snapshots: store,
		Audit:     store,
	}, opts, log)
	if err != nil {
		cacheStore.Close()
		db.Close()
		return nil, err
	}

	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, log)
	handler := httpapi.NewHandler(core, httpapi.Config{
		ServiceSecret: cfg.Auth.ServiceSecret,
		CORSOrigins:   cfg.HTTP.AllowedOrigins(),
		Limiter:       limiter,
		Ready:         db.PingContext,
	}, log)

	return &Application{
		cfg:     cfg,
		log:     log,
		core:    core,
		limiter: limiter,
		cache:   cacheStore,
		db:      db,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       2 * time.Minute,
		},
	}, nil
}

// Core exposes the domain services for one-shot commands.
func (a *Application) Core() *app.Application { return a.core }

// Run starts the background services and the HTTP server, and blocks until
// the context is cancelled or the listener fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.core.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	a.limiter.StartCleanup(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the scheduler, drains in-flight requests, then closes the
// cache and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if err := a.core.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop services: %w", err))
	}
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.cache.Close(); err != nil {
		a.log.WithError(err).Warn("error closing cache")
	}
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("error closing database connection")
	}
	return errors.Join(errs...)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func buildCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return cache.NewMemory(), nil
	case "redis":
		store, err := cache.NewRedis(ctx, cfg.RedisURL, "bookmate")
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// defaultTenant builds the single-business tenant from the environment.
func defaultTenant(cfg *config.Config) (tenant.Tenant, bool) {
	if !cfg.HasDefaultTenant() {
		return tenant.Tenant{}, false
	}
	id := strings.TrimSpace(cfg.DefaultTenant)
	return tenant.Tenant{
		ID:            id,
		Name:          id,
		SpreadsheetID: strings.TrimSpace(cfg.Google.SheetID),
		WebhookURL:    strings.TrimSpace(cfg.AppsScript.URL),
		WebhookSecret: cfg.AppsScript.Secret,
	}, true
}
