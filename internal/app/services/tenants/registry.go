// Package tenants resolves a tenant ID to its workbook and a webhook client
// bound to that tenant's Apps Script deployment.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bookmate/bookmate/internal/app/domain/tenant"
	"github.com/bookmate/bookmate/internal/app/metrics"
	"github.com/bookmate/bookmate/internal/app/storage"
	"github.com/bookmate/bookmate/internal/appsscript"
	apperrors "github.com/bookmate/bookmate/internal/errors"
	"github.com/bookmate/bookmate/internal/logging"
)

// Webhook is the subset of the Apps Script client used by the services.
type Webhook interface {
	GetPnL(ctx context.Context) (*appsscript.PnLReport, error)
	GetInbox(ctx context.Context) ([]appsscript.InboxEntry, error)
	DeleteEntry(ctx context.Context, rowNumber int) error
	BalancesAppend(ctx context.Context, snap appsscript.BalanceSnapshot) error
	BalancesGetLatest(ctx context.Context) ([]appsscript.LatestBalance, error)
	BalanceGetSummary(ctx context.Context) ([]appsscript.AccountSummary, error)
	AccountsSync(ctx context.Context, accounts []appsscript.AccountOpening) (int, error)
	GetPropertyPersonDetails(ctx context.Context, period appsscript.Period) ([]appsscript.CategoryShare, error)
	GetOverheadExpensesDetails(ctx context.Context, period appsscript.Period) ([]appsscript.CategoryShare, error)
	ListNamedRanges(ctx context.Context) ([]appsscript.NamedRange, error)
}

var _ Webhook = (*appsscript.Client)(nil)

// Factory builds a webhook client for a tenant.
type Factory func(t tenant.Tenant) (Webhook, error)

// Workspace is a resolved tenant.
type Workspace struct {
	Tenant  tenant.Tenant
	Webhook Webhook
}

type cached struct {
	url     string
	secret  string
	webhook Webhook
}

// Registry looks tenants up and keeps one webhook client per tenant, so each
// deployment has its own circuit breaker.
type Registry struct {
	store   storage.TenantStore
	factory Factory
	log     *logging.Logger

	mu      sync.Mutex
	clients map[string]cached
}

// NewRegistry creates a registry. A nil factory uses DefaultFactory.
func NewRegistry(store storage.TenantStore, factory Factory, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	if factory == nil {
		factory = DefaultFactory(30*time.Second, log)
	}
	return &Registry{
		store:   store,
		factory: factory,
		log:     log,
		clients: make(map[string]cached),
	}
}

// DefaultFactory builds instrumented appsscript clients.
func DefaultFactory(timeout time.Duration, log *logging.Logger) Factory {
	if log == nil {
		log = logging.NewNop()
	}
	return func(t tenant.Tenant) (Webhook, error) {
		breaker := appsscript.DefaultCircuitBreakerConfig()
		breaker.OnStateChange = func(from, to appsscript.CircuitState) {
			log.WithField("tenant_id", t.ID).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("webhook circuit state changed")
		}
		client, err := appsscript.New(appsscript.Config{
			URL:            t.WebhookURL,
			Secret:         t.WebhookSecret,
			Timeout:        timeout,
			Retry:          appsscript.DefaultRetryConfig(),
			CircuitBreaker: breaker,
			Logger:         log,
			OnCall: func(action appsscript.Action, outcome string, d time.Duration) {
				metrics.RecordWebhookCall(string(action), outcome, d)
			},
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

type workspaceKey struct{}

// WithWorkspace stores a resolved workspace so later Resolve calls for the
// same tenant within the request skip the store.
func WithWorkspace(ctx context.Context, ws *Workspace) context.Context {
	return context.WithValue(ctx, workspaceKey{}, ws)
}

// Resolve returns the workspace of a tenant.
func (r *Registry) Resolve(ctx context.Context, id string) (*Workspace, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.Forbidden("tenant required")
	}
	if ws, ok := ctx.Value(workspaceKey{}).(*Workspace); ok && ws != nil && ws.Tenant.ID == id {
		return ws, nil
	}
	t, err := r.store.GetTenant(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("tenant", id)
		}
		return nil, apperrors.Internal("load tenant", err)
	}
	hook, err := r.webhook(t)
	if err != nil {
		return nil, apperrors.Unavailable("webhook not configured", err)
	}
	return &Workspace{Tenant: t, Webhook: hook}, nil
}

// List returns every tenant.
func (r *Registry) List(ctx context.Context) ([]tenant.Tenant, error) {
	return r.store.ListTenants(ctx)
}

// Upsert stores a tenant and drops its cached client.
func (r *Registry) Upsert(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	saved, err := r.store.UpsertTenant(ctx, t)
	if err != nil {
		return tenant.Tenant{}, err
	}
	r.mu.Lock()
	delete(r.clients, saved.ID)
	r.mu.Unlock()
	return saved, nil
}

func (r *Registry) webhook(t tenant.Tenant) (Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[t.ID]; ok && c.url == t.WebhookURL && c.secret == t.WebhookSecret {
		return c.webhook, nil
	}
	hook, err := r.factory(t)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", t.ID, err)
	}
	r.clients[t.ID] = cached{url: t.WebhookURL, secret: t.WebhookSecret, webhook: hook}
	r.log.WithField("tenant_id", t.ID).Debug("webhook client created")
	return hook, nil
}
