package tenants

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmate/bookmate/internal/app/domain/tenant"
	"github.com/bookmate/bookmate/internal/app/storage"
	apperrors "github.com/bookmate/bookmate/internal/errors"
)

func TestResolveErrors(t *testing.T) {
	reg := NewRegistry(storage.NewMemory(), nil, nil)

	_, err := reg.Resolve(context.Background(), " ")
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, http.StatusForbidden, se.HTTPStatus)

	_, err = reg.Resolve(context.Background(), "ghost")
	se = apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, http.StatusNotFound, se.HTTPStatus)
}

func TestResolveReusesClientUntilTenantChanges(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	_, err := store.UpsertTenant(ctx, tenant.Tenant{ID: "acme", WebhookURL: "https://a.example/exec", WebhookSecret: "one"})
	require.NoError(t, err)

	built := 0
	reg := NewRegistry(store, func(t tenant.Tenant) (Webhook, error) {
		built++
		return DefaultFactory(0, nil)(t)
	}, nil)

	first, err := reg.Resolve(ctx, "acme")
	require.NoError(t, err)
	second, err := reg.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Same(t, first.Webhook, second.Webhook)
	assert.Equal(t, 1, built)

	_, err = reg.Upsert(ctx, tenant.Tenant{ID: "acme", WebhookURL: "https://a.example/exec", WebhookSecret: "two"})
	require.NoError(t, err)
	third, err := reg.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, built)
	assert.Equal(t, "two", third.Tenant.WebhookSecret)
}

func TestResolveFactoryFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	_, _ = store.UpsertTenant(ctx, tenant.Tenant{ID: "acme"})

	reg := NewRegistry(store, func(tenant.Tenant) (Webhook, error) {
		return nil, errors.New("apps script URL is required")
	}, nil)
	_, err := reg.Resolve(ctx, "acme")
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, http.StatusServiceUnavailable, se.HTTPStatus)
}

func TestResolveUsesWorkspaceFromContext(t *testing.T) {
	reg := NewRegistry(storage.NewMemory(), nil, nil)
	ws := &Workspace{Tenant: tenant.Tenant{ID: "acme"}}
	ctx := WithWorkspace(context.Background(), ws)

	got, err := reg.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Same(t, ws, got)

	_, err = reg.Resolve(ctx, "beta")
	assert.Error(t, err)
}
