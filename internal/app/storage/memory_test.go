package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmate/bookmate/internal/app/domain/audit"
	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/domain/snapshot"
	"github.com/bookmate/bookmate/internal/app/domain/tenant"
)

func TestMemoryTenants(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.GetTenant(ctx, "acme")
	assert.True(t, errors.Is(err, ErrNotFound))

	first, err := m.UpsertTenant(ctx, tenant.Tenant{ID: "acme", SpreadsheetID: "one"})
	require.NoError(t, err)
	second, err := m.UpsertTenant(ctx, tenant.Tenant{ID: "acme", SpreadsheetID: "two"})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := m.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "two", got.SpreadsheetID)

	_, err = m.UpsertTenant(ctx, tenant.Tenant{ID: "beta"})
	require.NoError(t, err)
	all, err := m.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "acme", all[0].ID)
}

func TestMemoryRunsScopedByTenant(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := m.CreateRun(ctx, reconciliation.Run{TenantID: "acme", StartedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	other, err := m.CreateRun(ctx, reconciliation.Run{TenantID: "beta", StartedAt: base})
	require.NoError(t, err)

	_, err = m.GetRun(ctx, "acme", other.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	runs, err := m.ListRuns(ctx, "acme", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, base.Add(2*time.Hour), runs[0].StartedAt)

	removed, err := m.PruneRuns(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	runs, err = m.ListRuns(ctx, "acme", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestMemorySnapshotsNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, _ = m.CreateSnapshot(ctx, snapshot.Snapshot{TenantID: "acme", BankName: "A", TakenAt: base})
	_, _ = m.CreateSnapshot(ctx, snapshot.Snapshot{TenantID: "acme", BankName: "B", TakenAt: base.Add(time.Hour)})
	_, _ = m.CreateSnapshot(ctx, snapshot.Snapshot{TenantID: "beta", BankName: "C", TakenAt: base})

	snaps, err := m.ListSnapshots(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "B", snaps[0].BankName)
	assert.NotEmpty(t, snaps[0].ID)
}

func TestMemoryAuditCopiesDetail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	detail := map[string]interface{}{"row": 4}
	entry, err := m.AppendAudit(ctx, audit.Entry{TenantID: "acme", Action: "inbox.delete", Detail: detail})
	require.NoError(t, err)
	assert.EqualValues(t, 1, entry.ID)
	detail["row"] = 99

	_, _ = m.AppendAudit(ctx, audit.Entry{TenantID: "acme", Action: "balance.save"})
	entries, err := m.ListAudit(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "balance.save", entries[0].Action)
	assert.Equal(t, 4, entries[1].Detail["row"])
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}
