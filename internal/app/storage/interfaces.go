package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bookmate/bookmate/internal/app/domain/audit"
	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/domain/snapshot"
	"github.com/bookmate/bookmate/internal/app/domain/tenant"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// TenantStore persists tenant workbook assignments.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	UpsertTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
}

// RunStore persists reconciliation runs.
type RunStore interface {
	CreateRun(ctx context.Context, run reconciliation.Run) (reconciliation.Run, error)
	GetRun(ctx context.Context, tenantID, id string) (reconciliation.Run, error)
	ListRuns(ctx context.Context, tenantID string, limit int) ([]reconciliation.Run, error)
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
}

// SnapshotStore persists balance snapshots.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snap snapshot.Snapshot) (snapshot.Snapshot, error)
	ListSnapshots(ctx context.Context, tenantID string, limit int) ([]snapshot.Snapshot, error)
}

// AuditStore persists audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry audit.Entry) (audit.Entry, error)
	ListAudit(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error)
}

// DefaultLimit and MaxLimit bound list queries.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ClampLimit normalises a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
