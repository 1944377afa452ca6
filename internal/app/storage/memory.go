package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookmate/bookmate/internal/app/domain/audit"
	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/domain/snapshot"
	"github.com/bookmate/bookmate/internal/app/domain/tenant"
)

// Memory is a thread-safe in-memory persistence layer implementing the storage
// interfaces defined in this package. It backs tests and local runs without a
// database.
type Memory struct {
	mu        sync.RWMutex
	nextAudit int64
	tenants   map[string]tenant.Tenant
	runs      map[string]reconciliation.Run
	snapshots []snapshot.Snapshot
	audit     []audit.Entry
}

var (
	_ TenantStore   = (*Memory)(nil)
	_ RunStore      = (*Memory)(nil)
	_ SnapshotStore = (*Memory)(nil)
	_ AuditStore    = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextAudit: 1,
		tenants:   make(map[string]tenant.Tenant),
		runs:      make(map[string]reconciliation.Run),
	}
}

// TenantStore implementation --------------------------------------------------

func (m *Memory) GetTenant(_ context.Context, id string) (tenant.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return tenant.Tenant{}, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *Memory) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]tenant.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpsertTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	if t.ID == "" {
		return tenant.Tenant{}, fmt.Errorf("tenant id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.tenants[t.ID]; ok {
		t.CreatedAt = existing.CreatedAt
	} else {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	m.tenants[t.ID] = t
	return t, nil
}

// RunStore implementation -----------------------------------------------------

func (m *Memory) CreateRun(_ context.Context, run reconciliation.Run) (reconciliation.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	} else if _, exists := m.runs[run.ID]; exists {
		return reconciliation.Run{}, fmt.Errorf("run %s already exists", run.ID)
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *Memory) GetRun(_ context.Context, tenantID, id string) (reconciliation.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok || run.TenantID != tenantID {
		return reconciliation.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, nil
}

func (m *Memory) ListRuns(_ context.Context, tenantID string, limit int) ([]reconciliation.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []reconciliation.Run
	for _, run := range m.runs {
		if run.TenantID == tenantID {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if limit = ClampLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) PruneRuns(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, run := range m.runs {
		if run.StartedAt.Before(before) {
			delete(m.runs, id)
			removed++
		}
	}
	return removed, nil
}

// SnapshotStore implementation ------------------------------------------------

func (m *Memory) CreateSnapshot(_ context.Context, snap snapshot.Snapshot) (snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	snap.CreatedAt = time.Now().UTC()
	m.snapshots = append(m.snapshots, snap)
	return snap, nil
}

func (m *Memory) ListSnapshots(_ context.Context, tenantID string, limit int) ([]snapshot.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []snapshot.Snapshot
	for _, snap := range m.snapshots {
		if snap.TenantID == tenantID {
			result = append(result, snap)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].TakenAt.After(result[j].TakenAt) })
	if limit = ClampLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AuditStore implementation ---------------------------------------------------

func (m *Memory) AppendAudit(_ context.Context, entry audit.Entry) (audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = m.nextAudit
	m.nextAudit++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Detail = copyMap(entry.Detail)
	m.audit = append(m.audit, entry)
	return entry, nil
}

func (m *Memory) ListAudit(_ context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = ClampLimit(limit)
	var result []audit.Entry
	for i := len(m.audit) - 1; i >= 0 && len(result) < limit; i-- {
		if m.audit[i].TenantID == tenantID {
			e := m.audit[i]
			e.Detail = copyMap(e.Detail)
			result = append(result, e)
		}
	}
	return result, nil
}

func copyMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
