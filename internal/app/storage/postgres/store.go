package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bookmate/bookmate/internal/app/domain/audit"
	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/domain/snapshot"
	"github.com/bookmate/bookmate/internal/app/domain/tenant"
	"github.com/bookmate/bookmate/internal/app/storage"
	"github.com/bookmate/bookmate/internal/money"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.TenantStore = (*Store)(nil)
var _ storage.RunStore = (*Store)(nil)
var _ storage.SnapshotStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	return err
}

// --- TenantStore ------------------------------------------------------------

func (s *Store) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.db.GetContext(ctx, &t, `
		SELECT id, name, spreadsheet_id, webhook_url, webhook_secret, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id)
	if err != nil {
		return tenant.Tenant{}, notFound(err, "tenant", id)
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	var result []tenant.Tenant
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, name, spreadsheet_id, webhook_url, webhook_secret, created_at, updated_at
		FROM tenants
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpsertTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	if t.ID == "" {
		return tenant.Tenant{}, fmt.Errorf("tenant id is required")
	}
	now := time.Now().UTC()
	t.UpdatedAt = now

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO tenants (id, name, spreadsheet_id, webhook_url, webhook_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    spreadsheet_id = EXCLUDED.spreadsheet_id,
		    webhook_url = EXCLUDED.webhook_url,
		    webhook_secret = EXCLUDED.webhook_secret,
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`, t.ID, t.Name, t.SpreadsheetID, t.WebhookURL, t.WebhookSecret, now).Scan(&t.CreatedAt)
	if err != nil {
		return tenant.Tenant{}, err
	}
	return t, nil
}

// --- RunStore ---------------------------------------------------------------

type runRow struct {
	ID           string       `db:"id"`
	TenantID     string       `db:"tenant_id"`
	Trigger      string       `db:"trigger"`
	StartedAt    time.Time    `db:"started_at"`
	FinishedAt   time.Time    `db:"finished_at"`
	Status       string       `db:"status"`
	BalanceDrift money.Amount `db:"balance_drift"`
	PnLDrift     money.Amount `db:"pnl_drift"`
	Report       []byte       `db:"report"`
}

func (r runRow) toDomain() (reconciliation.Run, error) {
	run := reconciliation.Run{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Trigger:      r.Trigger,
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   r.FinishedAt.UTC(),
		Status:       r.Status,
		BalanceDrift: r.BalanceDrift,
		PnLDrift:     r.PnLDrift,
	}
	if len(r.Report) > 0 {
		if err := json.Unmarshal(r.Report, &run.Report); err != nil {
			return reconciliation.Run{}, fmt.Errorf("decode report of run %s: %w", r.ID, err)
		}
	}
	return run, nil
}

const runColumns = `id, tenant_id, trigger, started_at, finished_at, status, balance_drift, pnl_drift, report`

func (s *Store) CreateRun(ctx context.Context, run reconciliation.Run) (reconciliation.Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	report, err := json.Marshal(run.Report)
	if err != nil {
		return reconciliation.Run{}, err
	}

	// JSONB goes over the wire as text; lib/pq would encode []byte as bytea.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, run.ID, run.TenantID, run.Trigger, run.StartedAt, run.FinishedAt, run.Status,
		run.BalanceDrift.Decimal, run.PnLDrift.Decimal, string(report))
	if err != nil {
		return reconciliation.Run{}, err
	}
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, tenantID, id string) (reconciliation.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return reconciliation.Run{}, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
	}
	var row runRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+runColumns+`
		FROM reconciliation_runs
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		return reconciliation.Run{}, notFound(err, "run", id)
	}
	return row.toDomain()
}

func (s *Store) ListRuns(ctx context.Context, tenantID string, limit int) ([]reconciliation.Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+runColumns+`
		FROM reconciliation_runs
		WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, tenantID, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	result := make([]reconciliation.Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	return result, nil
}

func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reconciliation_runs WHERE started_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- SnapshotStore ----------------------------------------------------------

func (s *Store) CreateSnapshot(ctx context.Context, snap snapshot.Snapshot) (snapshot.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	snap.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots (id, tenant_id, bank_name, balance, note, taken_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, snap.ID, snap.TenantID, snap.BankName, snap.Balance.Decimal, snap.Note, snap.TakenAt, snap.CreatedAt)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, tenantID string, limit int) ([]snapshot.Snapshot, error) {
	var result []snapshot.Snapshot
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, tenant_id, bank_name, balance, note, taken_at, created_at
		FROM balance_snapshots
		WHERE tenant_id = $1
		ORDER BY taken_at DESC
		LIMIT $2
	`, tenantID, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- AuditStore -------------------------------------------------------------

type auditRow struct {
	ID        int64     `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Actor     string    `db:"actor"`
	Action    string    `db:"action"`
	Target    string    `db:"target"`
	Status    string    `db:"status"`
	Detail    []byte    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) AppendAudit(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	detail := []byte("{}")
	if len(entry.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(entry.Detail); err != nil {
			return audit.Entry{}, err
		}
	}

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO audit_log (tenant_id, actor, action, target, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, entry.TenantID, entry.Actor, entry.Action, entry.Target, entry.Status, string(detail), entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return audit.Entry{}, err
	}
	return entry, nil
}

func (s *Store) ListAudit(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, actor, action, target, status, detail, created_at
		FROM audit_log
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, tenantID, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	result := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		entry := audit.Entry{
			ID:        row.ID,
			TenantID:  row.TenantID,
			Actor:     row.Actor,
			Action:    row.Action,
			Target:    row.Target,
			Status:    row.Status,
			CreatedAt: row.CreatedAt.UTC(),
		}
		if len(row.Detail) > 0 && string(row.Detail) != "{}" {
			if err := json.Unmarshal(row.Detail, &entry.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail %d: %w", row.ID, err)
			}
		}
		result = append(result, entry)
	}
	return result, nil
}
