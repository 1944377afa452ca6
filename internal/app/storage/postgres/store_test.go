package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmate/bookmate/internal/app/domain/audit"
	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/domain/snapshot"
	"github.com/bookmate/bookmate/internal/app/domain/tenant"
	"github.com/bookmate/bookmate/internal/app/storage"
	"github.com/bookmate/bookmate/internal/money"
	"github.com/bookmate/bookmate/internal/platform/migrations"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestGetTenantNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tenants")).
		WithArgs("acme").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetTenant(context.Background(), "acme")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenantScansRow(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "name", "spreadsheet_id", "webhook_url", "webhook_secret", "created_at", "updated_at"}).
		AddRow("acme", "Acme", "sheet-1", "https://script.example/exec", "s3cret", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tenants")).WithArgs("acme").WillReturnRows(rows)

	got, err := store.GetTenant(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "sheet-1", got.SpreadsheetID)
	assert.Equal(t, "s3cret", got.WebhookSecret)
}

func TestUpsertTenant(t *testing.T) {
	store, mock := newMock(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tenants")).
		WithArgs("acme", "Acme", "sheet-1", "https://script.example/exec", "s3cret", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	got, err := store.UpsertTenant(context.Background(), tenant.Tenant{
		ID: "acme", Name: "Acme", SpreadsheetID: "sheet-1",
		WebhookURL: "https://script.example/exec", WebhookSecret: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = store.UpsertTenant(context.Background(), tenant.Tenant{})
	assert.Error(t, err)
}

func TestCreateRunSendsReportAsText(t *testing.T) {
	store, mock := newMock(t)
	started := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reconciliation_runs")).
		WithArgs(sqlmock.AnyArg(), "acme", reconciliation.TriggerManual, started, started, reconciliation.StatusOK,
			sqlmock.AnyArg(), sqlmock.AnyArg(), `{"year":2025,"month":3}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := store.CreateRun(context.Background(), reconciliation.Run{
		TenantID: "acme", Trigger: reconciliation.TriggerManual,
		StartedAt: started, FinishedAt: started, Status: reconciliation.StatusOK,
		Report: reconciliation.Report{Year: 2025, Month: 3},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunDecodesReport(t *testing.T) {
	store, mock := newMock(t)
	id := "6f1c1f7e-4a7b-4b59-9c59-0d3f2f3b9a10"
	started := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "trigger", "started_at", "finished_at", "status", "balance_drift", "pnl_drift", "report"}).
		AddRow(id, "acme", "scheduled", started, started, "drift", "12.50", "0", []byte(`{"year":2025,"month":3,"errors":{"pnl":"boom"}}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM reconciliation_runs")).WithArgs("acme", id).WillReturnRows(rows)

	run, err := store.GetRun(context.Background(), "acme", id)
	require.NoError(t, err)
	assert.Equal(t, "drift", run.Status)
	assert.True(t, run.BalanceDrift.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "boom", run.Report.Errors[reconciliation.SectionPnL])
}

func TestGetRunRejectsMalformedID(t *testing.T) {
	store, mock := newMock(t)
	_, err := store.GetRun(context.Background(), "acme", "not-a-uuid")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsClampsLimit(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM reconciliation_runs")).
		WithArgs("acme", storage.MaxLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "trigger", "started_at", "finished_at", "status", "balance_drift", "pnl_drift", "report"}))

	runs, err := store.ListRuns(context.Background(), "acme", 10_000)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneRuns(t *testing.T) {
	store, mock := newMock(t)
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reconciliation_runs")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.PruneRuns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
}

func TestAppendAuditReturnsID(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_log")).
		WithArgs("acme", "ops@acme", "inbox.delete", "12", audit.StatusOK, `{"row":12}`, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	entry, err := store.AppendAudit(context.Background(), audit.Entry{
		TenantID: "acme", Actor: "ops@acme", Action: "inbox.delete", Target: "12",
		Status: audit.StatusOK, Detail: map[string]interface{}{"row": 12},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 42, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, migrations.Apply(ctx, db))
	store := New(db)

	tn, err := store.UpsertTenant(ctx, tenant.Tenant{
		ID: "it-" + time.Now().Format("150405.000"), SpreadsheetID: "sheet", WebhookURL: "https://script.example/exec", WebhookSecret: "secret",
	})
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Second)
	run, err := store.CreateRun(ctx, reconciliation.Run{
		TenantID: tn.ID, Trigger: reconciliation.TriggerManual, StartedAt: started, FinishedAt: started,
		Status: reconciliation.StatusDrift, BalanceDrift: money.NewAmount(decimal.RequireFromString("3.10")),
		Report: reconciliation.Report{Year: 2025, Month: 3},
	})
	require.NoError(t, err)

	got, err := store.GetRun(ctx, tn.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "3.10", got.BalanceDrift.StringFixed(2))
	assert.Equal(t, 2025, got.Report.Year)

	_, err = store.CreateSnapshot(ctx, snapshot.Snapshot{
		TenantID: tn.ID, BankName: "Bank A", Balance: money.NewAmount(decimal.RequireFromString("100.25")), TakenAt: started,
	})
	require.NoError(t, err)
	snaps, err := store.ListSnapshots(ctx, tn.ID, 5)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "100.25", snaps[0].Balance.StringFixed(2))

	_, err = store.AppendAudit(ctx, audit.Entry{TenantID: tn.ID, Action: "reconcile.run", Status: audit.StatusOK})
	require.NoError(t, err)
	entries, err := store.ListAudit(ctx, tn.ID, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
