// Package books serves the tenant-facing bookkeeping reads and writes: the
// webhook-backed P&L, inbox and balance views, figures computed locally from
// the Data tab, categories and workbook maintenance.
//
// Reads go through the per-tenant cache. Every write invalidates the tenant's
// namespace wholesale and leaves an audit entry, successful or not.
package books

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bookmate/bookmate/internal/app/domain/audit"
	"github.com/bookmate/bookmate/internal/app/domain/snapshot"
	"github.com/bookmate/bookmate/internal/app/services/tenants"
	"github.com/bookmate/bookmate/internal/app/storage"
	"github.com/bookmate/bookmate/internal/appsscript"
	"github.com/bookmate/bookmate/internal/cache"
	apperrors "github.com/bookmate/bookmate/internal/errors"
	"github.com/bookmate/bookmate/internal/ledger"
	"github.com/bookmate/bookmate/internal/logging"
	"github.com/bookmate/bookmate/internal/money"
	"github.com/bookmate/bookmate/internal/sheets"
)

// Audit actions.
const (
	ActionDeleteEntry    = "inbox.delete"
	ActionBalanceAppend  = "balances.append"
	ActionAccountsSync   = "accounts.sync"
	ActionWorkbookRepair = "workbook.repair"
)

// ErrSheetsDisabled is returned by operations that need the Sheets API when no
// service-account credentials are configured.
var ErrSheetsDisabled = errors.New("google sheets api not configured")

// Config tunes the service.
type Config struct {
	Layout    ledger.Layout
	TTL       time.Duration
	InboxTTL  time.Duration
	Tolerance decimal.Decimal
}

// Service implements the bookkeeping operations.
type Service struct {
	tenants   *tenants.Registry
	sheets    sheets.ReadWriter
	cache     *cache.Loader
	snapshots storage.SnapshotStore
	audit     storage.AuditStore
	layout    ledger.Layout
	ttl       time.Duration
	inboxTTL  time.Duration
	tolerance decimal.Decimal
	log       *logging.Logger
	now       func() time.Time
}

// New creates the service. rw may be nil when Sheets access is not configured.
func New(reg *tenants.Registry, rw sheets.ReadWriter, loader *cache.Loader, snapshots storage.SnapshotStore, auditStore storage.AuditStore, cfg Config, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	if cfg.InboxTTL <= 0 {
		cfg.InboxTTL = 5 * time.Second
	}
	return &Service{
		tenants:   reg,
		sheets:    rw,
		cache:     loader,
		snapshots: snapshots,
		audit:     auditStore,
		layout:    cfg.Layout,
		ttl:       cfg.TTL,
		inboxTTL:  cfg.InboxTTL,
		tolerance: cfg.Tolerance,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Layout returns the workbook layout in use.
func (s *Service) Layout() ledger.Layout { return s.layout }

func load[T any](ctx context.Context, s *Service, namespace, key string, ttl time.Duration, refresh bool, fn func(context.Context) (T, error)) (T, error) {
	if refresh {
		return cache.Reload(ctx, s.cache, namespace, key, ttl, fn)
	}
	return cache.Load(ctx, s.cache, namespace, key, ttl, fn)
}

// --- webhook reads ----------------------------------------------------------

// PnL returns the workbook's own month and year figures.
func (s *Service) PnL(ctx context.Context, tenantID string, refresh bool) (*appsscript.PnLReport, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return load(ctx, s, ws.Tenant.ID, "pnl", s.ttl, refresh, ws.Webhook.GetPnL)
}

// PropertyPersonDetails returns the property/person expense breakdown.
func (s *Service) PropertyPersonDetails(ctx context.Context, tenantID string, period appsscript.Period, refresh bool) ([]appsscript.CategoryShare, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return load(ctx, s, ws.Tenant.ID, "pnl:property-person:"+string(period), s.ttl, refresh,
		func(ctx context.Context) ([]appsscript.CategoryShare, error) {
			return ws.Webhook.GetPropertyPersonDetails(ctx, period)
		})
}

// OverheadDetails returns the overhead expense breakdown.
func (s *Service) OverheadDetails(ctx context.Context, tenantID string, period appsscript.Period, refresh bool) ([]appsscript.CategoryShare, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return load(ctx, s, ws.Tenant.ID, "pnl:overheads:"+string(period), s.ttl, refresh,
		func(ctx context.Context) ([]appsscript.CategoryShare, error) {
			return ws.Webhook.GetOverheadExpensesDetails(ctx, period)
		})
}

// Inbox returns the pending Data rows.
func (s *Service) Inbox(ctx context.Context, tenantID string, refresh bool) ([]appsscript.InboxEntry, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return load(ctx, s, ws.Tenant.ID, "inbox", s.inboxTTL, refresh, ws.Webhook.GetInbox)
}

// BalanceSummary returns the per-account summary reported by the workbook.
func (s *Service) BalanceSummary(ctx context.Context, tenantID string, refresh bool) ([]appsscript.AccountSummary, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return load(ctx, s, ws.Tenant.ID, "balances:summary", s.ttl, refresh, ws.Webhook.BalanceGetSummary)
}

// LatestBalances returns the most recent snapshot per bank.
func (s *Service) LatestBalances(ctx context.Context, tenantID string, refresh bool) ([]appsscript.LatestBalance, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return load(ctx, s, ws.Tenant.ID, "balances:latest", s.ttl, refresh, ws.Webhook.BalancesGetLatest)
}

// NamedRanges lists the workbook's named ranges as the script sees them.
func (s *Service) NamedRanges(ctx context.Context, tenantID string, refresh bool) ([]appsscript.NamedRange, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return load(ctx, s, ws.Tenant.ID, "named-ranges", s.ttl, refresh, ws.Webhook.ListNamedRanges)
}

// --- webhook writes ---------------------------------------------------------

// DeleteEntry removes a Data row.
func (s *Service) DeleteEntry(ctx context.Context, tenantID string, row int) error {
	if row < s.layout.DataStartRow {
		return apperrors.BadRequest(fmt.Sprintf("row must be >= %d", s.layout.DataStartRow))
	}
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return err
	}
	err = ws.Webhook.DeleteEntry(ctx, row)
	s.afterWrite(ctx, ws.Tenant.ID, ActionDeleteEntry, fmt.Sprint(row), nil, err)
	return err
}

// BalanceInput is a user-entered bank balance.
type BalanceInput struct {
	BankName string
	Balance  decimal.Decimal
	Note     string
	TakenAt  time.Time
}

// SaveBalance appends a balance to the workbook and stores a snapshot.
func (s *Service) SaveBalance(ctx context.Context, tenantID string, in BalanceInput) (snapshot.Snapshot, error) {
	in.BankName = strings.TrimSpace(in.BankName)
	if in.BankName == "" {
		return snapshot.Snapshot{}, apperrors.BadRequest("bankName is required")
	}
	if in.TakenAt.IsZero() {
		in.TakenAt = s.now()
	}
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	amount := money.NewAmount(in.Balance)
	err = ws.Webhook.BalancesAppend(ctx, appsscript.BalanceSnapshot{
		Timestamp: in.TakenAt,
		BankName:  in.BankName,
		Balance:   amount,
		Note:      in.Note,
	})
	detail := map[string]interface{}{"balance": amount.StringFixed(2)}
	s.afterWrite(ctx, ws.Tenant.ID, ActionBalanceAppend, in.BankName, detail, err)
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	snap, err := s.snapshots.CreateSnapshot(ctx, snapshot.Snapshot{
		TenantID: ws.Tenant.ID,
		BankName: in.BankName,
		Balance:  amount,
		Note:     in.Note,
		TakenAt:  in.TakenAt.UTC(),
	})
	if err != nil {
		return snapshot.Snapshot{}, apperrors.Internal("store balance snapshot", err)
	}
	return snap, nil
}

// Snapshots lists stored balance snapshots, newest first.
func (s *Service) Snapshots(ctx context.Context, tenantID string, limit int) ([]snapshot.Snapshot, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.snapshots.ListSnapshots(ctx, ws.Tenant.ID, limit)
	if err != nil {
		return nil, apperrors.Internal("list snapshots", err)
	}
	return snaps, nil
}

// SyncAccounts pushes opening balances to the workbook.
func (s *Service) SyncAccounts(ctx context.Context, tenantID string, accounts []appsscript.AccountOpening) (int, error) {
	if len(accounts) == 0 {
		return 0, apperrors.BadRequest("accounts must not be empty")
	}
	for i, a := range accounts {
		if strings.TrimSpace(a.AccountName) == "" {
			return 0, apperrors.BadRequest(fmt.Sprintf("accounts[%d].accountName is required", i))
		}
	}
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	n, err := ws.Webhook.AccountsSync(ctx, accounts)
	s.afterWrite(ctx, ws.Tenant.ID, ActionAccountsSync, "", map[string]interface{}{"accounts": len(accounts)}, err)
	return n, err
}

// afterWrite invalidates the tenant cache and records the audit entry. The
// cache is dropped even when the write failed, since the webhook may have
// applied it before failing.
func (s *Service) afterWrite(ctx context.Context, tenantID, action, target string, detail map[string]interface{}, writeErr error) {
	if err := s.cache.InvalidateAll(ctx, tenantID); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("cache invalidation failed")
	}

	entry := audit.Entry{
		TenantID: tenantID,
		Actor:    logging.GetActor(ctx),
		Action:   action,
		Target:   target,
		Status:   audit.StatusOK,
		Detail:   detail,
	}
	if writeErr != nil {
		entry.Status = audit.StatusFailed
		if entry.Detail == nil {
			entry.Detail = map[string]interface{}{}
		}
		entry.Detail["error"] = writeErr.Error()
		s.log.WithContext(ctx).WithError(writeErr).WithField("action", action).Error("webhook write failed")
	}
	if _, err := s.audit.AppendAudit(ctx, entry); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("action", action).Error("audit append failed")
	}
}

// AuditLog lists recent audit entries.
func (s *Service) AuditLog(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	entries, err := s.audit.ListAudit(ctx, ws.Tenant.ID, limit)
	if err != nil {
		return nil, apperrors.Internal("list audit", err)
	}
	return entries, nil
}
