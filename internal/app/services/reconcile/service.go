// Package reconcile compares the balances and P&L the workbook reports with
// figures recomputed from the Data tab, and keeps a history of the results.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bookmate/bookmate/internal/app/domain/audit"
	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/metrics"
	"github.com/bookmate/bookmate/internal/app/services/books"
	"github.com/bookmate/bookmate/internal/app/services/tenants"
	"github.com/bookmate/bookmate/internal/app/storage"
	apperrors "github.com/bookmate/bookmate/internal/errors"
	"github.com/bookmate/bookmate/internal/ledger"
	"github.com/bookmate/bookmate/internal/logging"
	"github.com/bookmate/bookmate/internal/money"
	"github.com/bookmate/bookmate/internal/sheets"
)

// ActionRun is the audit action of a reconciliation.
const ActionRun = "reconcile.run"

// Service runs and stores reconciliations.
type Service struct {
	tenants   *tenants.Registry
	books     *books.Service
	sheets    sheets.Reader
	runs      storage.RunStore
	audit     storage.AuditStore
	tolerance decimal.Decimal
	retention time.Duration
	log       *logging.Logger
	now       func() time.Time
}

// New creates a reconciliation service. rd may be nil; the Balance Summary
// tab fallback is then unavailable.
func New(reg *tenants.Registry, bk *books.Service, rd sheets.Reader, runs storage.RunStore, auditStore storage.AuditStore, tolerance decimal.Decimal, retention time.Duration, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{
		tenants:   reg,
		books:     bk,
		sheets:    rd,
		runs:      runs,
		audit:     auditStore,
		tolerance: tolerance,
		retention: retention,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run reconciles one tenant for the current month and stores the result.
// Upstream failures are recorded per section; only an unknown tenant or a
// storage failure is returned as an error.
func (s *Service) Run(ctx context.Context, tenantID, trigger string) (reconciliation.Run, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return reconciliation.Run{}, err
	}
	ctx = logging.WithTenantID(ctx, ws.Tenant.ID)
	started := s.now()
	report := s.buildReport(ctx, ws, started)

	run := reconciliation.Run{
		TenantID:     ws.Tenant.ID,
		Trigger:      trigger,
		StartedAt:    started,
		FinishedAt:   s.now(),
		Status:       status(report),
		BalanceDrift: money.NewAmount(decimal.Zero),
		PnLDrift:     money.NewAmount(ledger.TotalPnLDrift(report.PnLDrifts)),
		Report:       report,
	}
	if report.Balances != nil {
		run.BalanceDrift = report.Balances.TotalDrift
	}

	balanceDrift, _ := run.BalanceDrift.Float64()
	pnlDrift, _ := run.PnLDrift.Float64()
	metrics.RecordReconcileRun(ws.Tenant.ID, run.Status, run.FinishedAt.Sub(started), balanceDrift, pnlDrift)

	saved, err := s.runs.CreateRun(ctx, run)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("store reconciliation run failed")
		return reconciliation.Run{}, apperrors.Internal("store reconciliation run", err)
	}

	entry := audit.Entry{
		TenantID: ws.Tenant.ID,
		Actor:    logging.GetActor(ctx),
		Action:   ActionRun,
		Target:   saved.ID,
		Status:   audit.StatusOK,
		Detail: map[string]interface{}{
			"trigger":       trigger,
			"status":        saved.Status,
			"balance_drift": saved.BalanceDrift.StringFixed(2),
			"pnl_drift":     saved.PnLDrift.StringFixed(2),
		},
	}
	if saved.Status == reconciliation.StatusError {
		entry.Status = audit.StatusFailed
	}
	if _, err := s.audit.AppendAudit(ctx, entry); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("audit append failed")
	}

	s.log.WithContext(ctx).
		WithField("run_id", saved.ID).
		WithField("status", saved.Status).
		WithField("trigger", trigger).
		Info("reconciliation finished")
	return saved, nil
}

func (s *Service) buildReport(ctx context.Context, ws *tenants.Workspace, at time.Time) reconciliation.Report {
	report := reconciliation.Report{Year: at.Year(), Month: int(at.Month())}
	fail := func(section string, err error) {
		if report.Errors == nil {
			report.Errors = map[string]string{}
		}
		msg := err.Error()
		if se := apperrors.GetServiceError(err); se != nil {
			msg = se.Message
		}
		report.Errors[section] = msg
		s.log.WithContext(ctx).WithError(err).WithField("section", section).Warn("reconciliation section failed")
	}

	txs, issues, err := s.books.Transactions(ctx, ws)
	haveData := err == nil
	if err != nil {
		fail(reconciliation.SectionData, err)
	}
	report.Issues = issues

	reported, openings, err := s.reportedBalances(ctx, ws)
	if err != nil {
		fail(reconciliation.SectionBalances, err)
	} else if haveData {
		computed := ledger.ComputeBalances(txs, openings)
		balances := ledger.ReconcileBalances(computed, reported, s.tolerance)
		report.Balances = &balances
	}

	if haveData {
		transfers := ledger.CheckTransfers(txs, s.books.Layout(), s.tolerance)
		report.Transfers = &transfers
	}

	pnl, err := ws.Webhook.GetPnL(ctx)
	if err != nil {
		fail(reconciliation.SectionPnL, err)
	} else if haveData {
		computed := ledger.AggregatePnL(txs, report.Year, time.Month(report.Month), s.books.Layout())
		report.PnLDrifts = append(
			ledger.VerifyPnL("month", computed.MonthOnly.Totals, books.ReportedTotals(pnl.Month), s.tolerance),
			ledger.VerifyPnL("year", computed.YearToDate.Totals, books.ReportedTotals(pnl.Year), s.tolerance)...,
		)
	}
	return report
}

// reportedBalances prefers the webhook summary and falls back to reading the
// Balance Summary tab directly.
func (s *Service) reportedBalances(ctx context.Context, ws *tenants.Workspace) ([]ledger.ReportedBalance, map[string]decimal.Decimal, error) {
	summary, err := ws.Webhook.BalanceGetSummary(ctx)
	if err == nil {
		reported := make([]ledger.ReportedBalance, 0, len(summary))
		openings := make(map[string]decimal.Decimal, len(summary))
		for _, a := range summary {
			reported = append(reported, ledger.ReportedBalance{Account: a.AccountName, Balance: a.CurrentBalance.Decimal})
			openings[a.AccountName] = openings[a.AccountName].Add(a.OpeningBalance.Decimal)
		}
		return reported, openings, nil
	}
	if s.sheets == nil {
		return nil, nil, err
	}

	layout := s.books.Layout()
	rows, sheetErr := s.sheets.ReadRange(ctx, ws.Tenant.SpreadsheetID, layout.BalanceRange())
	if sheetErr != nil {
		return nil, nil, errors.Join(err, sheetErr)
	}
	reported, openings, issues := ledger.ParseReportedBalances(rows, layout)
	if len(issues) > 0 {
		s.log.WithContext(ctx).WithField("issues", len(issues)).Warn("balance summary tab has unreadable rows")
	}
	s.log.WithContext(ctx).WithError(err).Info("balance summary read from sheet after webhook failure")
	return reported, openings, nil
}

func status(r reconciliation.Report) string {
	if len(r.Errors) > 0 {
		return reconciliation.StatusError
	}
	if r.Balances != nil && !r.Balances.OK {
		return reconciliation.StatusDrift
	}
	if r.Transfers != nil && !r.Transfers.Balanced {
		return reconciliation.StatusDrift
	}
	for _, d := range r.PnLDrifts {
		if !d.OK {
			return reconciliation.StatusDrift
		}
	}
	return reconciliation.StatusOK
}

// RunAll reconciles every tenant sequentially, then prunes old runs.
func (s *Service) RunAll(ctx context.Context, trigger string) error {
	list, err := s.tenants.List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	var errs []error
	for _, t := range list {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Run(ctx, t.ID, trigger); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
		}
	}
	if _, err := s.Prune(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Prune deletes runs older than the retention window.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	n, err := s.runs.PruneRuns(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if n > 0 {
		s.log.WithField("removed", n).Info("pruned reconciliation runs")
	}
	return n, nil
}

// Runs lists stored runs of a tenant, newest first.
func (s *Service) Runs(ctx context.Context, tenantID string, limit int) ([]reconciliation.Run, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	runs, err := s.runs.ListRuns(ctx, ws.Tenant.ID, limit)
	if err != nil {
		return nil, apperrors.Internal("list runs", err)
	}
	return runs, nil
}

// GetRun returns one stored run.
func (s *Service) GetRun(ctx context.Context, tenantID, id string) (reconciliation.Run, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return reconciliation.Run{}, err
	}
	run, err := s.runs.GetRun(ctx, ws.Tenant.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return reconciliation.Run{}, apperrors.NotFound("reconciliation run", id)
		}
		return reconciliation.Run{}, apperrors.Internal("get run", err)
	}
	return run, nil
}
