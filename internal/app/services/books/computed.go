package books

import (
	"context"
	"fmt"
	"time"

	"github.com/bookmate/bookmate/internal/app/services/tenants"
	"github.com/bookmate/bookmate/internal/appsscript"
	apperrors "github.com/bookmate/bookmate/internal/errors"
	"github.com/bookmate/bookmate/internal/ledger"
	"github.com/bookmate/bookmate/internal/money"
	"github.com/bookmate/bookmate/internal/workbook"
)

// ComputedPnL is a P&L aggregated from the Data tab, with the rows that could
// not be read.
type ComputedPnL struct {
	ledger.PnL
	Issues []ledger.RowIssue `json:"issues,omitempty"`
}

// PnLVerification compares computed figures with what the workbook reports.
type PnLVerification struct {
	Year       int            `json:"year"`
	Month      int            `json:"month"`
	Drifts     []ledger.Drift `json:"drifts"`
	TotalDrift money.Amount   `json:"total_drift"`
	OK         bool           `json:"ok"`
}

// Categories are the values of the Lists tab.
type Categories = ledger.Lists

// ReportedTotals converts webhook P&L figures to ledger totals.
func ReportedTotals(f appsscript.PnLFigures) ledger.Totals {
	return ledger.Totals{
		Revenue:               f.Revenue,
		Overheads:             f.Overheads,
		PropertyPersonExpense: f.PropertyPersonExpense,
		GOP:                   f.GOP,
		EBITDA:                f.EBITDA,
	}
}

// Period resolves optional year/month query values against the service clock.
func (s *Service) Period(year, month int) (int, time.Month, error) {
	now := s.now()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if year < 2000 || year > 2100 {
		return 0, 0, apperrors.BadRequest("year out of range")
	}
	if month < 1 || month > 12 {
		return 0, 0, apperrors.BadRequest("month must be 1-12")
	}
	return year, time.Month(month), nil
}

// Transactions reads and parses the Data tab of a workspace.
func (s *Service) Transactions(ctx context.Context, ws *tenants.Workspace) ([]ledger.Transaction, []ledger.RowIssue, error) {
	if s.sheets == nil {
		return nil, nil, apperrors.Unavailable(ErrSheetsDisabled.Error(), ErrSheetsDisabled)
	}
	rows, err := s.sheets.ReadRange(ctx, ws.Tenant.SpreadsheetID, s.layout.DataRange())
	if err != nil {
		return nil, nil, err
	}
	txs, issues := ledger.ParseTransactions(rows, s.layout)
	return txs, issues, nil
}

// ComputePnL aggregates the Data tab for a month.
func (s *Service) ComputePnL(ctx context.Context, tenantID string, year int, month time.Month) (*ComputedPnL, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	txs, issues, err := s.Transactions(ctx, ws)
	if err != nil {
		return nil, err
	}
	return &ComputedPnL{PnL: ledger.AggregatePnL(txs, year, month, s.layout), Issues: issues}, nil
}

// VerifyPnL compares the computed month and year-to-date figures with the
// workbook's getPnL output. getPnL only reports the current period, so any
// other month is rejected.
func (s *Service) VerifyPnL(ctx context.Context, tenantID string, year int, month time.Month) (*PnLVerification, error) {
	if now := s.now(); year != now.Year() || month != now.Month() {
		return nil, apperrors.BadRequest(fmt.Sprintf("verification is only available for the current period %d-%02d", now.Year(), int(now.Month())))
	}
	computed, err := s.ComputePnL(ctx, tenantID, year, month)
	if err != nil {
		return nil, err
	}
	reported, err := s.PnL(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}
	drifts := append(
		ledger.VerifyPnL("month", computed.MonthOnly.Totals, ReportedTotals(reported.Month), s.tolerance),
		ledger.VerifyPnL("year", computed.YearToDate.Totals, ReportedTotals(reported.Year), s.tolerance)...,
	)
	out := &PnLVerification{
		Year:       year,
		Month:      int(month),
		Drifts:     drifts,
		TotalDrift: money.NewAmount(ledger.TotalPnLDrift(drifts)),
		OK:         true,
	}
	for _, d := range drifts {
		if !d.OK {
			out.OK = false
		}
	}
	return out, nil
}

// Categories returns the Lists tab values.
func (s *Service) Categories(ctx context.Context, tenantID string, refresh bool) (Categories, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return Categories{}, err
	}
	if s.sheets == nil {
		return Categories{}, apperrors.Unavailable(ErrSheetsDisabled.Error(), ErrSheetsDisabled)
	}
	return load(ctx, s, ws.Tenant.ID, "categories", s.ttl, refresh, func(ctx context.Context) (Categories, error) {
		columns, err := s.sheets.BatchRead(ctx, ws.Tenant.SpreadsheetID, s.layout.ListRanges())
		if err != nil {
			return Categories{}, err
		}
		return ledger.ParseLists(columns), nil
	})
}

// WorkbookHealth inspects named ranges and SUM coverage.
func (s *Service) WorkbookHealth(ctx context.Context, tenantID string) (*workbook.HealthReport, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if s.sheets == nil {
		return nil, apperrors.Unavailable(ErrSheetsDisabled.Error(), ErrSheetsDisabled)
	}
	return workbook.New(s.sheets, s.layout).Inspect(ctx, ws.Tenant.SpreadsheetID)
}

// RepairWorkbook extends stale SUM formulas to the last data row.
func (s *Service) RepairWorkbook(ctx context.Context, tenantID string) ([]workbook.RepairedCell, error) {
	ws, err := s.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if s.sheets == nil {
		return nil, apperrors.Unavailable(ErrSheetsDisabled.Error(), ErrSheetsDisabled)
	}
	cells, err := workbook.New(s.sheets, s.layout).Repair(ctx, ws.Tenant.SpreadsheetID)
	s.afterWrite(ctx, ws.Tenant.ID, ActionWorkbookRepair, ws.Tenant.SpreadsheetID,
		map[string]interface{}{"cells": len(cells)}, err)
	if err != nil {
		return nil, err
	}
	return cells, nil
}
