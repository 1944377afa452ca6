// Package workbook checks a tenant workbook for the structural problems that
// silently break its P&L: missing named ranges and SUM formulas that stop
// short of the last Data row.
package workbook

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bookmate/bookmate/internal/ledger"
	"github.com/bookmate/bookmate/internal/sheets"
)

// Range issue statuses.
const (
	RangeMissing    = "missing"
	RangeWrongSheet = "wrong_sheet"
)

// RangeIssue is an expected named range that is absent or misplaced.
type RangeIssue struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Range  string `json:"range,omitempty"`
}

// StaleSum is a SUM reference into the Data tab that ends before the last data row.
type StaleSum struct {
	Cell        string `json:"cell"`
	Formula     string `json:"formula"`
	Reference   string `json:"reference"`
	CurrentEnd  int    `json:"current_end"`
	RequiredEnd int    `json:"required_end"`
}

// HealthReport summarises one inspection.
type HealthReport struct {
	Healthy         bool         `json:"healthy"`
	MissingTabs     []string     `json:"missing_tabs"`
	LastDataRow     int          `json:"last_data_row"`
	NamedRanges     []RangeIssue `json:"named_ranges"`
	ExtraRanges     []string     `json:"extra_ranges"`
	StaleSums       []StaleSum   `json:"stale_sums"`
	FormulasChecked int          `json:"formulas_checked"`
	CheckedAt       time.Time    `json:"checked_at"`
}

// RepairedCell is a formula rewritten by Repair.
type RepairedCell struct {
	Cell   string `json:"cell"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Inspector inspects and repairs workbooks sharing one layout.
type Inspector struct {
	sheets sheets.ReadWriter
	layout ledger.Layout
	now    func() time.Time
}

// New creates an Inspector.
func New(rw sheets.ReadWriter, layout ledger.Layout) *Inspector {
	return &Inspector{sheets: rw, layout: layout, now: time.Now}
}

// sheetRef matches "<sheet>!<start>:<end>" with a bounded end row. Group 1 is
// the sheet, group 2 everything up to the end row digits, group 3 the end row.
var sheetRef = regexp.MustCompile(`('(?:[^']|'')+'|[A-Za-z0-9_.]+)!(\$?[A-Za-z]{1,3}\$?\d+:\$?[A-Za-z]{1,3}\$?)(\d+)`)

var sumCall = regexp.MustCompile(`(?i)\bSUM[A-Z]*\(`)

// Inspect reports missing tabs, named-range and SUM-coverage problems. When
// the Data or P&L tab is missing the deeper checks are skipped.
func (i *Inspector) Inspect(ctx context.Context, spreadsheetID string) (*HealthReport, error) {
	missing, err := i.missingTabs(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	for _, tab := range missing {
		if tab == i.layout.DataSheet || tab == i.layout.PnLSheet {
			return &HealthReport{
				MissingTabs: missing,
				NamedRanges: []RangeIssue{},
				ExtraRanges: []string{},
				StaleSums:   []StaleSum{},
				CheckedAt:   i.now().UTC(),
			}, nil
		}
	}

	lastRow, err := i.lastDataRow(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	named, err := i.sheets.NamedRanges(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	formulas, err := i.sheets.ReadFormulas(ctx, spreadsheetID, sheets.QuoteSheet(i.layout.PnLSheet))
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		MissingTabs: missing,
		LastDataRow: lastRow,
		NamedRanges: i.checkNamedRanges(named),
		ExtraRanges: i.extraRanges(named),
		StaleSums:   []StaleSum{},
		CheckedAt:   i.now().UTC(),
	}
	for _, f := range i.sumFormulas(formulas) {
		report.FormulasChecked++
		report.StaleSums = append(report.StaleSums, i.staleRefs(f.cell, f.formula, lastRow)...)
	}
	report.Healthy = len(missing) == 0 && len(report.NamedRanges) == 0 && len(report.StaleSums) == 0
	return report, nil
}

// Repair rewrites every stale SUM reference to end at the last data row and
// returns the cells it changed. Other parts of each formula are preserved.
func (i *Inspector) Repair(ctx context.Context, spreadsheetID string) ([]RepairedCell, error) {
	lastRow, err := i.lastDataRow(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	formulas, err := i.sheets.ReadFormulas(ctx, spreadsheetID, sheets.QuoteSheet(i.layout.PnLSheet))
	if err != nil {
		return nil, err
	}

	repaired := []RepairedCell{}
	var updates []sheets.CellUpdate
	for _, f := range i.sumFormulas(formulas) {
		after, changed := i.rewrite(f.formula, lastRow)
		if !changed {
			continue
		}
		cell := sheets.A1(i.layout.PnLSheet, f.cell)
		repaired = append(repaired, RepairedCell{Cell: cell, Before: f.formula, After: after})
		updates = append(updates, sheets.CellUpdate{Range: cell, Values: [][]interface{}{{after}}})
	}
	if len(updates) == 0 {
		return repaired, nil
	}
	if err := i.sheets.BatchWrite(ctx, spreadsheetID, updates); err != nil {
		return nil, err
	}
	return repaired, nil
}

func (i *Inspector) missingTabs(ctx context.Context, spreadsheetID string) ([]string, error) {
	titles, err := i.sheets.SheetTitles(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		present[t] = struct{}{}
	}
	missing := []string{}
	for _, want := range []string{i.layout.DataSheet, i.layout.PnLSheet, i.layout.ListsSheet, i.layout.BalanceSheet} {
		if _, ok := present[want]; !ok {
			missing = append(missing, want)
		}
	}
	return missing, nil
}

func (i *Inspector) lastDataRow(ctx context.Context, spreadsheetID string) (int, error) {
	rows, err := i.sheets.ReadRange(ctx, spreadsheetID, i.layout.DataRange())
	if err != nil {
		return 0, err
	}
	return ledger.LastDataRow(rows, i.layout.DataStartRow), nil
}

func (i *Inspector) checkNamedRanges(named []sheets.NamedRange) []RangeIssue {
	byName := make(map[string]sheets.NamedRange, len(named))
	for _, nr := range named {
		byName[nr.Name] = nr
	}
	issues := []RangeIssue{}
	for _, want := range i.layout.NamedRanges {
		nr, ok := byName[want]
		switch {
		case !ok:
			issues = append(issues, RangeIssue{Name: want, Status: RangeMissing})
		case nr.Sheet != i.layout.PnLSheet:
			issues = append(issues, RangeIssue{Name: want, Status: RangeWrongSheet, Range: nr.A1})
		}
	}
	return issues
}

func (i *Inspector) extraRanges(named []sheets.NamedRange) []string {
	expected := make(map[string]struct{}, len(i.layout.NamedRanges))
	for _, n := range i.layout.NamedRanges {
		expected[n] = struct{}{}
	}
	extra := []string{}
	for _, nr := range named {
		if _, ok := expected[nr.Name]; !ok {
			extra = append(extra, nr.Name)
		}
	}
	sort.Strings(extra)
	return extra
}

type formulaCell struct {
	cell    string
	formula string
}

// sumFormulas lists formulas on the P&L tab that call a SUM family function.
// Values read from the bare sheet name start at A1.
func (i *Inspector) sumFormulas(rows [][]interface{}) []formulaCell {
	var out []formulaCell
	for r, row := range rows {
		for c := range row {
			v := sheets.Cell(row, c)
			if !strings.HasPrefix(v, "=") || !sumCall.MatchString(v) {
				continue
			}
			out = append(out, formulaCell{cell: sheets.ColumnLetters(c+1) + strconv.Itoa(r+1), formula: v})
		}
	}
	return out
}

// dataEnd parses a matched reference and returns its end row when it points
// into the Data tab.
func (i *Inspector) dataEnd(ref string) (int, bool) {
	r, err := sheets.ParseRange(ref)
	if err != nil || !strings.EqualFold(r.Sheet, i.layout.DataSheet) {
		return 0, false
	}
	return r.EndRow, true
}

func (i *Inspector) staleRefs(cell, formula string, lastRow int) []StaleSum {
	var out []StaleSum
	for _, ref := range sheetRef.FindAllString(formula, -1) {
		end, ok := i.dataEnd(ref)
		if !ok || end >= lastRow {
			continue
		}
		out = append(out, StaleSum{
			Cell:        sheets.A1(i.layout.PnLSheet, cell),
			Formula:     formula,
			Reference:   ref,
			CurrentEnd:  end,
			RequiredEnd: lastRow,
		})
	}
	return out
}

// rewrite extends every stale Data reference in formula to end at lastRow.
func (i *Inspector) rewrite(formula string, lastRow int) (string, bool) {
	var b strings.Builder
	prev, changed := 0, false
	for _, idx := range sheetRef.FindAllStringSubmatchIndex(formula, -1) {
		end, ok := i.dataEnd(formula[idx[0]:idx[1]])
		if !ok || end >= lastRow {
			continue
		}
		b.WriteString(formula[prev:idx[6]])
		b.WriteString(strconv.Itoa(lastRow))
		prev = idx[7]
		changed = true
	}
	if !changed {
		return formula, false
	}
	b.WriteString(formula[prev:])
	return b.String(), true
}

// String renders a one-line summary for logs.
func (r *HealthReport) String() string {
	return fmt.Sprintf("healthy=%t missing_tabs=%d last_row=%d range_issues=%d stale_sums=%d",
		r.Healthy, len(r.MissingTabs), r.LastDataRow, len(r.NamedRanges), len(r.StaleSums))
}
