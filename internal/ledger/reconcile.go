package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bookmate/bookmate/internal/money"
)

// BalanceStatus is the outcome for one account.
type BalanceStatus string

const (
	StatusOK              BalanceStatus = "ok"
	StatusDrift           BalanceStatus = "drift"
	StatusMissingReported BalanceStatus = "missing_reported"
	StatusMissingComputed BalanceStatus = "missing_computed"
)

// ReportedBalance is a balance as the workbook states it.
type ReportedBalance struct {
	Account string
	Balance decimal.Decimal
}

// BalanceLine compares one account.
type BalanceLine struct {
	Account  string        `json:"account"`
	Computed *money.Amount `json:"computed,omitempty"`
	Reported *money.Amount `json:"reported,omitempty"`
	Drift    money.Amount  `json:"drift"`
	Status   BalanceStatus `json:"status"`
}

// BalanceReport is the result of reconciling computed against reported balances.
type BalanceReport struct {
	Lines      []BalanceLine `json:"lines"`
	TotalDrift money.Amount  `json:"total_drift"`
	OK         bool          `json:"ok"`
}

// ReconcileBalances matches accounts by normalized name. Drift is reported
// minus computed; an account is ok when |drift| <= tolerance. TotalDrift sums
// |drift| over matched accounts only.
func ReconcileBalances(computed []AccountBalance, reported []ReportedBalance, tolerance decimal.Decimal) BalanceReport {
	type pair struct {
		name     string
		computed *decimal.Decimal
		reported *decimal.Decimal
	}
	pairs := map[string]*pair{}
	lookup := func(name string) *pair {
		key := NormalizeName(name)
		p, ok := pairs[key]
		if !ok {
			p = &pair{name: name}
			pairs[key] = p
		}
		return p
	}

	for _, c := range computed {
		if NormalizeName(c.Account) == "" {
			continue
		}
		v := c.Balance.Decimal
		p := lookup(c.Account)
		if p.computed != nil {
			v = v.Add(*p.computed)
		}
		p.computed = &v
	}
	for _, r := range reported {
		if NormalizeName(r.Account) == "" {
			continue
		}
		v := r.Balance
		p := lookup(r.Account)
		if p.reported != nil {
			v = v.Add(*p.reported)
		}
		p.reported = &v
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := BalanceReport{Lines: make([]BalanceLine, 0, len(keys)), OK: true}
	total := decimal.Zero
	for _, k := range keys {
		p := pairs[k]
		line := BalanceLine{Account: p.name}
		if p.computed != nil {
			a := money.NewAmount(*p.computed)
			line.Computed = &a
		}
		if p.reported != nil {
			a := money.NewAmount(*p.reported)
			line.Reported = &a
		}

		switch {
		case p.reported == nil:
			line.Status = StatusMissingReported
		case p.computed == nil:
			line.Status = StatusMissingComputed
		default:
			drift := p.reported.Sub(*p.computed)
			line.Drift = money.NewAmount(drift)
			total = total.Add(drift.Abs())
			if drift.Abs().LessThanOrEqual(tolerance) {
				line.Status = StatusOK
			} else {
				line.Status = StatusDrift
			}
		}
		if line.Status != StatusOK {
			report.OK = false
		}
		report.Lines = append(report.Lines, line)
	}
	report.TotalDrift = money.NewAmount(total)
	return report
}

// Drift compares one P&L metric.
type Drift struct {
	Period   string       `json:"period"`
	Metric   string       `json:"metric"`
	Computed money.Amount `json:"computed"`
	Reported money.Amount `json:"reported"`
	Drift    money.Amount `json:"drift"`
	OK       bool         `json:"ok"`
}

// VerifyPnL compares each headline metric of computed against reported for a
// period label ("month" or "year").
func VerifyPnL(period string, computed, reported Totals, tolerance decimal.Decimal) []Drift {
	metrics := []struct {
		name     string
		computed money.Amount
		reported money.Amount
	}{
		{"revenue", computed.Revenue, reported.Revenue},
		{"overheads", computed.Overheads, reported.Overheads},
		{"property_person_expense", computed.PropertyPersonExpense, reported.PropertyPersonExpense},
		{"gop", computed.GOP, reported.GOP},
		{"ebitda", computed.EBITDA, reported.EBITDA},
	}
	out := make([]Drift, 0, len(metrics))
	for _, m := range metrics {
		d := m.reported.Sub(m.computed.Decimal)
		out = append(out, Drift{
			Period:   period,
			Metric:   m.name,
			Computed: m.computed,
			Reported: m.reported,
			Drift:    money.NewAmount(d),
			OK:       d.Abs().LessThanOrEqual(tolerance),
		})
	}
	return out
}

// TotalPnLDrift sums |drift| over drifts.
func TotalPnLDrift(drifts []Drift) decimal.Decimal {
	total := decimal.Zero
	for _, d := range drifts {
		total = total.Add(d.Drift.Abs())
	}
	return total
}

// ParseReportedBalances reads Balance Summary rows (account, current balance).
func ParseReportedBalances(rows [][]interface{}, l Layout) ([]ReportedBalance, map[string]decimal.Decimal, []RowIssue) {
	var (
		reported []ReportedBalance
		issues   []RowIssue
	)
	openings := map[string]decimal.Decimal{}
	for i, row := range rows {
		name := cellAt(row, l.Balance.Account)
		if name == "" {
			continue
		}
		rowNum := l.BalanceStartRow + i
		openRaw, curRaw := cellAt(row, l.Balance.Opening), cellAt(row, l.Balance.Current)
		opening, err := money.Parse(openRaw)
		if err != nil {
			issues = append(issues, RowIssue{Row: rowNum, Column: l.Balance.Opening, Value: openRaw, Reason: "invalid amount"})
			continue
		}
		current, err := money.Parse(curRaw)
		if err != nil {
			issues = append(issues, RowIssue{Row: rowNum, Column: l.Balance.Current, Value: curRaw, Reason: "invalid amount"})
			continue
		}
		openings[name] = opening
		reported = append(reported, ReportedBalance{Account: name, Balance: current})
	}
	return reported, openings, issues
}
