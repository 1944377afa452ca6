package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bookmate/bookmate/internal/money"
)

var hundred = decimal.NewFromInt(100)

// Totals are the headline P&L figures of a period.
type Totals struct {
	Revenue               money.Amount `json:"revenue"`
	Overheads             money.Amount `json:"overheads"`
	PropertyPersonExpense money.Amount `json:"property_person_expense"`
	GOP                   money.Amount `json:"gop"`
	EBITDA                money.Amount `json:"ebitda"`
}

// Share is one line of a breakdown.
type Share struct {
	Name       string       `json:"name"`
	Amount     money.Amount `json:"amount"`
	Percentage float64      `json:"percentage"`
}

// Breakdown is a period's totals with per-property and per-category detail.
type Breakdown struct {
	Totals
	RevenueByCategory    []Share `json:"revenue_by_category"`
	PropertyPersonByName []Share `json:"property_person"`
	OverheadsByCategory  []Share `json:"overheads_by_category"`
	Transactions         int     `json:"transactions"`
}

// PnL holds month and year-to-date figures for one calendar month.
type PnL struct {
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	MonthOnly  Breakdown `json:"month_figures"`
	YearToDate Breakdown `json:"year_figures"`
}

type accumulator struct {
	revenue, overheads, propertyPerson decimal.Decimal
	byRevenue, byProperty, byOverhead  map[string]decimal.Decimal
	count                              int
}

func newAccumulator() *accumulator {
	return &accumulator{
		byRevenue:  map[string]decimal.Decimal{},
		byProperty: map[string]decimal.Decimal{},
		byOverhead: map[string]decimal.Decimal{},
	}
}

func (a *accumulator) add(tx Transaction, l Layout) {
	switch l.Classify(tx.Operation) {
	case KindRevenue:
		amt := tx.Debit.Sub(tx.Credit)
		a.revenue = a.revenue.Add(amt)
		a.byRevenue[tx.Operation] = a.byRevenue[tx.Operation].Add(amt)
	case KindExpense:
		amt := tx.Credit.Sub(tx.Debit)
		if l.IsPropertyPerson(tx) {
			a.propertyPerson = a.propertyPerson.Add(amt)
			name := strings.TrimSpace(tx.Property)
			a.byProperty[name] = a.byProperty[name].Add(amt)
		} else {
			a.overheads = a.overheads.Add(amt)
			a.byOverhead[tx.Operation] = a.byOverhead[tx.Operation].Add(amt)
		}
	default:
		return
	}
	a.count++
}

func (a *accumulator) breakdown() Breakdown {
	return Breakdown{
		Totals:               ComputeTotals(a.revenue, a.overheads, a.propertyPerson),
		RevenueByCategory:    shares(a.byRevenue, a.revenue),
		PropertyPersonByName: shares(a.byProperty, a.propertyPerson),
		OverheadsByCategory:  shares(a.byOverhead, a.overheads),
		Transactions:         a.count,
	}
}

// ComputeTotals derives GOP and EBITDA from the three base figures.
func ComputeTotals(revenue, overheads, propertyPerson decimal.Decimal) Totals {
	gop := revenue.Sub(propertyPerson)
	return Totals{
		Revenue:               money.NewAmount(revenue),
		Overheads:             money.NewAmount(overheads),
		PropertyPersonExpense: money.NewAmount(propertyPerson),
		GOP:                   money.NewAmount(gop),
		EBITDA:                money.NewAmount(gop.Sub(overheads)),
	}
}

// AggregatePnL computes figures for (year, month) and year-to-date through that month.
func AggregatePnL(txs []Transaction, year int, month time.Month, l Layout) PnL {
	monthAcc, yearAcc := newAccumulator(), newAccumulator()
	for _, tx := range txs {
		if tx.Date.Year() != year || tx.Date.Month() > month {
			continue
		}
		yearAcc.add(tx, l)
		if tx.Date.Month() == month {
			monthAcc.add(tx, l)
		}
	}
	return PnL{
		Year:       year,
		Month:      int(month),
		MonthOnly:  monthAcc.breakdown(),
		YearToDate: yearAcc.breakdown(),
	}
}

// shares converts a name->amount map into a list sorted by amount descending
// then name, with percentages of total rounded to two places.
func shares(by map[string]decimal.Decimal, total decimal.Decimal) []Share {
	out := make([]Share, 0, len(by))
	for name, amt := range by {
		pct := 0.0
		if !total.IsZero() {
			pct, _ = amt.Div(total).Mul(hundred).Round(2).Float64()
		}
		out = append(out, Share{Name: name, Amount: money.NewAmount(amt), Percentage: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount.Decimal); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
