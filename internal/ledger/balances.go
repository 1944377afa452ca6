package ledger

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bookmate/bookmate/internal/money"
)

// AccountBalance is the computed position of one payment account.
type AccountBalance struct {
	Account      string       `json:"account"`
	Opening      money.Amount `json:"opening"`
	Inflow       money.Amount `json:"inflow"`
	Outflow      money.Amount `json:"outflow"`
	Balance      money.Amount `json:"balance"`
	LastTxnDate  string       `json:"last_txn_date,omitempty"`
	Transactions int          `json:"transactions"`
}

// NormalizeName folds case, trims and collapses internal whitespace so account
// names typed slightly differently still match.
func NormalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

type balanceAcc struct {
	name            string
	opening         decimal.Decimal
	inflow, outflow decimal.Decimal
	last            string
	count           int
}

// ComputeBalances returns Opening + ΣDebit − ΣCredit per payment account,
// sorted by account name. Accounts present only in openings are included.
// Rows with no payment account do not belong to any balance and are skipped.
func ComputeBalances(txs []Transaction, openings map[string]decimal.Decimal) []AccountBalance {
	accs := map[string]*balanceAcc{}
	get := func(name string) *balanceAcc {
		key := NormalizeName(name)
		a, ok := accs[key]
		if !ok {
			a = &balanceAcc{name: strings.TrimSpace(name)}
			accs[key] = a
		}
		return a
	}

	for name, opening := range openings {
		if NormalizeName(name) == "" {
			continue
		}
		a := get(name)
		a.opening = a.opening.Add(opening)
	}
	for _, tx := range txs {
		if NormalizeName(tx.Payment) == "" {
			continue
		}
		a := get(tx.Payment)
		a.inflow = a.inflow.Add(tx.Debit)
		a.outflow = a.outflow.Add(tx.Credit)
		if d := tx.Date.Format("2006-01-02"); d > a.last {
			a.last = d
		}
		a.count++
	}

	out := make([]AccountBalance, 0, len(accs))
	for _, a := range accs {
		out = append(out, AccountBalance{
			Account:      a.name,
			Opening:      money.NewAmount(a.opening),
			Inflow:       money.NewAmount(a.inflow),
			Outflow:      money.NewAmount(a.outflow),
			Balance:      money.NewAmount(a.opening.Add(a.inflow).Sub(a.outflow)),
			LastTxnDate:  a.last,
			Transactions: a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return NormalizeName(out[i].Account) < NormalizeName(out[j].Account)
	})
	return out
}

// TransferGroup is the set of transfer legs sharing a date and reference.
type TransferGroup struct {
	Date   string       `json:"date"`
	Ref    string       `json:"ref,omitempty"`
	Rows   []int        `json:"rows"`
	Debit  money.Amount `json:"debit"`
	Credit money.Amount `json:"credit"`
}

// TransferCheck reports whether transfer rows balance out.
type TransferCheck struct {
	Debit      money.Amount    `json:"debit"`
	Credit     money.Amount    `json:"credit"`
	Difference money.Amount    `json:"difference"`
	Balanced   bool            `json:"balanced"`
	Rows       int             `json:"rows"`
	Unmatched  []TransferGroup `json:"unmatched"`
}

// CheckTransfers verifies that money moved between accounts leaves one
// account as it enters another: Σdebit must equal Σcredit over transfer rows
// within tolerance. Legs grouped by date and Ref that do not net out are
// listed as unmatched.
func CheckTransfers(txs []Transaction, l Layout, tolerance decimal.Decimal) TransferCheck {
	type key struct{ date, ref string }
	groups := map[key]*TransferGroup{}
	var order []key
	var debit, credit decimal.Decimal
	rows := 0

	for _, tx := range txs {
		if l.Classify(tx.Operation) != KindTransfer {
			continue
		}
		rows++
		debit = debit.Add(tx.Debit)
		credit = credit.Add(tx.Credit)

		k := key{date: tx.Date.Format("2006-01-02"), ref: strings.TrimSpace(tx.Ref)}
		g, ok := groups[k]
		if !ok {
			g = &TransferGroup{Date: k.date, Ref: k.ref}
			groups[k] = g
			order = append(order, k)
		}
		g.Rows = append(g.Rows, tx.Row)
		g.Debit = money.NewAmount(g.Debit.Add(tx.Debit))
		g.Credit = money.NewAmount(g.Credit.Add(tx.Credit))
	}

	unmatched := []TransferGroup{}
	for _, k := range order {
		g := groups[k]
		if g.Debit.Sub(g.Credit.Decimal).Abs().GreaterThan(tolerance) {
			unmatched = append(unmatched, *g)
		}
	}

	diff := debit.Sub(credit)
	return TransferCheck{
		Debit:      money.NewAmount(debit),
		Credit:     money.NewAmount(credit),
		Difference: money.NewAmount(diff),
		Balanced:   diff.Abs().LessThanOrEqual(tolerance),
		Rows:       rows,
		Unmatched:  unmatched,
	}
}
