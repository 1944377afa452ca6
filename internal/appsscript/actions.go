package appsscript

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/bookmate/bookmate/internal/money"
)

// Action names a webhook operation.
type Action string

const (
	ActionGetInbox                   Action = "getInbox"
	ActionDeleteEntry                Action = "deleteEntry"
	ActionGetPnL                     Action = "getPnL"
	ActionBalancesAppend             Action = "balancesAppend"
	ActionBalancesGetLatest          Action = "balancesGetLatest"
	ActionBalanceGetSummary          Action = "balanceGetSummary"
	ActionAccountsSync               Action = "accountsSync"
	ActionGetPropertyPersonDetails   Action = "getPropertyPersonDetails"
	ActionGetOverheadExpensesDetails Action = "getOverheadExpensesDetails"
	ActionListNamedRanges            Action = "list_named_ranges"
)

// Idempotent reports whether the action only reads and may be retried.
func (a Action) Idempotent() bool {
	switch a {
	case ActionDeleteEntry, ActionBalancesAppend, ActionAccountsSync:
		return false
	}
	return true
}

// Period selects month-to-date or year-to-date detail reports.
type Period string

const (
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod validates a period query value; empty means month.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "month":
		return PeriodMonth, nil
	case "year":
		return PeriodYear, nil
	}
	return "", fmt.Errorf("period must be month or year, got %q", s)
}

// PnLFigures are the headline P&L numbers the workbook reports for a period.
type PnLFigures struct {
	Revenue               money.Amount `json:"revenue"`
	Overheads             money.Amount `json:"overheads"`
	PropertyPersonExpense money.Amount `json:"propertyPersonExpense"`
	GOP                   money.Amount `json:"gop"`
	EBITDA                money.Amount `json:"ebitda"`
}

// PnLReport is the getPnL payload.
type PnLReport struct {
	Month     PnLFigures `json:"month"`
	Year      PnLFigures `json:"year"`
	UpdatedAt string     `json:"updatedAt,omitempty"`
}

// InboxEntry is one pending row of the Data tab.
type InboxEntry struct {
	RowNumber       int          `json:"rowNumber"`
	Day             string       `json:"day"`
	Month           string       `json:"month"`
	Year            string       `json:"year"`
	Property        string       `json:"property"`
	TypeOfOperation string       `json:"typeOfOperation"`
	TypeOfPayment   string       `json:"typeOfPayment"`
	Detail          string       `json:"detail"`
	Ref             string       `json:"ref"`
	Debit           money.Amount `json:"debit"`
	Credit          money.Amount `json:"credit"`
}

// BalanceSnapshot is a user-entered bank balance appended to the workbook.
type BalanceSnapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	BankName  string       `json:"bankName"`
	Balance   money.Amount `json:"balance"`
	Note      string       `json:"note,omitempty"`
}

// LatestBalance is the most recent snapshot per bank.
type LatestBalance struct {
	BankName  string       `json:"bankName"`
	Balance   money.Amount `json:"balance"`
	Timestamp string       `json:"timestamp"`
}

// AccountSummary is one row of the Balance Summary tab as the script reports it.
type AccountSummary struct {
	AccountName    string       `json:"accountName"`
	OpeningBalance money.Amount `json:"openingBalance"`
	NetChange      money.Amount `json:"netChange"`
	CurrentBalance money.Amount `json:"currentBalance"`
	LastTxnAt      string       `json:"lastTxnAt,omitempty"`
}

// AccountOpening is pushed by accountsSync.
type AccountOpening struct {
	AccountName    string       `json:"accountName"`
	OpeningBalance money.Amount `json:"openingBalance"`
}

// CategoryShare is a line of the property/person or overhead detail reports.
type CategoryShare struct {
	Name       string       `json:"name"`
	Expense    money.Amount `json:"expense"`
	Percentage float64      `json:"percentage"`
}

// NamedRange is a workbook named range as listed by the script.
type NamedRange struct {
	Name  string `json:"name"`
	Range string `json:"range"`
}

// GetPnL fetches month and year P&L figures computed by the workbook.
func (c *Client) GetPnL(ctx context.Context) (*PnLReport, error) {
	raw, err := c.Call(ctx, ActionGetPnL, nil)
	if err != nil {
		return nil, err
	}
	var report PnLReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode getPnL: %w", err)
	}
	return &report, nil
}

// GetInbox fetches pending entries.
func (c *Client) GetInbox(ctx context.Context) ([]InboxEntry, error) {
	raw, err := c.Call(ctx, ActionGetInbox, nil)
	if err != nil {
		return nil, err
	}
	items := listOf(raw, "entries")
	out := make([]InboxEntry, 0, len(items))
	for _, item := range items {
		debit, err := amountOf(item, "debit")
		if err != nil {
			return nil, fmt.Errorf("decode getInbox row %d: %w", item.Get("rowNumber").Int(), err)
		}
		credit, err := amountOf(item, "credit")
		if err != nil {
			return nil, fmt.Errorf("decode getInbox row %d: %w", item.Get("rowNumber").Int(), err)
		}
		out = append(out, InboxEntry{
			RowNumber:       int(item.Get("rowNumber").Int()),
			Day:             item.Get("day").String(),
			Month:           item.Get("month").String(),
			Year:            item.Get("year").String(),
			Property:        item.Get("property").String(),
			TypeOfOperation: item.Get("typeOfOperation").String(),
			TypeOfPayment:   item.Get("typeOfPayment").String(),
			Detail:          item.Get("detail").String(),
			Ref:             item.Get("ref").String(),
			Debit:           money.NewAmount(debit),
			Credit:          money.NewAmount(credit),
		})
	}
	return out, nil
}

// DeleteEntry removes a Data row. Row 1 is the header and cannot be deleted.
func (c *Client) DeleteEntry(ctx context.Context, rowNumber int) error {
	if rowNumber < 2 {
		return fmt.Errorf("row number must be >= 2, got %d", rowNumber)
	}
	_, err := c.Call(ctx, ActionDeleteEntry, map[string]interface{}{"rowNumber": rowNumber})
	return err
}

// BalancesAppend appends a bank balance snapshot.
func (c *Client) BalancesAppend(ctx context.Context, snap BalanceSnapshot) error {
	if strings.TrimSpace(snap.BankName) == "" {
		return fmt.Errorf("bank name is required")
	}
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := c.Call(ctx, ActionBalancesAppend, map[string]interface{}{
		"timestamp": ts.UTC().Format(time.RFC3339),
		"bankName":  strings.TrimSpace(snap.BankName),
		"balance":   snap.Balance,
		"note":      snap.Note,
	})
	return err
}

// BalancesGetLatest fetches the latest snapshot per bank.
func (c *Client) BalancesGetLatest(ctx context.Context) ([]LatestBalance, error) {
	raw, err := c.Call(ctx, ActionBalancesGetLatest, nil)
	if err != nil {
		return nil, err
	}
	items := listOf(raw, "balances")
	out := make([]LatestBalance, 0, len(items))
	for _, item := range items {
		bal, err := amountOf(item, "balance")
		if err != nil {
			return nil, fmt.Errorf("decode balancesGetLatest: %w", err)
		}
		out = append(out, LatestBalance{
			BankName:  item.Get("bankName").String(),
			Balance:   money.NewAmount(bal),
			Timestamp: item.Get("timestamp").String(),
		})
	}
	return out, nil
}

// BalanceGetSummary fetches the Balance Summary rows.
func (c *Client) BalanceGetSummary(ctx context.Context) ([]AccountSummary, error) {
	raw, err := c.Call(ctx, ActionBalanceGetSummary, nil)
	if err != nil {
		return nil, err
	}
	items := listOf(raw, "accounts")
	out := make([]AccountSummary, 0, len(items))
	for _, item := range items {
		var vals [3]decimal.Decimal
		for i, key := range []string{"openingBalance", "netChange", "currentBalance"} {
			v, err := amountOf(item, key)
			if err != nil {
				return nil, fmt.Errorf("decode balanceGetSummary %s: %w", key, err)
			}
			vals[i] = v
		}
		out = append(out, AccountSummary{
			AccountName:    item.Get("accountName").String(),
			OpeningBalance: money.NewAmount(vals[0]),
			NetChange:      money.NewAmount(vals[1]),
			CurrentBalance: money.NewAmount(vals[2]),
			LastTxnAt:      item.Get("lastTxnAt").String(),
		})
	}
	return out, nil
}

// AccountsSync pushes account names and opening balances to the workbook.
func (c *Client) AccountsSync(ctx context.Context, accounts []AccountOpening) (int, error) {
	if len(accounts) == 0 {
		return 0, fmt.Errorf("at least one account is required")
	}
	for _, a := range accounts {
		if strings.TrimSpace(a.AccountName) == "" {
			return 0, fmt.Errorf("account name is required")
		}
	}
	raw, err := c.Call(ctx, ActionAccountsSync, map[string]interface{}{"accounts": accounts})
	if err != nil {
		return 0, err
	}
	if synced := gjson.GetBytes(raw, "synced"); synced.Exists() {
		return int(synced.Int()), nil
	}
	return len(accounts), nil
}

// GetPropertyPersonDetails fetches per property/person expense shares.
func (c *Client) GetPropertyPersonDetails(ctx context.Context, period Period) ([]CategoryShare, error) {
	return c.categoryShares(ctx, ActionGetPropertyPersonDetails, period)
}

// GetOverheadExpensesDetails fetches per category overhead shares.
func (c *Client) GetOverheadExpensesDetails(ctx context.Context, period Period) ([]CategoryShare, error) {
	return c.categoryShares(ctx, ActionGetOverheadExpensesDetails, period)
}

func (c *Client) categoryShares(ctx context.Context, action Action, period Period) ([]CategoryShare, error) {
	raw, err := c.Call(ctx, action, map[string]interface{}{"period": string(period)})
	if err != nil {
		return nil, err
	}
	items := listOf(raw, "items")
	out := make([]CategoryShare, 0, len(items))
	for _, item := range items {
		exp, err := amountOf(item, "expense")
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", action, err)
		}
		name := item.Get("name").String()
		if name == "" {
			name = item.Get("category").String()
		}
		out = append(out, CategoryShare{
			Name:       name,
			Expense:    money.NewAmount(exp),
			Percentage: item.Get("percentage").Float(),
		})
	}
	return out, nil
}

// ListNamedRanges lists the workbook named ranges.
func (c *Client) ListNamedRanges(ctx context.Context) ([]NamedRange, error) {
	raw, err := c.Call(ctx, ActionListNamedRanges, nil)
	if err != nil {
		return nil, err
	}
	items := listOf(raw, "namedRanges")
	out := make([]NamedRange, 0, len(items))
	for _, item := range items {
		out = append(out, NamedRange{
			Name:  item.Get("name").String(),
			Range: item.Get("range").String(),
		})
	}
	return out, nil
}

// listOf accepts either a bare array or an object wrapping it under key.
func listOf(raw json.RawMessage, key string) []gjson.Result {
	res := gjson.ParseBytes(raw)
	if res.IsArray() {
		return res.Array()
	}
	if res.IsObject() {
		if inner := res.Get(key); inner.IsArray() {
			return inner.Array()
		}
	}
	return nil
}

func amountOf(item gjson.Result, key string) (decimal.Decimal, error) {
	v := item.Get(key)
	switch v.Type {
	case gjson.Null:
		return decimal.Zero, nil
	case gjson.Number:
		return decimal.NewFromString(v.Raw)
	default:
		return money.Parse(v.String())
	}
}
