// Package servicetest provides in-memory stand-ins for the webhook and the
// Sheets API, shared by service and HTTP tests.
package servicetest

import (
	"context"
	"sync"

	"github.com/bookmate/bookmate/internal/app/domain/tenant"
	"github.com/bookmate/bookmate/internal/app/services/tenants"
	"github.com/bookmate/bookmate/internal/appsscript"
	"github.com/bookmate/bookmate/internal/sheets"
)

// Webhook is a scripted tenants.Webhook that counts calls per action.
type Webhook struct {
	mu    sync.Mutex
	calls map[appsscript.Action]int

	PnL         *appsscript.PnLReport
	Inbox       []appsscript.InboxEntry
	Summary     []appsscript.AccountSummary
	Latest      []appsscript.LatestBalance
	Shares      []appsscript.CategoryShare
	Ranges      []appsscript.NamedRange
	Appended    []appsscript.BalanceSnapshot
	Synced      []appsscript.AccountOpening
	Deleted     []int
	Err         map[appsscript.Action]error
	PeriodsSeen []appsscript.Period
}

var _ tenants.Webhook = (*Webhook)(nil)

// NewWebhook returns an empty fake.
func NewWebhook() *Webhook {
	return &Webhook{calls: map[appsscript.Action]int{}, Err: map[appsscript.Action]error{}}
}

// Factory returns a tenants.Factory that always hands out w.
func (w *Webhook) Factory() tenants.Factory {
	return func(tenant.Tenant) (tenants.Webhook, error) { return w, nil }
}

// Calls reports how often action was invoked.
func (w *Webhook) Calls(action appsscript.Action) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[action]
}

// Fail makes action return err.
func (w *Webhook) Fail(action appsscript.Action, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Err[action] = err
}

func (w *Webhook) hit(action appsscript.Action) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls[action]++
	return w.Err[action]
}

func (w *Webhook) GetPnL(context.Context) (*appsscript.PnLReport, error) {
	if err := w.hit(appsscript.ActionGetPnL); err != nil {
		return nil, err
	}
	if w.PnL == nil {
		return &appsscript.PnLReport{}, nil
	}
	cp := *w.PnL
	return &cp, nil
}

func (w *Webhook) GetInbox(context.Context) ([]appsscript.InboxEntry, error) {
	if err := w.hit(appsscript.ActionGetInbox); err != nil {
		return nil, err
	}
	return w.Inbox, nil
}

func (w *Webhook) DeleteEntry(_ context.Context, row int) error {
	if err := w.hit(appsscript.ActionDeleteEntry); err != nil {
		return err
	}
	w.mu.Lock()
	w.Deleted = append(w.Deleted, row)
	w.mu.Unlock()
	return nil
}

func (w *Webhook) BalancesAppend(_ context.Context, snap appsscript.BalanceSnapshot) error {
	if err := w.hit(appsscript.ActionBalancesAppend); err != nil {
		return err
	}
	w.mu.Lock()
	w.Appended = append(w.Appended, snap)
	w.mu.Unlock()
	return nil
}

func (w *Webhook) BalancesGetLatest(context.Context) ([]appsscript.LatestBalance, error) {
	if err := w.hit(appsscript.ActionBalancesGetLatest); err != nil {
		return nil, err
	}
	return w.Latest, nil
}

func (w *Webhook) BalanceGetSummary(context.Context) ([]appsscript.AccountSummary, error) {
	if err := w.hit(appsscript.ActionBalanceGetSummary); err != nil {
		return nil, err
	}
	return w.Summary, nil
}

func (w *Webhook) AccountsSync(_ context.Context, accounts []appsscript.AccountOpening) (int, error) {
	if err := w.hit(appsscript.ActionAccountsSync); err != nil {
		return 0, err
	}
	w.mu.Lock()
	w.Synced = append(w.Synced, accounts...)
	w.mu.Unlock()
	return len(accounts), nil
}

func (w *Webhook) GetPropertyPersonDetails(_ context.Context, period appsscript.Period) ([]appsscript.CategoryShare, error) {
	return w.shares(appsscript.ActionGetPropertyPersonDetails, period)
}

func (w *Webhook) GetOverheadExpensesDetails(_ context.Context, period appsscript.Period) ([]appsscript.CategoryShare, error) {
	return w.shares(appsscript.ActionGetOverheadExpensesDetails, period)
}

func (w *Webhook) shares(action appsscript.Action, period appsscript.Period) ([]appsscript.CategoryShare, error) {
	if err := w.hit(action); err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.PeriodsSeen = append(w.PeriodsSeen, period)
	w.mu.Unlock()
	return w.Shares, nil
}

func (w *Webhook) ListNamedRanges(context.Context) ([]appsscript.NamedRange, error) {
	if err := w.hit(appsscript.ActionListNamedRanges); err != nil {
		return nil, err
	}
	return w.Ranges, nil
}

// Sheets serves fixed values per A1 range.
type Sheets struct {
	mu       sync.Mutex
	Values   map[string][][]interface{}
	Formulas map[string][][]interface{}
	Named    []sheets.NamedRange
	Titles   []string
	Written  []sheets.CellUpdate
	Err      error
	Reads    int
}

var _ sheets.ReadWriter = (*Sheets)(nil)

// NewSheets returns an empty fake.
func NewSheets() *Sheets {
	return &Sheets{Values: map[string][][]interface{}{}, Formulas: map[string][][]interface{}{}}
}

func (s *Sheets) ReadRange(_ context.Context, _ string, a1 string) ([][]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Values[a1], nil
}

func (s *Sheets) ReadFormulas(_ context.Context, _ string, a1 string) ([][]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Formulas[a1], nil
}

// BatchRead counts as a single read.
func (s *Sheets) BatchRead(_ context.Context, _ string, ranges []string) ([][][]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([][][]interface{}, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, s.Values[r])
	}
	return out, nil
}

func (s *Sheets) NamedRanges(context.Context, string) ([]sheets.NamedRange, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Named, nil
}

func (s *Sheets) SheetTitles(context.Context, string) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Titles, nil
}

func (s *Sheets) WriteRange(_ context.Context, _ string, a1 string, values [][]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Written = append(s.Written, sheets.CellUpdate{Range: a1, Values: values})
	return nil
}

func (s *Sheets) BatchWrite(_ context.Context, _ string, updates []sheets.CellUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Written = append(s.Written, updates...)
	return nil
}
