package appsscript

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmate/bookmate/internal/money"
)

// fixedServer answers every request with body and records the last request payload.
func fixedServer(t *testing.T, body string, last *map[string]interface{}) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if last != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, last)
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL, Secret: "s"})
	require.NoError(t, err)
	return c
}

func TestActionIdempotency(t *testing.T) {
	for _, a := range []Action{ActionDeleteEntry, ActionBalancesAppend, ActionAccountsSync} {
		assert.False(t, a.Idempotent(), a)
	}
	for _, a := range []Action{ActionGetInbox, ActionGetPnL, ActionBalancesGetLatest, ActionListNamedRanges} {
		assert.True(t, a.Idempotent(), a)
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodMonth, p)
	p, err = ParsePeriod(" YEAR ")
	require.NoError(t, err)
	assert.Equal(t, PeriodYear, p)
	_, err = ParsePeriod("quarter")
	assert.Error(t, err)
}

func TestGetPnLAcceptsStringAndNumberAmounts(t *testing.T) {
	c := fixedServer(t, `{"ok":true,"data":{
		"month":{"revenue":"฿1,200.50","overheads":300,"propertyPersonExpense":"(100)","gop":1100.5,"ebitda":"800.50"},
		"year":{"revenue":5000,"overheads":null,"propertyPersonExpense":0,"gop":5000,"ebitda":5000},
		"updatedAt":"2026-10-01T00:00:00Z"}}`, nil)

	report, err := c.GetPnL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1200.5", report.Month.Revenue.String())
	assert.Equal(t, "-100", report.Month.PropertyPersonExpense.String())
	assert.Equal(t, "800.5", report.Month.EBITDA.String())
	assert.True(t, report.Year.Overheads.IsZero())
	assert.Equal(t, "2026-10-01T00:00:00Z", report.UpdatedAt)
}

func TestGetInboxWrappedAndBareLists(t *testing.T) {
	bodies := []string{
		`{"ok":true,"data":{"entries":[{"rowNumber":7,"day":"3","month":"Oct","year":"2026","property":"Villa 1","typeOfOperation":"EXP - Utilities","typeOfPayment":"Bank A","detail":"power","ref":"","debit":"","credit":"1,500"}]}}`,
		`{"ok":true,"data":[{"rowNumber":7,"day":"3","month":"Oct","year":"2026","property":"Villa 1","typeOfOperation":"EXP - Utilities","typeOfPayment":"Bank A","detail":"power","debit":0,"credit":1500}]}`,
	}
	for _, body := range bodies {
		c := fixedServer(t, body, nil)
		entries, err := c.GetInbox(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, 7, entries[0].RowNumber)
		assert.Equal(t, "EXP - Utilities", entries[0].TypeOfOperation)
		assert.Equal(t, "1500", entries[0].Credit.String())
		assert.True(t, entries[0].Debit.IsZero())
	}
}

func TestGetInboxRejectsGarbageAmount(t *testing.T) {
	c := fixedServer(t, `{"ok":true,"data":[{"rowNumber":4,"credit":"lots"}]}`, nil)
	_, err := c.GetInbox(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 4")
}

func TestDeleteEntryValidatesRow(t *testing.T) {
	c := fixedServer(t, `{"ok":true}`, nil)
	assert.Error(t, c.DeleteEntry(context.Background(), 1))

	var sent map[string]interface{}
	c = fixedServer(t, `{"ok":true}`, &sent)
	require.NoError(t, c.DeleteEntry(context.Background(), 9))
	assert.Equal(t, "deleteEntry", sent["action"])
	assert.EqualValues(t, 9, sent["rowNumber"])
}

func TestBalancesAppendPayload(t *testing.T) {
	var sent map[string]interface{}
	c := fixedServer(t, `{"ok":true}`, &sent)

	ts := time.Date(2026, 10, 2, 9, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	amt, err := parseAmount("12,345.67")
	require.NoError(t, err)
	err = c.BalancesAppend(context.Background(), BalanceSnapshot{Timestamp: ts, BankName: " Bank A ", Balance: amt, Note: "eom"})
	require.NoError(t, err)

	assert.Equal(t, "2026-10-02T02:30:00Z", sent["timestamp"])
	assert.Equal(t, "Bank A", sent["bankName"])
	assert.InDelta(t, 12345.67, sent["balance"], 0.001)
	assert.Equal(t, "eom", sent["note"])

	assert.Error(t, c.BalancesAppend(context.Background(), BalanceSnapshot{BankName: "  "}))
}

func TestBalancesAppendSendsExactAmount(t *testing.T) {
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL, Secret: "s"})
	require.NoError(t, err)

	amt, err := parseAmount("1234567890123.45")
	require.NoError(t, err)
	require.NoError(t, c.BalancesAppend(context.Background(), BalanceSnapshot{BankName: "Bank A", Balance: amt}))
	assert.Contains(t, string(raw), `"balance":1234567890123.45`)
}

func TestBalanceGetSummary(t *testing.T) {
	c := fixedServer(t, `{"ok":true,"data":{"accounts":[
		{"accountName":"Bank A","openingBalance":"1,000","netChange":250.25,"currentBalance":"1250.25","lastTxnAt":"2026-10-01"}]}}`, nil)
	rows, err := c.BalanceGetSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1000", rows[0].OpeningBalance.String())
	assert.Equal(t, "1250.25", rows[0].CurrentBalance.String())
	assert.Equal(t, "2026-10-01", rows[0].LastTxnAt)
}

func TestAccountsSync(t *testing.T) {
	var sent map[string]interface{}
	c := fixedServer(t, `{"ok":true,"data":{"synced":2}}`, &sent)

	_, err := c.AccountsSync(context.Background(), nil)
	assert.Error(t, err)

	opening, err := parseAmount("500")
	require.NoError(t, err)
	n, err := c.AccountsSync(context.Background(), []AccountOpening{
		{AccountName: "Bank A", OpeningBalance: opening},
		{AccountName: "Cash"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	accounts, ok := sent["accounts"].([]interface{})
	require.True(t, ok)
	assert.Len(t, accounts, 2)
}

func TestCategorySharesSendPeriod(t *testing.T) {
	var sent map[string]interface{}
	c := fixedServer(t, `{"ok":true,"data":{"items":[{"category":"Utilities","expense":"300","percentage":60},{"name":"Salaries","expense":200,"percentage":40}]}}`, &sent)

	items, err := c.GetOverheadExpensesDetails(context.Background(), PeriodYear)
	require.NoError(t, err)
	assert.Equal(t, "year", sent["period"])
	require.Len(t, items, 2)
	assert.Equal(t, "Utilities", items[0].Name)
	assert.Equal(t, "300", items[0].Expense.String())
	assert.Equal(t, 40.0, items[1].Percentage)
}

func TestListNamedRanges(t *testing.T) {
	c := fixedServer(t, `{"ok":true,"data":{"namedRanges":[{"name":"EBITDA_Month","range":"'P&L (DO NOT EDIT)'!N20"}]}}`, nil)
	ranges, err := c.ListNamedRanges(context.Background())
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, "EBITDA_Month", ranges[0].Name)
}

func parseAmount(s string) (money.Amount, error) {
	d, err := money.Parse(s)
	return money.NewAmount(d), err
}
