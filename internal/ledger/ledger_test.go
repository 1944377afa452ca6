package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmate/bookmate/internal/money"
)

// row builds a Data row: day, month, year, property, operation, payment, detail, ref, debit, credit.
func row(cells ...interface{}) []interface{} { return cells }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleRows() [][]interface{} {
	return [][]interface{}{
		row("5", "Jan", "2026", "Villa 1", "Revenue - Rooms", "Bank A", "booking", "", "10,000.00", ""),
		row("10", "2", "2026", "Villa 1", "Revenue - Rooms", "Bank A", "booking", "", "5,000", ""),
		row("11", "February", "2026", "Villa 1", "Revenue - Rooms", "Bank A", "refund", "", "", "500"),
		row("12", "Feb", "2026", "Villa 2", "EXP - Cleaning", "Cash", "", "", "", "800"),
		row("13", "Feb", "2026", "Company", "EXP - Utilities", "Bank A", "", "", "", "1,200"),
		row("14", "Feb", "2026", "", "EXP - Salaries", "Bank A", "", "", "", "2,000"),
		row("15", "Feb", "2026", "", "Transfer", "Bank A", "to cash", "T1", "", "1,000"),
		row("15", "Feb", "2026", "", "Transfer", "Cash", "from bank", "T1", "1,000", ""),
		row("1", "Mar", "2026", "Villa 1", "Revenue - Rooms", "Bank A", "later", "", "9,999", ""),
		row("", "", "", "", "", "", "", "", "", ""),
		row("20", "Dec", "2025", "Villa 1", "Revenue - Rooms", "Bank A", "last year", "", "3,000", ""),
	}
}

func TestParseMonth(t *testing.T) {
	for in, want := range map[string]time.Month{"1": time.January, "01": time.January, "12": time.December, "Jan": time.January, "september": time.September, "Sept.": time.September} {
		got, err := ParseMonth(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "0", "13", "Janu", "x"} {
		_, err := ParseMonth(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTransactionsReportsIssues(t *testing.T) {
	rows := [][]interface{}{
		row("5", "Jan", "2026", "", "Revenue", "Bank A", "", "", "100", ""),
		row("31", "Feb", "2026", "", "Revenue", "Bank A", "", "", "100", ""),
		row("3", "Foo", "2026", "", "Revenue", "Bank A", "", "", "100", ""),
		row("3", "Jan", "26", "", "Revenue", "Bank A", "", "", "lots", ""),
		row(""),
		row("4", "Jan", "2026", "", "", "Bank A", "", "", "1", ""),
		row("6", "Jan", "2026", "", "EXP - Fuel", "Bank A"),
	}
	txs, issues := ParseTransactions(rows, DefaultLayout())

	require.Len(t, txs, 2)
	assert.Equal(t, 2, txs[0].Row)
	assert.Equal(t, 8, txs[1].Row)
	assert.True(t, txs[1].Debit.IsZero())

	byRow := map[int]RowIssue{}
	for _, is := range issues {
		byRow[is.Row] = is
	}
	assert.Equal(t, "A", byRow[3].Column)
	assert.Equal(t, "B", byRow[4].Column)
	assert.Equal(t, "I", byRow[5].Column)
	assert.Equal(t, "lots", byRow[5].Value)
	assert.Equal(t, "E", byRow[7].Column)
	_, blankReported := byRow[6]
	assert.False(t, blankReported)
}

func TestClassify(t *testing.T) {
	l := DefaultLayout()
	assert.Equal(t, KindRevenue, l.Classify("Revenue - Rooms"))
	assert.Equal(t, KindRevenue, l.Classify("revenue"))
	assert.Equal(t, KindExpense, l.Classify("EXP - Utilities"))
	assert.Equal(t, KindTransfer, l.Classify("Transfer"))
	assert.Equal(t, KindTransfer, l.Classify("transfer to savings"))
	assert.Equal(t, KindOther, l.Classify("Owner drawings"))
	assert.Equal(t, "expense", KindExpense.String())

	assert.True(t, l.IsPropertyPerson(Transaction{Property: "Villa 1"}))
	assert.False(t, l.IsPropertyPerson(Transaction{Property: " company "}))
	assert.False(t, l.IsPropertyPerson(Transaction{Property: ""}))
}

func TestAggregatePnL(t *testing.T) {
	l := DefaultLayout()
	txs, issues := ParseTransactions(sampleRows(), l)
	require.Empty(t, issues)

	p := AggregatePnL(txs, 2026, time.February, l)
	m := p.MonthOnly

	// refund nets out of revenue
	assert.Equal(t, "4500", m.Revenue.String())
	assert.Equal(t, "800", m.PropertyPersonExpense.String())
	assert.Equal(t, "3200", m.Overheads.String())
	assert.True(t, m.GOP.Equal(m.Revenue.Sub(m.PropertyPersonExpense.Decimal)))
	assert.True(t, m.EBITDA.Equal(m.GOP.Sub(m.Overheads.Decimal)))
	assert.Equal(t, "500", m.EBITDA.String())

	// year to date includes January, excludes March and last year
	y := p.YearToDate
	assert.Equal(t, "14500", y.Revenue.String())
	assert.Equal(t, "10500", y.EBITDA.String())

	require.Len(t, m.OverheadsByCategory, 2)
	assert.Equal(t, "EXP - Salaries", m.OverheadsByCategory[0].Name)
	assert.Equal(t, 62.5, m.OverheadsByCategory[0].Percentage)
	assert.Equal(t, 37.5, m.OverheadsByCategory[1].Percentage)
	require.Len(t, m.PropertyPersonByName, 1)
	assert.Equal(t, "Villa 2", m.PropertyPersonByName[0].Name)
	assert.Equal(t, 100.0, m.PropertyPersonByName[0].Percentage)
}

func TestAggregatePnLEmptyMonth(t *testing.T) {
	p := AggregatePnL(nil, 2026, time.June, DefaultLayout())
	assert.True(t, p.MonthOnly.EBITDA.IsZero())
	assert.Empty(t, p.MonthOnly.OverheadsByCategory)
}

func TestComputeBalances(t *testing.T) {
	l := DefaultLayout()
	txs, _ := ParseTransactions(sampleRows(), l)
	openings := map[string]decimal.Decimal{"bank  a": dec("1000"), "Savings": dec("250.50")}

	got := ComputeBalances(txs, openings)
	require.Len(t, got, 3)

	byName := map[string]AccountBalance{}
	for _, b := range got {
		byName[NormalizeName(b.Account)] = b
	}
	bank := byName["bank a"]
	assert.Equal(t, "1000", bank.Opening.String())
	assert.Equal(t, "27999", bank.Inflow.String())
	assert.Equal(t, "4700", bank.Outflow.String())
	assert.Equal(t, "24299", bank.Balance.String())
	assert.Equal(t, "2026-03-01", bank.LastTxnDate)

	cash := byName["cash"]
	assert.Equal(t, "200", cash.Balance.String())

	savings := byName["savings"]
	assert.Equal(t, "250.5", savings.Balance.String())
	assert.Equal(t, 0, savings.Transactions)
}

func TestCheckTransfers(t *testing.T) {
	l := DefaultLayout()
	txs, _ := ParseTransactions(sampleRows(), l)
	check := CheckTransfers(txs, l, dec("0.01"))
	assert.True(t, check.Balanced)
	assert.Equal(t, 2, check.Rows)
	assert.Empty(t, check.Unmatched)

	txs = append(txs, Transaction{Row: 99, Date: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), Operation: "Transfer", Payment: "Bank A", Credit: dec("300")})
	check = CheckTransfers(txs, l, dec("0.01"))
	assert.False(t, check.Balanced)
	assert.Equal(t, "-300", check.Difference.String())
	require.Len(t, check.Unmatched, 1)
	assert.Equal(t, []int{99}, check.Unmatched[0].Rows)
}

func TestReconcileBalances(t *testing.T) {
	computed := []AccountBalance{
		{Account: "Bank A", Balance: amt("1000.00")},
		{Account: "Cash", Balance: amt("50")},
		{Account: "Card", Balance: amt("10")},
		{Account: "Wallet", Balance: amt("5")},
	}
	reported := []ReportedBalance{
		{Account: "  bank   a ", Balance: dec("1000.01")},
		{Account: "CASH", Balance: dec("49.98")},
		{Account: "Card", Balance: dec("10")},
		{Account: "Savings", Balance: dec("7")},
	}
	rep := ReconcileBalances(computed, reported, dec("0.01"))
	require.Len(t, rep.Lines, 5)
	status := map[string]BalanceStatus{}
	for _, line := range rep.Lines {
		status[NormalizeName(line.Account)] = line.Status
	}
	// exactly at the tolerance boundary is ok
	assert.Equal(t, StatusOK, status["bank a"])
	assert.Equal(t, StatusDrift, status["cash"])
	assert.Equal(t, StatusOK, status["card"])
	assert.Equal(t, StatusMissingReported, status["wallet"])
	assert.Equal(t, StatusMissingComputed, status["savings"])
	assert.Equal(t, "0.03", rep.TotalDrift.String())
	assert.False(t, rep.OK)
}

func TestVerifyPnL(t *testing.T) {
	computed := ComputeTotals(dec("100"), dec("20"), dec("30"))
	reported := ComputeTotals(dec("100"), dec("25"), dec("30"))
	drifts := VerifyPnL("month", computed, reported, dec("0.01"))
	require.Len(t, drifts, 5)
	ok := map[string]bool{}
	for _, d := range drifts {
		ok[d.Metric] = d.OK
	}
	assert.True(t, ok["revenue"])
	assert.False(t, ok["overheads"])
	assert.True(t, ok["gop"])
	assert.False(t, ok["ebitda"])
	assert.Equal(t, "10", TotalPnLDrift(drifts).String())
}

func TestParseReportedBalances(t *testing.T) {
	rows := [][]interface{}{
		{"Bank A", "1,000", "200", "1,200"},
		{"", "", "", ""},
		{"Cash", "50", "", "(10)"},
		{"Broken", "x", "", "1"},
	}
	reported, openings, issues := ParseReportedBalances(rows, DefaultLayout())
	require.Len(t, reported, 2)
	assert.Equal(t, "-10", reported[1].Balance.String())
	assert.Equal(t, "1000", openings["Bank A"].String())
	require.Len(t, issues, 1)
	assert.Equal(t, 5, issues[0].Row)
}

func TestLayoutRangesAndLoad(t *testing.T) {
	l := DefaultLayout()
	require.NoError(t, l.Validate())
	assert.Equal(t, "Data!A2:J", l.DataRange())
	assert.Equal(t, []string{"Lists!A2:A", "Lists!B2:B", "Lists!C2:C"}, l.ListRanges())
	assert.Equal(t, "'Balance Summary'!A2:D", l.BalanceRange())

	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_sheet: Ledger\ncompany_label: HQ\ncolumns:\n  credit: K\n"), 0o600))
	loaded, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, "Ledger", loaded.DataSheet)
	assert.Equal(t, "HQ", loaded.CompanyLabel)
	assert.Equal(t, "K", loaded.Columns.Credit)
	assert.Equal(t, "A", loaded.Columns.Day)
	assert.Equal(t, "Ledger!A2:K", loaded.DataRange())

	require.NoError(t, os.WriteFile(path, []byte("columns:\n  day: '1'\n"), 0o600))
	_, err = LoadLayout(path)
	assert.Error(t, err)

	def, err := LoadLayoutOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "Data", def.DataSheet)
}

func TestParseLists(t *testing.T) {
	columns := [][][]interface{}{
		{{"Revenue - Rooms"}, {"EXP - Utilities"}, {"# header"}},
		{{"Villa 1"}, {}, {"Villa 1"}},
		{{"Bank A"}, {"Cash"}},
	}
	lists := ParseLists(columns)
	assert.Equal(t, []string{"Revenue - Rooms", "EXP - Utilities"}, lists.Operations)
	assert.Equal(t, []string{"Villa 1"}, lists.Properties)
	assert.Equal(t, []string{"Bank A", "Cash"}, lists.Payments)

	assert.Equal(t, []string{}, ParseLists(columns[:1]).Payments)
}

func TestLastDataRow(t *testing.T) {
	rows := [][]interface{}{{"a"}, {}, {"b"}, {"", ""}}
	assert.Equal(t, 4, LastDataRow(rows, 2))
	assert.Equal(t, 0, LastDataRow(nil, 2))
}

func amt(s string) money.Amount { return money.NewAmount(dec(s)) }
