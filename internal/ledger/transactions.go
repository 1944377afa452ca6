// Package ledger turns raw Data rows into P&L figures, account balances and
// reconciliation reports.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bookmate/bookmate/internal/money"
	"github.com/bookmate/bookmate/internal/sheets"
)

// Transaction is one parsed Data row. Debit is money received into the
// payment account, Credit is money paid out of it.
type Transaction struct {
	Row       int
	Date      time.Time
	Property  string
	Operation string
	Payment   string
	Detail    string
	Ref       string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// RowIssue describes a Data row that could not be used.
type RowIssue struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// ParseMonth accepts 1-12 (optionally zero padded) or an English month name
// or abbreviation.
func ParseMonth(s string) (time.Month, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, fmt.Errorf("month out of range")
		}
		return time.Month(n), nil
	}
	if m, ok := monthNames[strings.TrimSuffix(s, ".")]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("unknown month")
}

func parseYear(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if n >= 0 && n < 100 {
		n += 2000
	}
	if n < 1900 || n > 9999 {
		return 0, fmt.Errorf("year out of range")
	}
	return n, nil
}

// ParseTransactions converts raw Data rows (starting at layout.DataStartRow)
// into transactions. Blank rows are skipped; rows with bad dates or amounts
// are reported as issues and excluded.
func ParseTransactions(rows [][]interface{}, layout Layout) ([]Transaction, []RowIssue) {
	c := layout.Columns
	var (
		txs    []Transaction
		issues []RowIssue
	)
	for i, row := range rows {
		if sheets.BlankRow(row) {
			continue
		}
		rowNum := layout.DataStartRow + i
		get := func(letters string) string { return sheets.Cell(row, col(letters)) }

		var rowIssues []RowIssue
		report := func(column, value, reason string) {
			rowIssues = append(rowIssues, RowIssue{Row: rowNum, Column: column, Value: value, Reason: reason})
		}

		dayRaw, monthRaw, yearRaw := get(c.Day), get(c.Month), get(c.Year)
		day, err := strconv.Atoi(dayRaw)
		if err != nil || day < 1 || day > 31 {
			report(c.Day, dayRaw, "invalid day")
		}
		month, err := ParseMonth(monthRaw)
		if err != nil {
			report(c.Month, monthRaw, err.Error())
		}
		year, err := parseYear(yearRaw)
		if err != nil {
			report(c.Year, yearRaw, err.Error())
		}

		var date time.Time
		if len(rowIssues) == 0 {
			date = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
			if date.Day() != day {
				report(c.Day, dayRaw, fmt.Sprintf("%s has no day %d", month, day))
			}
		}

		debitRaw, creditRaw := get(c.Debit), get(c.Credit)
		debit, err := money.Parse(debitRaw)
		if err != nil {
			report(c.Debit, debitRaw, "invalid amount")
		}
		credit, err := money.Parse(creditRaw)
		if err != nil {
			report(c.Credit, creditRaw, "invalid amount")
		}

		operation := get(c.Operation)
		if operation == "" {
			report(c.Operation, "", "missing type of operation")
		}

		if len(rowIssues) > 0 {
			issues = append(issues, rowIssues...)
			continue
		}
		txs = append(txs, Transaction{
			Row:       rowNum,
			Date:      date,
			Property:  get(c.Property),
			Operation: operation,
			Payment:   get(c.Payment),
			Detail:    get(c.Detail),
			Ref:       get(c.Ref),
			Debit:     debit,
			Credit:    credit,
		})
	}
	return txs, issues
}

// LastDataRow returns the sheet row number of the last non-blank row, or 0
// when there are no rows.
func LastDataRow(rows [][]interface{}, startRow int) int {
	for i := len(rows) - 1; i >= 0; i-- {
		if !sheets.BlankRow(rows[i]) {
			return startRow + i
		}
	}
	return 0
}
