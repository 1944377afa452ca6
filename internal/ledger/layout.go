package ledger

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bookmate/bookmate/internal/sheets"
)

// DataColumns maps Data tab fields to column letters.
type DataColumns struct {
	Day       string `yaml:"day"`
	Month     string `yaml:"month"`
	Year      string `yaml:"year"`
	Property  string `yaml:"property"`
	Operation string `yaml:"operation"`
	Payment   string `yaml:"payment"`
	Detail    string `yaml:"detail"`
	Ref       string `yaml:"ref"`
	Debit     string `yaml:"debit"`
	Credit    string `yaml:"credit"`
}

// ListColumns maps the Lists tab.
type ListColumns struct {
	Operations string `yaml:"operations"`
	Properties string `yaml:"properties"`
	Payments   string `yaml:"payments"`
}

// BalanceColumns maps the Balance Summary tab.
type BalanceColumns struct {
	Account   string `yaml:"account"`
	Opening   string `yaml:"opening"`
	NetChange string `yaml:"net_change"`
	Current   string `yaml:"current"`
}

// Layout describes where things live in a tenant workbook.
type Layout struct {
	DataSheet    string      `yaml:"data_sheet"`
	DataStartRow int         `yaml:"data_start_row"`
	Columns      DataColumns `yaml:"columns"`

	ListsSheet    string      `yaml:"lists_sheet"`
	ListsStartRow int         `yaml:"lists_start_row"`
	Lists         ListColumns `yaml:"lists"`

	BalanceSheet    string         `yaml:"balance_sheet"`
	BalanceStartRow int            `yaml:"balance_start_row"`
	Balance         BalanceColumns `yaml:"balance"`

	PnLSheet    string   `yaml:"pnl_sheet"`
	NamedRanges []string `yaml:"named_ranges"`

	CompanyLabel   string `yaml:"company_label"`
	RevenuePrefix  string `yaml:"revenue_prefix"`
	ExpensePrefix  string `yaml:"expense_prefix"`
	TransferPrefix string `yaml:"transfer_prefix"`
}

// DefaultLayout returns the stock BookMate workbook layout.
func DefaultLayout() Layout {
	return Layout{
		DataSheet:    "Data",
		DataStartRow: 2,
		Columns: DataColumns{
			Day: "A", Month: "B", Year: "C", Property: "D", Operation: "E",
			Payment: "F", Detail: "G", Ref: "H", Debit: "I", Credit: "J",
		},
		ListsSheet:      "Lists",
		ListsStartRow:   2,
		Lists:           ListColumns{Operations: "A", Properties: "B", Payments: "C"},
		BalanceSheet:    "Balance Summary",
		BalanceStartRow: 2,
		Balance:         BalanceColumns{Account: "A", Opening: "B", NetChange: "C", Current: "D"},
		PnLSheet:        "P&L (DO NOT EDIT)",
		NamedRanges: []string{
			"Month_Total_Revenue", "Month_Total_Overheads", "Month_Property_Person_Expense",
			"Month_GOP", "Month_EBITDA",
			"Year_Total_Revenue", "Year_Total_Overheads", "Year_Property_Person_Expense",
			"Year_GOP", "Year_EBITDA",
		},
		CompanyLabel:   "Company",
		RevenuePrefix:  "Revenue",
		ExpensePrefix:  "EXP",
		TransferPrefix: "Transfer",
	}
}

// LoadLayout reads a YAML layout file. Fields absent from the file keep their defaults.
func LoadLayout(path string) (Layout, error) {
	layout := DefaultLayout()
	data, err := os.ReadFile(path)
	if err != nil {
		return layout, fmt.Errorf("failed to read layout: %w", err)
	}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return layout, fmt.Errorf("failed to parse layout: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return layout, err
	}
	return layout, nil
}

// LoadLayoutOrDefault returns the default layout when path is empty.
func LoadLayoutOrDefault(path string) (Layout, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultLayout(), nil
	}
	return LoadLayout(path)
}

// Validate checks sheet names, start rows and column letters.
func (l Layout) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"data_sheet": l.DataSheet, "lists_sheet": l.ListsSheet,
		"balance_sheet": l.BalanceSheet, "pnl_sheet": l.PnLSheet,
	} {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	for name, v := range map[string]int{
		"data_start_row": l.DataStartRow, "lists_start_row": l.ListsStartRow,
		"balance_start_row": l.BalanceStartRow,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be >= 1", name))
		}
	}
	cols := map[string]string{
		"columns.day": l.Columns.Day, "columns.month": l.Columns.Month, "columns.year": l.Columns.Year,
		"columns.property": l.Columns.Property, "columns.operation": l.Columns.Operation,
		"columns.payment": l.Columns.Payment, "columns.detail": l.Columns.Detail,
		"columns.ref": l.Columns.Ref, "columns.debit": l.Columns.Debit, "columns.credit": l.Columns.Credit,
		"lists.operations": l.Lists.Operations, "lists.properties": l.Lists.Properties,
		"lists.payments":  l.Lists.Payments,
		"balance.account": l.Balance.Account, "balance.opening": l.Balance.Opening,
		"balance.net_change": l.Balance.NetChange, "balance.current": l.Balance.Current,
	}
	for name, v := range cols {
		if _, err := sheets.ColumnIndex(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid layout: %w", errors.Join(errs...))
	}
	return nil
}

// col returns the zero-based index of a validated column letter.
func col(letters string) int {
	n, err := sheets.ColumnIndex(letters)
	if err != nil {
		return -1
	}
	return n - 1
}

func (c DataColumns) last() int {
	last := 0
	for _, v := range []string{c.Day, c.Month, c.Year, c.Property, c.Operation, c.Payment, c.Detail, c.Ref, c.Debit, c.Credit} {
		if i := col(v); i > last {
			last = i
		}
	}
	return last
}

// DataRange is the A1 range holding every Data row, open-ended downwards.
func (l Layout) DataRange() string {
	return sheets.A1(l.DataSheet, fmt.Sprintf("A%d:%s", l.DataStartRow, sheets.ColumnLetters(l.Columns.last()+1)))
}

// ListRanges returns one open-ended column range per list, in the order
// operations, properties, payments.
func (l Layout) ListRanges() []string {
	out := make([]string, 0, 3)
	for _, c := range []string{l.Lists.Operations, l.Lists.Properties, l.Lists.Payments} {
		out = append(out, sheets.A1(l.ListsSheet, fmt.Sprintf("%s%d:%s", c, l.ListsStartRow, c)))
	}
	return out
}

// BalanceRange covers the Balance Summary rows.
func (l Layout) BalanceRange() string {
	last := 0
	for _, v := range []string{l.Balance.Account, l.Balance.Opening, l.Balance.NetChange, l.Balance.Current} {
		if i := col(v); i > last {
			last = i
		}
	}
	return sheets.A1(l.BalanceSheet, fmt.Sprintf("A%d:%s", l.BalanceStartRow, sheets.ColumnLetters(last+1)))
}

// Lists holds the dropdown sources of the Lists tab.
type Lists struct {
	Operations []string `json:"operations"`
	Properties []string `json:"properties"`
	Payments   []string `json:"payments"`
}

// ParseLists builds Lists from the column reads of ListRanges.
func ParseLists(columns [][][]interface{}) Lists {
	at := func(i int) []string {
		if i >= len(columns) {
			return []string{}
		}
		return nonNil(sheets.Column(columns[i], 0))
	}
	return Lists{Operations: at(0), Properties: at(1), Payments: at(2)}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func cellAt(row []interface{}, letters string) string {
	return sheets.Cell(row, col(letters))
}
