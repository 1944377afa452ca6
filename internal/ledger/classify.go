package ledger

import "strings"

// Kind classifies a Type of Operation.
type Kind int

const (
	KindOther Kind = iota
	KindRevenue
	KindExpense
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindRevenue:
		return "revenue"
	case KindExpense:
		return "expense"
	case KindTransfer:
		return "transfer"
	default:
		return "other"
	}
}

// Classify maps an operation name to its kind by case-insensitive prefix.
func (l Layout) Classify(operation string) Kind {
	op := strings.ToLower(strings.TrimSpace(operation))
	switch {
	case hasPrefixFold(op, l.TransferPrefix):
		return KindTransfer
	case hasPrefixFold(op, l.RevenuePrefix):
		return KindRevenue
	case hasPrefixFold(op, l.ExpensePrefix):
		return KindExpense
	default:
		return KindOther
	}
}

// IsPropertyPerson reports whether an expense is attributed to a property or
// person rather than to company overheads.
func (l Layout) IsPropertyPerson(tx Transaction) bool {
	p := strings.TrimSpace(tx.Property)
	return p != "" && !strings.EqualFold(p, strings.TrimSpace(l.CompanyLabel))
}

func hasPrefixFold(lowered, prefix string) bool {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	return prefix != "" && strings.HasPrefix(lowered, prefix)
}
