package reconciliation

import (
	"time"

	"github.com/bookmate/bookmate/internal/ledger"
	"github.com/bookmate/bookmate/internal/money"
)

// Run statuses.
const (
	StatusOK    = "ok"
	StatusDrift = "drift"
	StatusError = "error"
)

// Triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Report sections, used as keys of Report.Errors.
const (
	SectionData      = "data"
	SectionBalances  = "balances"
	SectionPnL       = "pnl"
	SectionTransfers = "transfers"
)

// Report is the full outcome of one reconciliation.
type Report struct {
	Year      int                   `json:"year"`
	Month     int                   `json:"month"`
	Balances  *ledger.BalanceReport `json:"balances,omitempty"`
	Transfers *ledger.TransferCheck `json:"transfers,omitempty"`
	PnLDrifts []ledger.Drift        `json:"pnl_drifts,omitempty"`
	Issues    []ledger.RowIssue     `json:"issues,omitempty"`
	Errors    map[string]string     `json:"errors,omitempty"`
}

// Run is a stored reconciliation.
type Run struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	Trigger      string       `json:"trigger"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Status       string       `json:"status"`
	BalanceDrift money.Amount `json:"balance_drift"`
	PnLDrift     money.Amount `json:"pnl_drift"`
	Report       Report       `json:"report"`
}
