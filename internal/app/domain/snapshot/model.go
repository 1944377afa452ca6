package snapshot

import (
	"time"

	"github.com/bookmate/bookmate/internal/money"
)

// Snapshot is a bank balance as entered by a user at a point in time.
type Snapshot struct {
	ID        string       `json:"id" db:"id"`
	TenantID  string       `json:"tenant_id" db:"tenant_id"`
	BankName  string       `json:"bank_name" db:"bank_name"`
	Balance   money.Amount `json:"balance" db:"balance"`
	Note      string       `json:"note,omitempty" db:"note"`
	TakenAt   time.Time    `json:"taken_at" db:"taken_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
