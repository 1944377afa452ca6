package tenant

import "time"

// Tenant is one business with its own workbook and webhook deployment.
type Tenant struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	SpreadsheetID string    `json:"spreadsheet_id" db:"spreadsheet_id"`
	WebhookURL    string    `json:"webhook_url" db:"webhook_url"`
	WebhookSecret string    `json:"-" db:"webhook_secret"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
