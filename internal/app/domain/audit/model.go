package audit

import "time"

// Entry records a state-changing action.
type Entry struct {
	ID        int64                  `json:"id"`
	TenantID  string                 `json:"tenant_id"`
	Actor     string                 `json:"actor"`
	Action    string                 `json:"action"`
	Target    string                 `json:"target,omitempty"`
	Status    string                 `json:"status"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)
