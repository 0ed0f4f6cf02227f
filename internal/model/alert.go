package model

import "time"

// AlertType distinguishes a crossed threshold from an exhausted budget.
type AlertType string

const (
	AlertTypeThreshold AlertType = "threshold"
	AlertTypeExceeded  AlertType = "exceeded"
)

// BudgetAlert is raised once per account and period when month-to-date spend crosses the
// account's threshold percentage. Acknowledged never reverts to false.
type BudgetAlert struct {
	ID           string    `json:"id" db:"id"`
	AccountID    string    `json:"account_id" db:"account_id"`
	Period       string    `json:"period" db:"period"`
	AlertType    AlertType `json:"alert_type" db:"alert_type"`
	Threshold    float64   `json:"threshold" db:"threshold"`
	CurrentSpend float64   `json:"current_spend" db:"current_spend"`
	BudgetAmount float64   `json:"budget_amount" db:"budget_amount"`
	Message      string    `json:"message" db:"message"`
	Acknowledged bool      `json:"acknowledged" db:"acknowledged"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AlertFilter defines filtering options for alert queries.
type AlertFilter struct {
	AccountID      string
	Period         string
	Unacknowledged bool
	Limit          int
}
