package model

import "time"

// AccountStatus represents the lifecycle of a cloud account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

// CloudAccount is a billing account tracked by the pipeline. It is read-only to the analytics.
type CloudAccount struct {
	ID             string        `json:"id" db:"id" mapstructure:"id"`
	Provider       CloudProvider `json:"provider" db:"provider" mapstructure:"provider"`
	AccountID      string        `json:"account_id" db:"account_id" mapstructure:"account_id"`
	Name           string        `json:"name" db:"name" mapstructure:"name"`
	Region         string        `json:"region" db:"region" mapstructure:"region"`
	MonthlyBudget  *float64      `json:"monthly_budget,omitempty" db:"monthly_budget" mapstructure:"monthly_budget"`
	AlertThreshold float64       `json:"alert_threshold" db:"alert_threshold" mapstructure:"alert_threshold"`
	Status         AccountStatus `json:"status" db:"status" mapstructure:"status"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at" mapstructure:"-"`
}

// Budget returns the configured monthly budget, or 0 when none is set.
func (a CloudAccount) Budget() float64 {
	if a.MonthlyBudget == nil {
		return 0
	}
	return *a.MonthlyBudget
}

// AccountFilter defines filtering options for account queries.
type AccountFilter struct {
	IDs      []string
	Provider CloudProvider
	Status   AccountStatus
}
