package model

import "time"

// Trend is the direction of a cost prediction relative to its trailing base.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// CostPrediction is the projected cost of an account for a future month. Predictions are
// regenerated wholesale on every forecast pass.
type CostPrediction struct {
	ID                string             `json:"id" db:"id"`
	AccountID         string             `json:"account_id" db:"account_id"`
	Provider          CloudProvider      `json:"provider" db:"provider"`
	PredictionMonth   string             `json:"prediction_month" db:"prediction_month"`
	PredictedCost     float64            `json:"predicted_cost" db:"predicted_cost"`
	BaseCost          float64            `json:"base_cost" db:"base_cost"`
	Budget            *float64           `json:"budget,omitempty" db:"budget"`
	BudgetUtilization float64            `json:"budget_utilization" db:"budget_utilization"`
	OverBudget        bool               `json:"over_budget" db:"over_budget"`
	BudgetGap         float64            `json:"budget_gap" db:"budget_gap"`
	Confidence        float64            `json:"confidence" db:"confidence"`
	Trend             Trend              `json:"trend" db:"trend"`
	Factors           map[string]float64 `json:"factors" db:"factors"`
	GeneratedAt       time.Time          `json:"generated_at" db:"generated_at"`
}

// PredictionFilter defines filtering options for prediction queries.
type PredictionFilter struct {
	AccountID string
}

// ProviderRollup aggregates predictions for one provider.
type ProviderRollup struct {
	Count       int     `json:"count"`
	Predicted   float64 `json:"predicted"`
	Budget      float64 `json:"budget"`
	Utilization float64 `json:"utilization"`
}

// PredictionSummary rolls up a prediction list.
type PredictionSummary struct {
	TotalPredicted  float64                          `json:"total_predicted"`
	TotalBudget     float64                          `json:"total_budget"`
	OverBudgetCount int                              `json:"over_budget_count"`
	AvgConfidence   float64                          `json:"avg_confidence"`
	Trends          map[Trend]int                    `json:"trends"`
	ByProvider      map[CloudProvider]ProviderRollup `json:"by_provider"`
}

// DailyTrend is one day of an account's recent spend.
type DailyTrend struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

// PredictionReport is the presentation form of the current forecast.
type PredictionReport struct {
	Predictions []CostPrediction        `json:"predictions"`
	Summary     PredictionSummary       `json:"summary"`
	DailyTrends map[string][]DailyTrend `json:"daily_trends"`
}

// ForecastResult reports what a forecast pass did.
type ForecastResult struct {
	Accounts    int `json:"accounts"`
	Predictions int `json:"predictions"`
	Alerts      int `json:"alerts"`
	NewAlerts   int `json:"new_alerts"`
}
