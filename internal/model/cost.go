package model

import (
	"fmt"
	"time"
)

// CostRecord is an immutable daily cost fact for one service/category bucket of an account.
// Several rows may share an account-day; they are always summed.
type CostRecord struct {
	ID            string    `json:"id" db:"id"`
	AccountID     string    `json:"account_id" db:"account_id"`
	Date          time.Time `json:"date" db:"date"`
	Category      Category  `json:"category" db:"category"`
	Service       string    `json:"service" db:"service"`
	Cost          float64   `json:"cost" db:"cost"`
	Currency      Currency  `json:"currency" db:"currency"`
	UsageQuantity float64   `json:"usage_quantity" db:"usage_quantity"`
	UsageUnit     string    `json:"usage_unit,omitempty" db:"usage_unit"`
	SourceKey     string    `json:"source_key,omitempty" db:"source_key"`
}

// Validate checks a record supplied for ingestion.
func (c CostRecord) Validate() error {
	if c.AccountID == "" {
		return NewInputError("account_id", "", "is required")
	}
	if c.Date.IsZero() {
		return NewInputError("date", "", "is required")
	}
	if !c.Category.Valid() {
		return NewInputError("category", string(c.Category), "must be one of compute, storage, network, database, other")
	}
	if c.Cost < 0 {
		return NewInputError("cost", fmt.Sprint(c.Cost), "must not be negative")
	}
	return nil
}

// CostFilter narrows a cost record listing.
type CostFilter struct {
	AccountID string
	Category  Category
}

// DailyCost is one row of the per-day, per-category cost matrix.
type DailyCost struct {
	Date       string               `json:"date"`
	ByCategory map[Category]float64 `json:"by_category"`
	Total      float64              `json:"total"`
}

// ServiceCost is a per-service total.
type ServiceCost struct {
	Service  string   `json:"service"`
	Category Category `json:"category"`
	Cost     float64  `json:"cost"`
}

// CategoryCost is a per-category total.
type CategoryCost struct {
	Category Category `json:"category"`
	Cost     float64  `json:"cost"`
}

// CostBreakdown is the presentation form of an aggregated cost window.
type CostBreakdown struct {
	Start        string         `json:"start"`
	End          string         `json:"end"`
	Categories   []Category     `json:"categories"`
	Timeline     []DailyCost    `json:"timeline"`
	Granularity  Granularity    `json:"granularity"`
	Periods      []PeriodCost   `json:"periods,omitempty"`
	ByService    []ServiceCost  `json:"by_service"`
	ByCategory   []CategoryCost `json:"by_category"`
	Total        float64        `json:"total"`
	AvgDailyCost float64        `json:"avg_daily_cost"`
	TrendPercent string         `json:"trend_percent"`
	Currency     Currency       `json:"currency"`
}
