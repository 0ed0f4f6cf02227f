package model

// SpendComparison compares this month's spend to last month's.
type SpendComparison struct {
	ThisMonth     float64 `json:"this_month"`
	LastMonth     float64 `json:"last_month"`
	ChangePercent float64 `json:"change_percent"`
}

// ResourceCounts summarizes the inventory.
type ResourceCounts struct {
	Total   int `json:"total"`
	Running int `json:"running"`
}

// Dashboard is the combined overview of all analytics outputs.
type Dashboard struct {
	Spend       SpendComparison           `json:"spend"`
	Resources   ResourceCounts            `json:"resources"`
	Waste       map[Severity]Bucket       `json:"waste"`
	WasteTotal  Bucket                    `json:"waste_total"`
	Idle        map[IdleStatus]IdleBucket `json:"idle"`
	Alerts      []BudgetAlert             `json:"alerts"`
	RecentCosts []DailyTrend              `json:"recent_costs"`
}
