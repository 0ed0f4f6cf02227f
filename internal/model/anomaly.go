package model

import "strings"

// Granularity is the bucket size of a cost timeline.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity validates a caller-supplied granularity. Empty input means daily.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(s)); g {
	case "", GranularityDay:
		return GranularityDay, nil
	case GranularityWeek, GranularityMonth:
		return g, nil
	}
	return "", NewInputError("granularity", s, "must be one of day, week, month")
}

// PeriodCost is one bucket of a weekly or monthly rollup. Start and End are clipped to the
// queried window, so the first and last buckets may be partial.
type PeriodCost struct {
	Start      string               `json:"start"`
	End        string               `json:"end"`
	Days       int                  `json:"days"`
	ByCategory map[Category]float64 `json:"by_category"`
	Total      float64              `json:"total"`
}

// AnomalyType tells whether a day came in above or below its baseline.
type AnomalyType string

const (
	AnomalySpike AnomalyType = "spike"
	AnomalyDrop  AnomalyType = "drop"
)

// CostAnomaly is a day whose spend falls outside the band of the days before it.
type CostAnomaly struct {
	Date         string      `json:"date"`
	AccountID    string      `json:"account_id,omitempty"`
	ActualCost   float64     `json:"actual_cost"`
	ExpectedCost float64     `json:"expected_cost"`
	StdDev       float64     `json:"std_dev"`
	Deviation    float64     `json:"deviation"`
	DeviationPct float64     `json:"deviation_pct"`
	Type         AnomalyType `json:"type"`
	Severity     Severity    `json:"severity"`
}

// AnomalySummary counts anomalies by type and severity.
type AnomalySummary struct {
	Total      int              `json:"total"`
	Spikes     int              `json:"spikes"`
	Drops      int              `json:"drops"`
	BySeverity map[Severity]int `json:"by_severity"`
	// NetDeviation is the sum of actual minus expected over every anomaly.
	NetDeviation float64 `json:"net_deviation"`
}

// AnomalyReport lists the anomalies of one cost window, oldest first.
type AnomalyReport struct {
	Start     string         `json:"start"`
	End       string         `json:"end"`
	Anomalies []CostAnomaly  `json:"anomalies"`
	Summary   AnomalySummary `json:"summary"`
}

// ClassifyAnomalySeverity determines severity based on deviation percentage.
func ClassifyAnomalySeverity(deviationPct float64) Severity {
	if deviationPct < 0 {
		deviationPct = -deviationPct
	}
	switch {
	case deviationPct >= 100:
		return SeverityCritical
	case deviationPct >= 50:
		return SeverityHigh
	case deviationPct >= 25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
