// Package model contains the core domain entities for yunwei.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CloudProvider represents supported cloud providers.
type CloudProvider string

const (
	CloudProviderAWS   CloudProvider = "aws"
	CloudProviderAzure CloudProvider = "azure"
	CloudProviderGCP   CloudProvider = "gcp"
)

// Currency represents monetary currency codes.
type Currency string

const (
	CurrencyUSD Currency = "USD"
)

// Severity represents finding severity levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal of the severity, critical highest. Unknown values rank below low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Severities lists every severity from lowest to highest.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// MonthLayout is the wire format for calendar months.
const MonthLayout = "2006-01"

// DateRange represents an inclusive span of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns every calendar day in the range, start first. An inverted range yields nothing.
func (r DateRange) Days() []time.Time {
	start := TruncateDay(r.Start)
	end := TruncateDay(r.End)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(TruncateDay(r.Start)) && !d.After(TruncateDay(r.End))
}

// TruncateDay returns midnight UTC of the day containing t.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Query is the immutable context of a single aggregation request.
type Query struct {
	Range       DateRange
	AccountID   string
	Category    Category
	Granularity Granularity
}

// Tags represents key-value metadata.
type Tags map[string]string

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

// StableID derives a deterministic identifier from natural key parts, so re-ingesting the
// same provider object maps onto the same row.
func StableID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("yunwei:"+strings.Join(parts, "/"))).String()
}
