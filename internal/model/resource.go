package model

import (
	"strings"
	"time"
)

// Category groups resources and costs for reporting.
type Category string

const (
	CategoryCompute  Category = "compute"
	CategoryStorage  Category = "storage"
	CategoryNetwork  Category = "network"
	CategoryDatabase Category = "database"
	CategoryOther    Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCompute, CategoryStorage, CategoryNetwork, CategoryDatabase, CategoryOther:
		return true
	}
	return false
}

// ParseCategory validates a category supplied by a caller. Empty input means no filter.
func ParseCategory(field, s string) (Category, error) {
	if s == "" {
		return "", nil
	}
	c := Category(strings.ToLower(s))
	if !c.Valid() {
		return "", NewInputError(field, s, "must be one of compute, storage, network, database, other")
	}
	return c, nil
}

// ResourceStatus is the power state of a resource.
type ResourceStatus string

const (
	ResourceStatusRunning ResourceStatus = "running"
	ResourceStatusStopped ResourceStatus = "stopped"
)

// Resource is a billable cloud resource owned by exactly one account.
type Resource struct {
	ID          string         `json:"id" db:"id"`
	AccountID   string         `json:"account_id" db:"account_id"`
	ResourceID  string         `json:"resource_id" db:"resource_id"`
	Name        string         `json:"name" db:"name"`
	Type        string         `json:"type" db:"type"`
	Category    Category       `json:"category" db:"category"`
	Region      string         `json:"region" db:"region"`
	CostPerHour float64        `json:"cost_per_hour" db:"cost_per_hour"`
	Status      ResourceStatus `json:"status" db:"status"`
	StoppedAt   *time.Time     `json:"stopped_at,omitempty" db:"stopped_at"`
	WorkloadRef string         `json:"workload_ref,omitempty" db:"workload_ref"`
	Tags        Tags           `json:"tags,omitempty" db:"tags"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// StoppedFor returns how long the resource has been stopped as of now. Running resources
// and stopped resources without a known stop time report zero.
func (r Resource) StoppedFor(now time.Time) time.Duration {
	if r.Status != ResourceStatusStopped || r.StoppedAt == nil {
		return 0
	}
	if d := now.Sub(*r.StoppedAt); d > 0 {
		return d
	}
	return 0
}

// MonthlyCost is the cost of running the resource for a 30-day month.
func (r Resource) MonthlyCost() float64 {
	return r.CostPerHour * HoursPerMonth
}

// HoursPerMonth is the billing month used for monthly cost estimates.
const HoursPerMonth = 24 * 30

// ResourceFilter defines filtering options for resource queries.
type ResourceFilter struct {
	AccountID string
	IDs       []string
	Category  Category
	Status    ResourceStatus
}
