package model

import "time"

// IdleType classifies how a resource is idle.
type IdleType string

const (
	IdleLowCPU      IdleType = "low_cpu"
	IdleLowNetwork  IdleType = "low_network"
	IdleNoRequests  IdleType = "no_requests"
	IdleStoppedLong IdleType = "stopped_long"
)

// Recommendation is the remediation suggested for an idle resource.
type Recommendation string

const (
	RecommendTerminate    Recommendation = "terminate"
	RecommendDownsize     Recommendation = "downsize"
	RecommendScheduleStop Recommendation = "schedule_stop"
)

// Priority ranks idle findings for review.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IdleStatus is the lifecycle of an idle finding.
// active -> reviewing -> actioned | dismissed. actioned and dismissed are terminal.
type IdleStatus string

const (
	IdleStatusActive    IdleStatus = "active"
	IdleStatusReviewing IdleStatus = "reviewing"
	IdleStatusActioned  IdleStatus = "actioned"
	IdleStatusDismissed IdleStatus = "dismissed"
)

func (s IdleStatus) rank() int {
	switch s {
	case IdleStatusActive:
		return 0
	case IdleStatusReviewing:
		return 1
	case IdleStatusActioned, IdleStatusDismissed:
		return 2
	}
	return -1
}

// Valid reports whether s is a known idle status.
func (s IdleStatus) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether no further transition is possible.
func (s IdleStatus) Terminal() bool {
	return s.rank() == 2
}

// CanTransitionTo reports whether moving from s to next is a forward step.
func (s IdleStatus) CanTransitionTo(next IdleStatus) bool {
	return next.Valid() && s.Valid() && next.rank() > s.rank()
}

// IdleFinding flags a resource whose utilization stayed below threshold. One per resource.
type IdleFinding struct {
	ID               string         `json:"id" db:"id"`
	ResourceID       string         `json:"resource_id" db:"resource_id"`
	AccountID        string         `json:"account_id" db:"account_id"`
	ResourceName     string         `json:"resource_name" db:"resource_name"`
	ResourceType     string         `json:"resource_type" db:"resource_type"`
	IdleType         IdleType       `json:"idle_type" db:"idle_type"`
	AvgCPU           float64        `json:"avg_cpu" db:"avg_cpu"`
	AvgMemory        float64        `json:"avg_memory" db:"avg_memory"`
	AvgNetwork       float64        `json:"avg_network" db:"avg_network"`
	IdleDays         int            `json:"idle_days" db:"idle_days"`
	MonthlyCost      float64        `json:"monthly_cost" db:"monthly_cost"`
	PotentialSavings float64        `json:"potential_savings" db:"potential_savings"`
	Recommendation   Recommendation `json:"recommendation" db:"recommendation"`
	Priority         Priority       `json:"priority" db:"priority"`
	Status           IdleStatus     `json:"status" db:"status"`
	DetectedAt       time.Time      `json:"detected_at" db:"detected_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// IdleFilter defines filtering options for idle finding queries.
type IdleFilter struct {
	AccountID   string
	ResourceIDs []string
	Statuses    []IdleStatus
}

// ParseIdleFilter validates list query parameters. status defaults to active,reviewing; "all"
// disables it.
func ParseIdleFilter(status string) (IdleFilter, error) {
	var f IdleFilter
	if status == "" {
		status = "active,reviewing"
	}
	if status == "all" {
		return f, nil
	}
	for _, s := range splitList(status) {
		st := IdleStatus(s)
		if !st.Valid() {
			return f, NewInputError("status", s, "must be one of active, reviewing, actioned, dismissed, all")
		}
		f.Statuses = append(f.Statuses, st)
	}
	return f, nil
}

// IdleBucket is a count with its summed savings and monthly cost.
type IdleBucket struct {
	Count       int     `json:"count"`
	Savings     float64 `json:"savings"`
	MonthlyCost float64 `json:"monthly_cost"`
}

// ResourceTypeBucket is an IdleBucket labelled by resource type.
type ResourceTypeBucket struct {
	ResourceType string `json:"resource_type"`
	IdleBucket
}

// IdleSummary rolls up a list of idle findings.
type IdleSummary struct {
	Total                int                       `json:"total"`
	TotalSavings         float64                   `json:"total_savings"`
	TotalMonthlyCost     float64                   `json:"total_monthly_cost"`
	ByType               map[IdleType]IdleBucket   `json:"by_type"`
	ByStatus             map[IdleStatus]IdleBucket `json:"by_status"`
	ByResourceType       []ResourceTypeBucket      `json:"by_resource_type"`
	IdleDaysDistribution map[string]int            `json:"idle_days_distribution"`
}

// IdleReport is a sorted finding list with its summary.
type IdleReport struct {
	Findings []IdleFinding `json:"findings"`
	Summary  IdleSummary   `json:"summary"`
}
