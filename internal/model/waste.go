package model

import (
	"strings"
	"time"
)

// WasteType classifies why a resource is wasteful.
type WasteType string

const (
	WasteOverprovisioned WasteType = "overprovisioned"
	WasteUnused          WasteType = "unused"
	WasteZombie          WasteType = "zombie"
	WasteOrphaned        WasteType = "orphaned"
)

// Valid reports whether t is a known waste type.
func (t WasteType) Valid() bool {
	switch t {
	case WasteOverprovisioned, WasteUnused, WasteZombie, WasteOrphaned:
		return true
	}
	return false
}

// WasteStatus is the lifecycle of a waste finding. Transitions only move forward.
type WasteStatus string

const (
	WasteStatusOpen         WasteStatus = "open"
	WasteStatusAcknowledged WasteStatus = "acknowledged"
	WasteStatusResolved     WasteStatus = "resolved"
)

func (s WasteStatus) rank() int {
	switch s {
	case WasteStatusOpen:
		return 0
	case WasteStatusAcknowledged:
		return 1
	case WasteStatusResolved:
		return 2
	}
	return -1
}

// Valid reports whether s is a known waste status.
func (s WasteStatus) Valid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving from s to next is a forward step.
func (s WasteStatus) CanTransitionTo(next WasteStatus) bool {
	return next.Valid() && s.Valid() && next.rank() > s.rank()
}

// WasteFinding flags a wasteful resource. There is at most one per resource.
type WasteFinding struct {
	ID               string      `json:"id" db:"id"`
	ResourceID       string      `json:"resource_id" db:"resource_id"`
	AccountID        string      `json:"account_id" db:"account_id"`
	ResourceName     string      `json:"resource_name" db:"resource_name"`
	ResourceType     string      `json:"resource_type" db:"resource_type"`
	WasteType        WasteType   `json:"waste_type" db:"waste_type"`
	Severity         Severity    `json:"severity" db:"severity"`
	EstimatedSavings float64     `json:"estimated_savings" db:"estimated_savings"`
	AvgCPU           float64     `json:"avg_cpu" db:"avg_cpu"`
	AvgMemory        float64     `json:"avg_memory" db:"avg_memory"`
	Reason           string      `json:"reason" db:"reason"`
	Recommendation   string      `json:"recommendation" db:"recommendation"`
	Status           WasteStatus `json:"status" db:"status"`
	DetectedAt       time.Time   `json:"detected_at" db:"detected_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
	ResolvedAt       *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}

// WasteFilter defines filtering options for waste finding queries. Empty slices match all.
type WasteFilter struct {
	AccountID   string
	ResourceIDs []string
	Severities  []Severity
	WasteTypes  []WasteType
	Statuses    []WasteStatus
}

// ParseWasteFilter validates list query parameters. status defaults to open; "all" disables it.
func ParseWasteFilter(severity, wasteType, status string) (WasteFilter, error) {
	var f WasteFilter
	for _, s := range splitList(severity) {
		sev := Severity(s)
		if !sev.Valid() {
			return f, NewInputError("severity", s, "must be one of low, medium, high, critical")
		}
		f.Severities = append(f.Severities, sev)
	}
	for _, s := range splitList(wasteType) {
		t := WasteType(s)
		if !t.Valid() {
			return f, NewInputError("wasteType", s, "must be one of overprovisioned, unused, zombie, orphaned")
		}
		f.WasteTypes = append(f.WasteTypes, t)
	}
	if status == "" {
		status = string(WasteStatusOpen)
	}
	if status != "all" {
		for _, s := range splitList(status) {
			st := WasteStatus(s)
			if !st.Valid() {
				return f, NewInputError("status", s, "must be one of open, acknowledged, resolved, all")
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	return f, nil
}

// Bucket is a count with its summed savings.
type Bucket struct {
	Count   int     `json:"count"`
	Savings float64 `json:"savings"`
}

// WasteSummary rolls up a list of waste findings.
type WasteSummary struct {
	Total        int                    `json:"total"`
	TotalSavings float64                `json:"total_savings"`
	BySeverity   map[Severity]Bucket    `json:"by_severity"`
	ByType       map[WasteType]Bucket   `json:"by_type"`
	ByStatus     map[WasteStatus]Bucket `json:"by_status"`
}

// WasteReport is a sorted finding list with its summary.
type WasteReport struct {
	Findings []WasteFinding `json:"findings"`
	Summary  WasteSummary   `json:"summary"`
}

// PassResult reports what a detection pass did.
type PassResult struct {
	Examined int `json:"examined"`
	Flagged  int `json:"flagged"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
