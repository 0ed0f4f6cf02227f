package model

import (
	"fmt"
	"time"
)

// UsageSample is an immutable utilization observation for one resource.
type UsageSample struct {
	ID           string    `json:"id" db:"id"`
	ResourceID   string    `json:"resource_id" db:"resource_id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	CPUUsage     float64   `json:"cpu_usage" db:"cpu_usage"`
	MemoryUsage  float64   `json:"memory_usage" db:"memory_usage"`
	NetworkIn    float64   `json:"network_in" db:"network_in"`
	NetworkOut   float64   `json:"network_out" db:"network_out"`
	DiskUsage    float64   `json:"disk_usage" db:"disk_usage"`
	RequestCount int64     `json:"request_count" db:"request_count"`
}

// Network returns combined inbound and outbound traffic.
func (s UsageSample) Network() float64 {
	return s.NetworkIn + s.NetworkOut
}

// Validate checks the documented value ranges.
func (s UsageSample) Validate() error {
	if s.ResourceID == "" {
		return NewInputError("resource_id", "", "is required")
	}
	if s.Timestamp.IsZero() {
		return NewInputError("timestamp", "", "is required")
	}
	for field, v := range map[string]float64{
		"cpu_usage":    s.CPUUsage,
		"memory_usage": s.MemoryUsage,
		"disk_usage":   s.DiskUsage,
	} {
		if v < 0 || v > 100 {
			return NewInputError(field, fmt.Sprint(v), "must be between 0 and 100")
		}
	}
	if s.NetworkIn < 0 {
		return NewInputError("network_in", fmt.Sprint(s.NetworkIn), "must not be negative")
	}
	if s.NetworkOut < 0 {
		return NewInputError("network_out", fmt.Sprint(s.NetworkOut), "must not be negative")
	}
	if s.RequestCount < 0 {
		return NewInputError("request_count", fmt.Sprint(s.RequestCount), "must not be negative")
	}
	return nil
}

// UsageAverages is the rolling utilization of a resource over a sample window.
type UsageAverages struct {
	AvgCPU        float64 `json:"avg_cpu"`
	AvgMemory     float64 `json:"avg_memory"`
	AvgNetwork    float64 `json:"avg_network"`
	MaxCPU        float64 `json:"max_cpu"`
	TotalNetwork  float64 `json:"total_network"`
	TotalRequests int64   `json:"total_requests"`
	SampleCount   int     `json:"sample_count"`
}

// ResourceUsage is the presentation view of a resource's recent samples.
type ResourceUsage struct {
	Resource Resource      `json:"resource"`
	Samples  []UsageSample `json:"samples"`
	Averages UsageAverages `json:"averages"`
}
