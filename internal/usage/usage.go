// Package usage computes rolling utilization of resources from their samples.
package usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

// DefaultWindow is the number of most recent samples averaged when no window is given.
const DefaultWindow = 24

// Classify returns the mean CPU, memory and network of samples. An empty window yields zeros.
func Classify(samples []model.UsageSample) model.UsageAverages {
	var a model.UsageAverages
	if len(samples) == 0 {
		return a
	}
	var cpu, mem, net float64
	for _, s := range samples {
		cpu += s.CPUUsage
		mem += s.MemoryUsage
		net += s.Network()
		a.MaxCPU = max(a.MaxCPU, s.CPUUsage)
		a.TotalRequests += s.RequestCount
	}
	n := float64(len(samples))
	a.AvgCPU = cpu / n
	a.AvgMemory = mem / n
	a.AvgNetwork = net / n
	a.TotalNetwork = net
	a.SampleCount = len(samples)
	return a
}

// DayUsage is the mean utilization of one UTC calendar day.
type DayUsage struct {
	Date     time.Time
	Averages model.UsageAverages
}

// Daily groups samples by UTC day and averages each day, oldest day first. Days without
// samples are absent.
func Daily(samples []model.UsageSample) []DayUsage {
	byDay := make(map[time.Time][]model.UsageSample)
	for _, s := range samples {
		d := model.TruncateDay(s.Timestamp)
		byDay[d] = append(byDay[d], s)
	}
	days := make([]DayUsage, 0, len(byDay))
	for d, ss := range byDay {
		days = append(days, DayUsage{Date: d, Averages: Classify(ss)})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days
}

// Service reads sample windows from the store.
type Service struct {
	store repository.UsageReader
}

func NewService(store repository.UsageReader) *Service {
	return &Service{store: store}
}

// Window returns up to limit of the most recent samples of a resource in chronological
// order. A non-positive limit uses DefaultWindow.
func (s *Service) Window(ctx context.Context, resourceID string, limit int) ([]model.UsageSample, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}
	samples, err := s.store.ListUsageSamples(ctx, resourceID, limit, false)
	if err != nil {
		return nil, fmt.Errorf("listing samples of %s: %w", resourceID, err)
	}
	return samples, nil
}

// ForResource returns the resource's recent samples, newest first, with their averages.
func (s *Service) ForResource(ctx context.Context, resource model.Resource, limit int) (*model.ResourceUsage, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}
	samples, err := s.store.ListUsageSamples(ctx, resource.ID, limit, true)
	if err != nil {
		return nil, fmt.Errorf("listing samples of %s: %w", resource.ID, err)
	}
	if samples == nil {
		samples = []model.UsageSample{}
	}
	return &model.ResourceUsage{Resource: resource, Samples: samples, Averages: Classify(samples)}, nil
}
