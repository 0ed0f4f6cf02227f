// Package idle tracks resources whose utilization stayed below threshold for days.
package idle

import (
	"sort"
	"time"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/money"
	"github.com/fredphp/yunwei/internal/usage"
)

var recommendations = map[model.IdleType]model.Recommendation{
	model.IdleStoppedLong: model.RecommendTerminate,
	model.IdleNoRequests:  model.RecommendTerminate,
	model.IdleLowCPU:      model.RecommendDownsize,
	model.IdleLowNetwork:  model.RecommendScheduleStop,
}

// PriorityFor ranks a finding by how long it has been idle and what it would save.
func PriorityFor(idleDays int, savings float64) model.Priority {
	switch {
	case idleDays > 30 || savings > 1000:
		return model.PriorityHigh
	case idleDays > 14 || savings > 500:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// trailingStreak counts the most recent consecutive days for which idle holds. A day
// without samples ends the streak.
func trailingStreak(days []usage.DayUsage, idle func(model.UsageAverages) bool) int {
	streak := 0
	for i := len(days) - 1; i >= 0; i-- {
		if !idle(days[i].Averages) {
			break
		}
		if i < len(days)-1 && !days[i].Date.AddDate(0, 0, 1).Equal(days[i+1].Date) {
			break
		}
		streak++
	}
	return streak
}

// Track classifies one resource from its sample window, oldest sample first. A stopped
// resource is judged on how long it has been stopped; a running one on its daily usage,
// trying no_requests, low_network and low_cpu in that order. The first type idle for at
// least MinIdleDays wins.
func Track(r model.Resource, samples []model.UsageSample, p config.IdlePolicy, now time.Time) (model.IdleFinding, bool) {
	var idleType model.IdleType
	var idleDays int
	avg := usage.Classify(samples)

	switch r.Status {
	case model.ResourceStatusStopped:
		days := int(r.StoppedFor(now).Hours() / 24)
		if days < p.StoppedLongDays {
			return model.IdleFinding{}, false
		}
		idleType, idleDays = model.IdleStoppedLong, days

	case model.ResourceStatusRunning:
		if len(samples) == 0 {
			return model.IdleFinding{}, false
		}
		days := usage.Daily(samples)

		candidates := []struct {
			t    model.IdleType
			days int
		}{
			{model.IdleNoRequests, noRequestDays(avg, days)},
			{model.IdleLowNetwork, trailingStreak(days, func(a model.UsageAverages) bool { return a.AvgNetwork < p.NetworkBytes })},
			{model.IdleLowCPU, trailingStreak(days, func(a model.UsageAverages) bool { return a.AvgCPU < p.CPUPercent })},
		}
		for _, c := range candidates {
			if c.days >= p.MinIdleDays {
				idleType, idleDays = c.t, c.days
				break
			}
		}
		if idleType == "" {
			return model.IdleFinding{}, false
		}

	default:
		return model.IdleFinding{}, false
	}

	monthly := money.Product(r.CostPerHour, model.HoursPerMonth)
	savings := money.Product(r.CostPerHour, model.HoursPerMonth, p.RecoveryFraction)
	return model.IdleFinding{
		ID:               model.NewID(),
		ResourceID:       r.ID,
		AccountID:        r.AccountID,
		ResourceName:     r.Name,
		ResourceType:     r.Type,
		IdleType:         idleType,
		AvgCPU:           money.RoundTo(avg.AvgCPU, 2),
		AvgMemory:        money.RoundTo(avg.AvgMemory, 2),
		AvgNetwork:       money.RoundTo(avg.AvgNetwork, 2),
		IdleDays:         idleDays,
		MonthlyCost:      monthly,
		PotentialSavings: savings,
		Recommendation:   recommendations[idleType],
		Priority:         PriorityFor(idleDays, savings),
		Status:           model.IdleStatusActive,
		DetectedAt:       now,
		UpdatedAt:        now,
	}, true
}

// noRequestDays is the number of days covered by the window when no sample saw a request.
func noRequestDays(totals model.UsageAverages, days []usage.DayUsage) int {
	if totals.TotalRequests > 0 || len(days) == 0 {
		return 0
	}
	return int(days[len(days)-1].Date.Sub(days[0].Date).Hours()/24) + 1
}

// Merge folds a fresh classification into the prior finding for the same resource. It
// reports false when the prior finding is terminal and must be left alone.
func Merge(prior *model.IdleFinding, fresh model.IdleFinding) (model.IdleFinding, bool) {
	if prior == nil {
		return fresh, true
	}
	if prior.Status.Terminal() {
		return *prior, false
	}
	fresh.ID = prior.ID
	fresh.Status = prior.Status
	fresh.DetectedAt = prior.DetectedAt
	return fresh, true
}

// Sort orders findings by potential savings, then idle days, both descending.
func Sort(findings []model.IdleFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].PotentialSavings != findings[j].PotentialSavings {
			return findings[i].PotentialSavings > findings[j].PotentialSavings
		}
		return findings[i].IdleDays > findings[j].IdleDays
	})
}

// DistributionBucket names the idle-days range a finding falls into.
func DistributionBucket(idleDays int) string {
	switch {
	case idleDays <= 7:
		return "1-7"
	case idleDays <= 14:
		return "8-14"
	case idleDays <= 30:
		return "15-30"
	default:
		return "30+"
	}
}

type accumulator struct {
	count   int
	savings []float64
	monthly []float64
}

func (a *accumulator) add(f model.IdleFinding) {
	a.count++
	a.savings = append(a.savings, f.PotentialSavings)
	a.monthly = append(a.monthly, f.MonthlyCost)
}

func (a *accumulator) bucket() model.IdleBucket {
	return model.IdleBucket{
		Count:       a.count,
		Savings:     money.Round(money.Sum(a.savings...)),
		MonthlyCost: money.Round(money.Sum(a.monthly...)),
	}
}

func accumulatorFor[K comparable](m map[K]*accumulator, k K) *accumulator {
	if m[k] == nil {
		m[k] = &accumulator{}
	}
	return m[k]
}

// Summarize rolls findings up by type, status and resource type, plus the idle-days
// distribution.
func Summarize(findings []model.IdleFinding) model.IdleSummary {
	var all accumulator
	byType := make(map[model.IdleType]*accumulator)
	byStatus := make(map[model.IdleStatus]*accumulator)
	byResourceType := make(map[string]*accumulator)
	dist := map[string]int{"1-7": 0, "8-14": 0, "15-30": 0, "30+": 0}

	for _, f := range findings {
		all.add(f)
		accumulatorFor(byType, f.IdleType).add(f)
		accumulatorFor(byStatus, f.Status).add(f)
		accumulatorFor(byResourceType, f.ResourceType).add(f)
		dist[DistributionBucket(f.IdleDays)]++
	}

	total := all.bucket()
	s := model.IdleSummary{
		Total:                total.Count,
		TotalSavings:         total.Savings,
		TotalMonthlyCost:     total.MonthlyCost,
		ByType:               make(map[model.IdleType]model.IdleBucket, len(byType)),
		ByStatus:             make(map[model.IdleStatus]model.IdleBucket, len(byStatus)),
		ByResourceType:       make([]model.ResourceTypeBucket, 0, len(byResourceType)),
		IdleDaysDistribution: dist,
	}
	for k, a := range byType {
		s.ByType[k] = a.bucket()
	}
	for k, a := range byStatus {
		s.ByStatus[k] = a.bucket()
	}
	for k, a := range byResourceType {
		s.ByResourceType = append(s.ByResourceType, model.ResourceTypeBucket{ResourceType: k, IdleBucket: a.bucket()})
	}
	sort.Slice(s.ByResourceType, func(i, j int) bool {
		a, b := s.ByResourceType[i], s.ByResourceType[j]
		if a.Savings != b.Savings {
			return a.Savings > b.Savings
		}
		return a.ResourceType < b.ResourceType
	})
	return s
}
