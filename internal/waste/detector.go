// Package waste flags resources that cost money without doing useful work.
package waste

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/money"
)

// SeverityFor maps an hourly cost onto a severity tier.
func SeverityFor(costPerHour float64, tiers config.SeverityTiers) model.Severity {
	switch {
	case costPerHour >= tiers.Critical:
		return model.SeverityCritical
	case costPerHour >= tiers.High:
		return model.SeverityHigh
	case costPerHour >= tiers.Medium:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// instanceSize returns the size suffix of an instance type, "large" for "m5.large".
func instanceSize(resourceType string) string {
	t := strings.ToLower(resourceType)
	if i := strings.LastIndex(t, "."); i >= 0 {
		return t[i+1:]
	}
	return t
}

// Detect classifies one resource from its usage window. Rules are tried in order and the
// first match wins: zombie, unused, overprovisioned, orphaned. The returned finding is new;
// use Merge to carry over the state of an earlier finding.
func Detect(r model.Resource, u model.UsageAverages, p config.WastePolicy, now time.Time) (model.WasteFinding, bool) {
	f := model.WasteFinding{
		ID:           model.NewID(),
		ResourceID:   r.ID,
		AccountID:    r.AccountID,
		ResourceName: r.Name,
		ResourceType: r.Type,
		Severity:     SeverityFor(r.CostPerHour, p.Severity),
		AvgCPU:       money.RoundTo(u.AvgCPU, 2),
		AvgMemory:    money.RoundTo(u.AvgMemory, 2),
		Status:       model.WasteStatusOpen,
		DetectedAt:   now,
		UpdatedAt:    now,
	}
	fraction := p.TerminableFraction
	grace := time.Duration(p.ZombieGraceDays) * 24 * time.Hour

	switch {
	case r.Status == model.ResourceStatusStopped && r.StoppedFor(now) > grace:
		f.WasteType = model.WasteZombie
		f.Reason = fmt.Sprintf("stopped for %d days, past the %d-day grace period",
			int(r.StoppedFor(now).Hours()/24), p.ZombieGraceDays)
		f.Recommendation = "Terminate the resource, or snapshot it and delete"

	case r.Status == model.ResourceStatusRunning && u.SampleCount > 0 && u.MaxCPU < p.UnusedCPUPercent:
		f.WasteType = model.WasteUnused
		f.Reason = fmt.Sprintf("CPU stayed below %.0f%% across all %d samples (peak %.1f%%)",
			p.UnusedCPUPercent, u.SampleCount, u.MaxCPU)
		f.Recommendation = "Stop or terminate the resource"

	case u.SampleCount > 0 && u.AvgCPU < p.OverprovisionedPercent && u.AvgMemory < p.OverprovisionedPercent &&
		slices.Contains(p.OverprovisionedCategories, string(r.Category)) &&
		!slices.Contains(p.MinimalSizes, instanceSize(r.Type)):
		f.WasteType = model.WasteOverprovisioned
		f.Reason = fmt.Sprintf("average CPU %.1f%% and memory %.1f%% are both below %.0f%% on a %s",
			u.AvgCPU, u.AvgMemory, p.OverprovisionedPercent, r.Type)
		f.Recommendation = "Downsize to a smaller instance type"
		fraction = p.DownsizableFraction

	case u.SampleCount > 0 && u.TotalNetwork == 0 && r.WorkloadRef == "":
		f.WasteType = model.WasteOrphaned
		f.Reason = fmt.Sprintf("no network traffic across %d samples and no owning workload", u.SampleCount)
		f.Recommendation = "Confirm ownership, then delete the resource"

	default:
		return model.WasteFinding{}, false
	}

	f.EstimatedSavings = money.Product(r.CostPerHour, model.HoursPerMonth, fraction)
	return f, true
}

// Merge carries the identity and lifecycle of prior over to a freshly detected finding for
// the same resource. Status never moves backwards through re-detection.
func Merge(prior *model.WasteFinding, fresh model.WasteFinding) model.WasteFinding {
	if prior == nil {
		return fresh
	}
	fresh.ID = prior.ID
	fresh.Status = prior.Status
	fresh.ResolvedAt = prior.ResolvedAt
	fresh.DetectedAt = prior.DetectedAt
	return fresh
}

// Sort orders findings by severity, then estimated savings, both descending.
func Sort(findings []model.WasteFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if ri, rj := findings[i].Severity.Rank(), findings[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		return findings[i].EstimatedSavings > findings[j].EstimatedSavings
	})
}

// Summarize rolls findings up by severity, type and status.
func Summarize(findings []model.WasteFinding) model.WasteSummary {
	s := model.WasteSummary{
		BySeverity: make(map[model.Severity]model.Bucket),
		ByType:     make(map[model.WasteType]model.Bucket),
		ByStatus:   make(map[model.WasteStatus]model.Bucket),
	}
	total := money.Sum()
	bySeverity := make(map[model.Severity][]float64)
	byType := make(map[model.WasteType][]float64)
	byStatus := make(map[model.WasteStatus][]float64)

	for _, f := range findings {
		total = total.Add(money.From(f.EstimatedSavings))
		bySeverity[f.Severity] = append(bySeverity[f.Severity], f.EstimatedSavings)
		byType[f.WasteType] = append(byType[f.WasteType], f.EstimatedSavings)
		byStatus[f.Status] = append(byStatus[f.Status], f.EstimatedSavings)
	}

	s.Total = len(findings)
	s.TotalSavings = money.Round(total)
	for k, v := range bySeverity {
		s.BySeverity[k] = model.Bucket{Count: len(v), Savings: money.Round(money.Sum(v...))}
	}
	for k, v := range byType {
		s.ByType[k] = model.Bucket{Count: len(v), Savings: money.Round(money.Sum(v...))}
	}
	for k, v := range byStatus {
		s.ByStatus[k] = model.Bucket{Count: len(v), Savings: money.Round(money.Sum(v...))}
	}
	return s
}
