// Package dashboard composes the analytics outputs into one overview.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/idle"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/money"
	"github.com/fredphp/yunwei/internal/repository"
	"github.com/fredphp/yunwei/internal/waste"
)

const (
	recentDays = 7
	alertLimit = 5
)

// Store is the data the dashboard reads.
type Store interface {
	repository.CostReader
	repository.ResourceReader
	ListWasteFindings(ctx context.Context, filter model.WasteFilter) ([]model.WasteFinding, error)
	ListIdleFindings(ctx context.Context, filter model.IdleFilter) ([]model.IdleFinding, error)
	ListBudgetAlerts(ctx context.Context, filter model.AlertFilter) ([]model.BudgetAlert, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Get builds the overview for the current month.
func (s *Service) Get(ctx context.Context) (*model.Dashboard, error) {
	now := s.now()
	today := model.TruncateDay(now)
	thisMonth := model.MonthStart(now)
	lastMonth := thisMonth.AddDate(0, -1, 0)

	records, err := s.store.ListCostRecords(ctx, model.DateRange{Start: lastMonth, End: today}, model.CostFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing cost records: %w", err)
	}
	resources, err := s.store.ListResources(ctx, model.ResourceFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	wasteFindings, err := s.store.ListWasteFindings(ctx, model.WasteFilter{Statuses: []model.WasteStatus{model.WasteStatusOpen}})
	if err != nil {
		return nil, fmt.Errorf("listing waste findings: %w", err)
	}
	idleFindings, err := s.store.ListIdleFindings(ctx, model.IdleFilter{
		Statuses: []model.IdleStatus{model.IdleStatusActive, model.IdleStatusReviewing},
	})
	if err != nil {
		return nil, fmt.Errorf("listing idle findings: %w", err)
	}
	alerts, err := s.store.ListBudgetAlerts(ctx, model.AlertFilter{Unacknowledged: true, Limit: alertLimit})
	if err != nil {
		return nil, fmt.Errorf("listing budget alerts: %w", err)
	}
	if alerts == nil {
		alerts = []model.BudgetAlert{}
	}

	d := &model.Dashboard{
		Spend:       spend(records, lastMonth, thisMonth, today),
		Resources:   model.ResourceCounts{Total: len(resources)},
		Alerts:      alerts,
		RecentCosts: recent(records, today),
	}
	for _, r := range resources {
		if r.Status == model.ResourceStatusRunning {
			d.Resources.Running++
		}
	}

	ws := waste.Summarize(wasteFindings)
	d.Waste = make(map[model.Severity]model.Bucket, len(model.Severities()))
	for _, sev := range model.Severities() {
		d.Waste[sev] = ws.BySeverity[sev]
	}
	d.WasteTotal = model.Bucket{Count: ws.Total, Savings: ws.TotalSavings}

	is := idle.Summarize(idleFindings)
	d.Idle = map[model.IdleStatus]model.IdleBucket{
		model.IdleStatusActive:    is.ByStatus[model.IdleStatusActive],
		model.IdleStatusReviewing: is.ByStatus[model.IdleStatusReviewing],
	}
	return d, nil
}

func spend(records []model.CostRecord, lastMonth, thisMonth, today time.Time) model.SpendComparison {
	this := aggregation.Aggregate(records, model.Query{Range: model.DateRange{Start: thisMonth, End: today}}).Total()
	last := aggregation.Aggregate(records, model.Query{Range: model.DateRange{Start: lastMonth, End: thisMonth.AddDate(0, 0, -1)}}).Total()
	change, _ := money.Percent(this.Sub(last), last, 1)
	return model.SpendComparison{
		ThisMonth:     money.Round(this),
		LastMonth:     money.Round(last),
		ChangePercent: change,
	}
}

func recent(records []model.CostRecord, today time.Time) []model.DailyTrend {
	res := aggregation.Aggregate(records, model.Query{Range: model.DateRange{Start: today.AddDate(0, 0, 1-recentDays), End: today}})
	totals := res.DailyTotals()
	out := make([]model.DailyTrend, len(totals))
	for i, d := range res.Days() {
		out[i] = model.DailyTrend{Date: d.Format(model.DateLayout), Cost: money.Round(totals[i])}
	}
	return out
}
