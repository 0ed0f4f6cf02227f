package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

var now = time.Date(2024, 6, 16, 12, 0, 0, 0, time.UTC)

func policy() config.ForecastPolicy {
	return config.DefaultPolicy().Forecast
}

func budget(v float64) *float64 { return &v }

func day(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
}

func dec(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestPredictOverBudget(t *testing.T) {
	account := model.CloudAccount{ID: "acc-1", Provider: model.CloudProviderAWS, MonthlyBudget: budget(1000)}
	h := History{
		Monthly:       dec(1200, 1200, 1200),
		TrailingDaily: dec(repeat(40, 90)...),
		Settled:       dec(repeat(40, 14)...),
	}

	preds := Predict(account, h, policy(), now)

	require.Len(t, preds, 1)
	p := preds[0]
	assert.Equal(t, "2024-07", p.PredictionMonth)
	assert.Equal(t, 1200.0, p.PredictedCost)
	assert.True(t, p.OverBudget)
	assert.Equal(t, 200.0, p.BudgetGap)
	assert.Equal(t, 120.0, p.BudgetUtilization)
	assert.Equal(t, 1.0, p.Confidence)
	assert.Equal(t, model.TrendStable, p.Trend)
	assert.Equal(t, 3.0, p.Factors["monthsOfHistory"])
	assert.Equal(t, 1.0, p.Factors["growthMultiplier"])
}

func TestPredictWithoutBudgetOrHistory(t *testing.T) {
	preds := Predict(model.CloudAccount{ID: "acc-1"}, History{}, policy(), now)

	require.Len(t, preds, 1)
	p := preds[0]
	assert.Zero(t, p.PredictedCost)
	assert.Zero(t, p.BudgetUtilization)
	assert.Zero(t, p.BudgetGap)
	assert.False(t, p.OverBudget)
	assert.Zero(t, p.Confidence)
	assert.Equal(t, model.TrendStable, p.Trend)

	preds = Predict(model.CloudAccount{ID: "acc-1", MonthlyBudget: budget(0)}, History{Monthly: dec(500)}, policy(), now)
	assert.Zero(t, preds[0].BudgetUtilization)
	assert.False(t, preds[0].OverBudget)
}

func TestPredictAveragesOverFullWindow(t *testing.T) {
	account := model.CloudAccount{ID: "acc-1", MonthlyBudget: budget(1500)}
	h := History{
		Monthly: dec(0, 0, 3000),
		Settled: dec(repeat(100, 14)...),
	}

	preds := Predict(account, h, policy(), now)

	require.Len(t, preds, 1)
	p := preds[0]
	assert.Equal(t, 1000.0, p.BaseCost)
	assert.Equal(t, 1000.0, p.PredictedCost)
	assert.False(t, p.OverBudget)
	assert.Equal(t, 1.0, p.Factors["monthsOfHistory"])

	base, months := History{Monthly: dec(900, 0, 900)}.Base()
	assert.True(t, base.Equal(decimal.NewFromInt(600)), "a quiet month in the middle counts as zero, got %s", base)
	assert.Equal(t, 2, months)
}

func TestPredictCompoundsOverHorizon(t *testing.T) {
	p := policy()
	p.HorizonMonths = 2
	h := History{
		Monthly: dec(1000),
		Settled: dec(append(repeat(10, 7), repeat(11, 7)...)...),
	}

	preds := Predict(model.CloudAccount{ID: "acc-1"}, h, p, now)

	require.Len(t, preds, 2)
	assert.Equal(t, "2024-07", preds[0].PredictionMonth)
	assert.Equal(t, 1100.0, preds[0].PredictedCost)
	assert.Equal(t, "2024-08", preds[1].PredictionMonth)
	assert.Equal(t, 1210.0, preds[1].PredictedCost)
	assert.Equal(t, model.TrendIncreasing, preds[1].Trend)
}

func TestGrowthMultiplier(t *testing.T) {
	tests := []struct {
		name          string
		recent, prior float64
		want          float64
	}{
		{"capped growth", 150, 100, 1.1},
		{"capped decline", 50, 100, 0.9},
		{"within step", 105, 100, 1.05},
		{"no prior week", 80, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GrowthMultiplier(decimal.NewFromFloat(tt.recent), decimal.NewFromFloat(tt.prior), 0.1)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestTrendFor(t *testing.T) {
	tests := []struct {
		predicted, base float64
		want            model.Trend
	}{
		{110, 100, model.TrendIncreasing},
		{100, 100, model.TrendStable},
		{96, 100, model.TrendStable},
		{94, 100, model.TrendDecreasing},
		{0, 0, model.TrendStable},
	}
	for _, tt := range tests {
		got := TrendFor(decimal.NewFromFloat(tt.predicted), decimal.NewFromFloat(tt.base), 0.95)
		assert.Equal(t, tt.want, got, "predicted %v base %v", tt.predicted, tt.base)
	}
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(nil))
	assert.Equal(t, 0.0, Confidence(dec(0, 0, 0)))
	assert.Equal(t, 1.0, Confidence(dec(40, 40, 40)))
	assert.Equal(t, 0.5, Confidence(dec(5, 15)))
	assert.Equal(t, 0.0, Confidence(dec(0, 10)))
}

func TestSplit(t *testing.T) {
	records := []model.CostRecord{
		{AccountID: "acc-1", Date: day(time.March, 10), Category: model.CategoryCompute, Cost: 300},
		{AccountID: "acc-1", Date: day(time.May, 1), Category: model.CategoryStorage, Cost: 600},
	}
	for d := 1; d <= 16; d++ {
		records = append(records, model.CostRecord{AccountID: "acc-1", Date: day(time.June, d), Category: model.CategoryCompute, Cost: 10})
	}
	_, series := Window(now, policy())
	assert.Equal(t, day(time.March, 1), series.Start)
	assert.Equal(t, day(time.June, 16), series.End)

	h := Split(aggregation.Aggregate(records, model.Query{Range: series, AccountID: "acc-1"}), now, policy())

	require.Len(t, h.Monthly, 3)
	assert.Len(t, h.TrailingDaily, 92)
	base, months := h.Base()
	assert.Equal(t, "300", base.String(), "April had no spend and still counts")
	assert.Equal(t, 2, months)
	assert.Equal(t, "160", h.MonthToDate.String())
	recent, prior := h.Weeks()
	assert.Equal(t, "70", recent.String())
	assert.Equal(t, "70", prior.String())
}

func TestAlertFor(t *testing.T) {
	account := model.CloudAccount{ID: "acc-1", Name: "prod", MonthlyBudget: budget(1000)}

	_, ok := AlertFor(account, decimal.NewFromFloat(799.99), policy(), now)
	assert.False(t, ok)

	a, ok := AlertFor(account, decimal.NewFromInt(800), policy(), now)
	require.True(t, ok)
	assert.Equal(t, model.AlertTypeThreshold, a.AlertType)
	assert.Equal(t, "2024-06", a.Period)
	assert.Equal(t, 80.0, a.Threshold)
	assert.Equal(t, 800.0, a.CurrentSpend)
	assert.Equal(t, 1000.0, a.BudgetAmount)
	assert.Contains(t, a.Message, "prod")

	a, ok = AlertFor(account, decimal.NewFromInt(1000), policy(), now)
	require.True(t, ok)
	assert.Equal(t, model.AlertTypeExceeded, a.AlertType)

	account.AlertThreshold = 50
	a, ok = AlertFor(account, decimal.NewFromInt(500), policy(), now)
	require.True(t, ok)
	assert.Equal(t, 50.0, a.Threshold)

	_, ok = AlertFor(model.CloudAccount{ID: "acc-2"}, decimal.NewFromInt(1_000_000), policy(), now)
	assert.False(t, ok, "no budget, no alert")
}

func TestMergeAlertKeepsAcknowledgement(t *testing.T) {
	created := now.AddDate(0, 0, -3)
	prior := &model.BudgetAlert{ID: "alert-1", AlertType: model.AlertTypeThreshold, Acknowledged: true, CreatedAt: created, CurrentSpend: 800}
	fresh := model.BudgetAlert{ID: "new", AlertType: model.AlertTypeExceeded, CurrentSpend: 1100, CreatedAt: now}

	merged, notify := MergeAlert(prior, fresh)
	assert.True(t, notify, "escalation is announced")
	assert.Equal(t, "alert-1", merged.ID)
	assert.True(t, merged.Acknowledged)
	assert.Equal(t, created, merged.CreatedAt)
	assert.Equal(t, 1100.0, merged.CurrentSpend)

	prior.AlertType = model.AlertTypeExceeded
	_, notify = MergeAlert(prior, fresh)
	assert.False(t, notify)

	merged, notify = MergeAlert(nil, fresh)
	assert.True(t, notify)
	assert.Equal(t, fresh, merged)
}

func TestSummarize(t *testing.T) {
	preds := []model.CostPrediction{
		{AccountID: "a", Provider: model.CloudProviderAWS, PredictionMonth: "2024-07", PredictedCost: 1200, Budget: budget(1000), OverBudget: true, Confidence: 0.9, Trend: model.TrendIncreasing},
		{AccountID: "a", Provider: model.CloudProviderAWS, PredictionMonth: "2024-08", PredictedCost: 1320, Budget: budget(1000), OverBudget: true, Confidence: 0.9, Trend: model.TrendIncreasing},
		{AccountID: "b", Provider: model.CloudProviderAWS, PredictionMonth: "2024-07", PredictedCost: 300.005, Confidence: 0.6, Trend: model.TrendStable},
	}

	s := Summarize(preds)

	assert.Equal(t, 1500.01, s.TotalPredicted)
	assert.Equal(t, 1000.0, s.TotalBudget)
	assert.Equal(t, 1, s.OverBudgetCount)
	assert.Equal(t, 0.75, s.AvgConfidence)
	assert.Equal(t, map[model.Trend]int{model.TrendIncreasing: 1, model.TrendDecreasing: 0, model.TrendStable: 1}, s.Trends)
	assert.Equal(t, model.ProviderRollup{Count: 2, Predicted: 1500.01, Budget: 1000, Utilization: 150}, s.ByProvider[model.CloudProviderAWS])

	empty := Summarize(nil)
	assert.Zero(t, empty.TotalPredicted)
	assert.Zero(t, empty.AvgConfidence)
}

func TestDailyTrends(t *testing.T) {
	r := model.DateRange{Start: day(time.June, 14), End: day(time.June, 16)}
	records := []model.CostRecord{
		{AccountID: "a", Date: day(time.June, 15), Category: model.CategoryCompute, Cost: 10},
		{AccountID: "a", Date: day(time.June, 15), Category: model.CategoryStorage, Cost: 2.5},
		{AccountID: "b", Date: day(time.June, 16), Category: model.CategoryCompute, Cost: 7},
	}

	trends := DailyTrends(records, []string{"a", "b", "a"}, r)

	require.Len(t, trends, 2)
	assert.Equal(t, []model.DailyTrend{{Date: "2024-06-14"}, {Date: "2024-06-15", Cost: 12.5}, {Date: "2024-06-16"}}, trends["a"])
	assert.Equal(t, 7.0, trends["b"][2].Cost)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []model.BudgetAlert
}

func (n *recordingNotifier) SendBudgetAlert(_ context.Context, a model.BudgetAlert, _ model.CloudAccount) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func seedStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.UpsertAccounts(ctx, []model.CloudAccount{
		{ID: "acc-1", Provider: model.CloudProviderAWS, AccountID: "111111111111", Name: "prod", MonthlyBudget: budget(1000), Status: model.AccountStatusActive},
		{ID: "acc-2", Provider: model.CloudProviderAWS, AccountID: "222222222222", Status: model.AccountStatusSuspended},
	}))
	var records []model.CostRecord
	for d := day(time.March, 1); !d.After(day(time.June, 16)); d = d.AddDate(0, 0, 1) {
		cost := 40.0
		if d.Month() == time.June {
			cost = 60
		}
		records = append(records, model.CostRecord{ID: model.NewID(), AccountID: "acc-1", Date: d, Category: model.CategoryCompute, Service: "EC2", Cost: cost})
	}
	require.NoError(t, store.UpsertCostRecords(ctx, records))
	return store
}

func newService(store Store, n Notifier) *Service {
	svc := NewService(store, n, policy(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc
}

func TestServiceRun(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	notifier := &recordingNotifier{}
	svc := newService(store, notifier)

	res, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.ForecastResult{Accounts: 1, Predictions: 1, Alerts: 1, NewAlerts: 1}, res)
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, model.AlertTypeThreshold, notifier.alerts[0].AlertType)
	assert.Equal(t, 960.0, notifier.alerts[0].CurrentSpend)

	report, err := svc.List(ctx, model.PredictionFilter{})
	require.NoError(t, err)
	require.Len(t, report.Predictions, 1)
	p := report.Predictions[0]
	assert.Equal(t, 1226.67, p.PredictedCost)
	assert.Equal(t, 1226.67, p.BaseCost)
	assert.True(t, p.OverBudget)
	assert.Equal(t, 226.67, p.BudgetGap)
	assert.Equal(t, 122.7, p.BudgetUtilization)
	assert.Equal(t, 1.0, p.Confidence)
	assert.Equal(t, 1226.67, report.Summary.TotalPredicted)
	require.Len(t, report.DailyTrends["acc-1"], 30)
	assert.Equal(t, 60.0, report.DailyTrends["acc-1"][29].Cost)

	alerts, err := svc.Alerts(ctx, model.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NoError(t, svc.Acknowledge(ctx, alerts[0].ID))

	require.NoError(t, store.UpsertCostRecords(ctx, []model.CostRecord{
		{ID: model.NewID(), AccountID: "acc-1", Date: day(time.June, 16), Category: model.CategoryStorage, Service: "S3", Cost: 50},
	}))
	res, err = svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewAlerts)
	require.Len(t, notifier.alerts, 2, "escalation to exceeded is announced")

	alerts, err = svc.Alerts(ctx, model.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertTypeExceeded, alerts[0].AlertType)
	assert.Equal(t, 1010.0, alerts[0].CurrentSpend)
	assert.True(t, alerts[0].Acknowledged, "acknowledgement survives a recompute")

	report, err = svc.List(ctx, model.PredictionFilter{AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Len(t, report.Predictions, 1, "predictions are replaced, not appended")
}

func TestServiceRunStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	store.FailWrites = errors.New("connection reset")
	notifier := &recordingNotifier{}
	svc := newService(store, notifier)

	_, err := svc.Run(ctx)

	var storeErr *repository.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.True(t, storeErr.Retryable())
	assert.Empty(t, notifier.alerts)
	preds, err := store.ListPredictions(ctx, model.PredictionFilter{})
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	svc := newService(repository.NewMemoryStore(), nil)

	assert.ErrorIs(t, svc.Acknowledge(context.Background(), "missing"), model.ErrNotFound)

	var inputErr *model.InputError
	assert.ErrorAs(t, svc.Acknowledge(context.Background(), ""), &inputErr)
}
