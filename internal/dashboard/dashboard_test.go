package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

var now = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

func date(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.UpsertCostRecords(ctx, []model.CostRecord{
		{ID: "c1", AccountID: "a", Date: date(time.May, 3), Category: model.CategoryCompute, Cost: 100},
		{ID: "c2", AccountID: "a", Date: date(time.May, 20), Category: model.CategoryStorage, Cost: 100},
		{ID: "c3", AccountID: "a", Date: date(time.June, 9), Category: model.CategoryCompute, Cost: 150.005},
		{ID: "c4", AccountID: "a", Date: date(time.June, 10), Category: model.CategoryCompute, Cost: 100},
	}))
	require.NoError(t, store.UpsertResources(ctx, []model.Resource{
		{ID: "r1", Status: model.ResourceStatusRunning},
		{ID: "r2", Status: model.ResourceStatusStopped},
		{ID: "r3", Status: model.ResourceStatusRunning},
	}))
	require.NoError(t, store.UpsertWasteFindings(ctx, []model.WasteFinding{
		{ID: "w1", ResourceID: "r2", Severity: model.SeverityHigh, EstimatedSavings: 324, Status: model.WasteStatusOpen},
		{ID: "w2", ResourceID: "r3", Severity: model.SeverityLow, EstimatedSavings: 10.5, Status: model.WasteStatusOpen},
		{ID: "w3", ResourceID: "r1", Severity: model.SeverityLow, EstimatedSavings: 99, Status: model.WasteStatusResolved},
	}))
	require.NoError(t, store.UpsertIdleFindings(ctx, []model.IdleFinding{
		{ID: "i1", ResourceID: "r1", Status: model.IdleStatusActive, PotentialSavings: 57.6, MonthlyCost: 72},
		{ID: "i2", ResourceID: "r2", Status: model.IdleStatusReviewing, PotentialSavings: 288, MonthlyCost: 360},
	}))
	require.NoError(t, store.SaveForecast(ctx, nil, []model.BudgetAlert{
		{ID: "al1", AccountID: "a", Period: "2024-06", CreatedAt: now},
		{ID: "al2", AccountID: "b", Period: "2024-06", CreatedAt: now, Acknowledged: true},
	}))

	svc := NewService(store)
	svc.now = func() time.Time { return now }

	d, err := svc.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, model.SpendComparison{ThisMonth: 250.01, LastMonth: 200, ChangePercent: 25}, d.Spend)
	assert.Equal(t, model.ResourceCounts{Total: 3, Running: 2}, d.Resources)
	assert.Equal(t, model.Bucket{Count: 2, Savings: 334.5}, d.WasteTotal)
	assert.Equal(t, model.Bucket{Count: 1, Savings: 324}, d.Waste[model.SeverityHigh])
	assert.Equal(t, model.Bucket{}, d.Waste[model.SeverityCritical])
	assert.Len(t, d.Waste, 4)
	assert.Equal(t, 57.6, d.Idle[model.IdleStatusActive].Savings)
	assert.Equal(t, 1, d.Idle[model.IdleStatusReviewing].Count)
	require.Len(t, d.Alerts, 1)
	assert.Equal(t, "al1", d.Alerts[0].ID)
	require.Len(t, d.RecentCosts, 7)
	assert.Equal(t, "2024-06-04", d.RecentCosts[0].Date)
	assert.Equal(t, 150.01, d.RecentCosts[5].Cost)
	assert.Equal(t, 100.0, d.RecentCosts[6].Cost)
}

func TestGetEmpty(t *testing.T) {
	svc := NewService(repository.NewMemoryStore())
	svc.now = func() time.Time { return now }

	d, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Zero(t, d.Spend.ChangePercent)
	assert.NotNil(t, d.Alerts)
	assert.Len(t, d.RecentCosts, 7)
}

type failingStore struct{ *repository.MemoryStore }

func (failingStore) ListResources(context.Context, model.ResourceFilter) ([]model.Resource, error) {
	return nil, &repository.StoreError{Op: "list resources", Err: errors.New("timeout")}
}

func TestGetStoreError(t *testing.T) {
	svc := NewService(failingStore{repository.NewMemoryStore()})

	_, err := svc.Get(context.Background())

	var storeErr *repository.StoreError
	assert.ErrorAs(t, err, &storeErr)
}
