package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/model"
)

func TestClassifyEmptyWindow(t *testing.T) {
	assert.Equal(t, model.UsageAverages{}, Classify(nil))
}

func TestClassify(t *testing.T) {
	samples := []model.UsageSample{
		{CPUUsage: 10, MemoryUsage: 40, NetworkIn: 100, NetworkOut: 50, RequestCount: 3},
		{CPUUsage: 30, MemoryUsage: 60, NetworkIn: 0, NetworkOut: 50, RequestCount: 1},
	}

	a := Classify(samples)

	assert.InDelta(t, 20.0, a.AvgCPU, 1e-9)
	assert.InDelta(t, 50.0, a.AvgMemory, 1e-9)
	assert.InDelta(t, 100.0, a.AvgNetwork, 1e-9)
	assert.Equal(t, 30.0, a.MaxCPU)
	assert.Equal(t, 200.0, a.TotalNetwork)
	assert.Equal(t, int64(4), a.TotalRequests)
	assert.Equal(t, 2, a.SampleCount)
}

func TestDaily(t *testing.T) {
	base := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	samples := []model.UsageSample{
		{Timestamp: base.Add(3 * time.Hour), CPUUsage: 8},
		{Timestamp: base, CPUUsage: 2},
		{Timestamp: base.Add(time.Hour), CPUUsage: 4},
	}

	days := Daily(samples)

	require.Len(t, days, 2)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), days[0].Date)
	assert.InDelta(t, 3.0, days[0].Averages.AvgCPU, 1e-9)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), days[1].Date)
	assert.InDelta(t, 8.0, days[1].Averages.AvgCPU, 1e-9)
}

type fakeUsageReader struct {
	limit           int
	mostRecentFirst bool
}

func (f *fakeUsageReader) ListUsageSamples(_ context.Context, _ string, limit int, mostRecentFirst bool) ([]model.UsageSample, error) {
	f.limit = limit
	f.mostRecentFirst = mostRecentFirst
	return nil, nil
}

func TestServiceDefaults(t *testing.T) {
	store := &fakeUsageReader{}
	svc := NewService(store)

	view, err := svc.ForResource(context.Background(), model.Resource{ID: "r1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, store.limit)
	assert.True(t, store.mostRecentFirst)
	assert.NotNil(t, view.Samples)
	assert.Equal(t, 0, view.Averages.SampleCount)

	_, err = svc.Window(context.Background(), "r1", 720)
	require.NoError(t, err)
	assert.Equal(t, 720, store.limit)
	assert.False(t, store.mostRecentFirst)
}
