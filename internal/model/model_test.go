package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRangeDays(t *testing.T) {
	r := DateRange{
		Start: time.Date(2024, 2, 27, 15, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC),
	}
	days := r.Days()
	require.Len(t, days, 4)
	assert.Equal(t, "2024-02-27", days[0].Format(DateLayout))
	assert.Equal(t, "2024-02-29", days[2].Format(DateLayout))
	assert.Equal(t, "2024-03-01", days[3].Format(DateLayout))

	assert.Empty(t, DateRange{Start: r.End, End: r.Start}.Days())
	assert.True(t, r.Contains(time.Date(2024, 2, 28, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestWasteStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to WasteStatus
		ok       bool
	}{
		{WasteStatusOpen, WasteStatusAcknowledged, true},
		{WasteStatusOpen, WasteStatusResolved, true},
		{WasteStatusAcknowledged, WasteStatusResolved, true},
		{WasteStatusAcknowledged, WasteStatusOpen, false},
		{WasteStatusResolved, WasteStatusOpen, false},
		{WasteStatusResolved, WasteStatusAcknowledged, false},
		{WasteStatusOpen, WasteStatusOpen, false},
		{WasteStatusOpen, "closed", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestIdleStatusTransitions(t *testing.T) {
	assert.True(t, IdleStatusActive.CanTransitionTo(IdleStatusReviewing))
	assert.True(t, IdleStatusReviewing.CanTransitionTo(IdleStatusActioned))
	assert.True(t, IdleStatusReviewing.CanTransitionTo(IdleStatusDismissed))
	assert.False(t, IdleStatusReviewing.CanTransitionTo(IdleStatusActive))
	assert.False(t, IdleStatusDismissed.CanTransitionTo(IdleStatusActioned))
	assert.False(t, IdleStatusActioned.CanTransitionTo(IdleStatusDismissed))
	assert.True(t, IdleStatusDismissed.Terminal())
	assert.False(t, IdleStatusReviewing.Terminal())
}

func TestParseWasteFilter(t *testing.T) {
	t.Run("defaults to open", func(t *testing.T) {
		f, err := ParseWasteFilter("", "", "")
		require.NoError(t, err)
		assert.Equal(t, []WasteStatus{WasteStatusOpen}, f.Statuses)
	})

	t.Run("all disables status", func(t *testing.T) {
		f, err := ParseWasteFilter("high,critical", "zombie", "all")
		require.NoError(t, err)
		assert.Empty(t, f.Statuses)
		assert.Equal(t, []Severity{SeverityHigh, SeverityCritical}, f.Severities)
		assert.Equal(t, []WasteType{WasteZombie}, f.WasteTypes)
	})

	t.Run("rejects unknown severity", func(t *testing.T) {
		_, err := ParseWasteFilter("urgent", "", "")
		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr)
		assert.Equal(t, "severity", inputErr.Field)
	})
}

func TestParseIdleFilter(t *testing.T) {
	f, err := ParseIdleFilter("")
	require.NoError(t, err)
	assert.Equal(t, []IdleStatus{IdleStatusActive, IdleStatusReviewing}, f.Statuses)

	_, err = ParseIdleFilter("sleeping")
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "status", inputErr.Field)
}

func TestUsageSampleValidate(t *testing.T) {
	base := UsageSample{ResourceID: "r-1", Timestamp: time.Now(), CPUUsage: 10, MemoryUsage: 20}
	require.NoError(t, base.Validate())

	bad := base
	bad.CPUUsage = 140
	var inputErr *InputError
	require.ErrorAs(t, bad.Validate(), &inputErr)
	assert.Equal(t, "cpu_usage", inputErr.Field)

	bad = base
	bad.NetworkOut = -1
	require.ErrorAs(t, bad.Validate(), &inputErr)
	assert.Equal(t, "network_out", inputErr.Field)
}

func TestResourceStoppedFor(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stoppedAt := now.Add(-45 * 24 * time.Hour)
	r := Resource{Status: ResourceStatusStopped, StoppedAt: &stoppedAt}
	assert.Equal(t, 45*24*time.Hour, r.StoppedFor(now))

	r.Status = ResourceStatusRunning
	assert.Zero(t, r.StoppedFor(now))
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Equal(t, -1, Severity("bogus").Rank())
}
