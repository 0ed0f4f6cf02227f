package container

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/jobs"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

func testConfig() *config.Config {
	policy := config.DefaultPolicy()
	policy.Accounts = []model.CloudAccount{
		{ID: "acct-1", Name: "prod", Provider: model.CloudProviderAWS, Status: model.AccountStatusActive},
	}
	return &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}, WriteTimeout: time.Minute},
		Jobs:   config.JobsConfig{CostSyncSchedule: "0 0 * * * *"},
		Policy: policy,
	}
}

func newTestContainer(t *testing.T) (*Container, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewWithStore(context.Background(), testConfig(), store, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	return c, store
}

func TestNewWithStoreSyncsAccounts(t *testing.T) {
	_, store := newTestContainer(t)

	accounts, err := store.GetAccounts(context.Background(), model.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acct-1", accounts[0].ID)
}

func TestJobsRegisteredOnDemandWhenDisabled(t *testing.T) {
	c, _ := newTestContainer(t)

	registered := map[string]jobs.Job{}
	for _, j := range c.Scheduler().ListJobs() {
		registered[j.Name] = j
	}
	for _, name := range []string{JobCostSync, JobWaste, JobIdle, JobForecast, JobExport} {
		j, ok := registered[name]
		require.True(t, ok, name)
		assert.Empty(t, j.Schedule, name)
	}
}

func TestRunJobs(t *testing.T) {
	c, _ := newTestContainer(t)
	ctx := context.Background()

	for _, name := range []string{JobCostSync, JobWaste, JobIdle, JobForecast, JobExport} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, c.RunJob(ctx, name))
		})
	}
	assert.ErrorIs(t, c.RunJob(ctx, "nope"), jobs.ErrUnknownJob)
}

func TestRouter(t *testing.T) {
	c, _ := newTestContainer(t)
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/api/v1/accounts", http.StatusOK},
		{"/api/v1/waste", http.StatusOK},
		{"/api/v1/idle", http.StatusOK},
		{"/api/v1/costs?range=7d", http.StatusOK},
		{"/api/v1/costs?range=bogus", http.StatusUnprocessableEntity},
		{"/api/v1/costs?range=90d&granularity=week", http.StatusOK},
		{"/api/v1/costs/anomalies?range=30d", http.StatusOK},
		{"/api/v1/resources/missing/usage", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
