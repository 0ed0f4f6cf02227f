package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
	"github.com/fredphp/yunwei/internal/terraform"
)

type mockCosts struct{ mock.Mock }

func (m *mockCosts) Costs(ctx context.Context, q model.Query) (*model.CostBreakdown, error) {
	args := m.Called(ctx, q)
	b, _ := args.Get(0).(*model.CostBreakdown)
	return b, args.Error(1)
}

func (m *mockCosts) Anomalies(ctx context.Context, q model.Query) (*model.AnomalyReport, error) {
	args := m.Called(ctx, q)
	r, _ := args.Get(0).(*model.AnomalyReport)
	return r, args.Error(1)
}

type mockWaste struct{ mock.Mock }

func (m *mockWaste) Run(ctx context.Context, filter model.ResourceFilter) (*model.PassResult, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).(*model.PassResult)
	return res, args.Error(1)
}

func (m *mockWaste) List(ctx context.Context, filter model.WasteFilter) (*model.WasteReport, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).(*model.WasteReport)
	return res, args.Error(1)
}

func (m *mockWaste) UpdateStatus(ctx context.Context, id string, status model.WasteStatus) (*model.WasteFinding, error) {
	args := m.Called(ctx, id, status)
	res, _ := args.Get(0).(*model.WasteFinding)
	return res, args.Error(1)
}

type mockForecast struct{ mock.Mock }

func (m *mockForecast) Run(ctx context.Context) (*model.ForecastResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*model.ForecastResult)
	return res, args.Error(1)
}

func (m *mockForecast) List(ctx context.Context, filter model.PredictionFilter) (*model.PredictionReport, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).(*model.PredictionReport)
	return res, args.Error(1)
}

func (m *mockForecast) Alerts(ctx context.Context, filter model.AlertFilter) ([]model.BudgetAlert, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).([]model.BudgetAlert)
	return res, args.Error(1)
}

func (m *mockForecast) Acknowledge(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockIngest struct{ mock.Mock }

func (m *mockIngest) CostRecords(ctx context.Context, records []model.CostRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

func (m *mockIngest) UsageSamples(ctx context.Context, samples []model.UsageSample) (int, error) {
	args := m.Called(ctx, samples)
	return args.Int(0), args.Error(1)
}

type stubReports struct{ err error }

func (s stubReports) WasteCSV(_ context.Context, _ model.WasteFilter, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, "id,resource_id\nw1,r1\n")
	return err
}

type stubPlans struct{}

func (stubPlans) Plan(context.Context, model.WasteFilter) (*terraform.Plan, error) {
	return &terraform.Plan{HCL: "import {\n  to = aws_instance.web\n  id = \"i-1\"\n}\n", Steps: []terraform.Step{}}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newRouter(s Services) http.Handler {
	return NewRouter(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestCostsRejectsUnknownRange(t *testing.T) {
	costs := &mockCosts{}
	h := newRouter(Services{Costs: costs, MaxWindowDays: 366})

	rec, body := do(t, h, http.MethodGet, "/api/v1/costs?range=2w", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "range", body["details"].(map[string]any)["field"])
	assert.NotEmpty(t, body["request_id"])
	costs.AssertNotCalled(t, "Costs", mock.Anything, mock.Anything)
}

func TestCostsPassesQuery(t *testing.T) {
	costs := &mockCosts{}
	costs.On("Costs", mock.Anything, mock.MatchedBy(func(q model.Query) bool {
		return q.AccountID == "acc-1" && q.Category == model.CategoryCompute &&
			q.Range.Start.Format(model.DateLayout) == "2024-06-01" && q.Range.End.Format(model.DateLayout) == "2024-06-07"
	})).Return(&model.CostBreakdown{Total: 35.01, TrendPercent: "0"}, nil)
	h := newRouter(Services{Costs: costs, MaxWindowDays: 366})

	rec, body := do(t, h, http.MethodGet, "/api/v1/costs?start=2024-06-01&end=2024-06-07&accountId=acc-1&category=compute", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 35.01, body["total"])
	assert.Equal(t, "0", body["trend_percent"])
	costs.AssertExpectations(t)
}

func TestCostsGranularity(t *testing.T) {
	costs := &mockCosts{}
	costs.On("Costs", mock.Anything, mock.MatchedBy(func(q model.Query) bool {
		return q.Granularity == model.GranularityMonth
	})).Return(&model.CostBreakdown{Granularity: model.GranularityMonth}, nil)
	h := newRouter(Services{Costs: costs, MaxWindowDays: 366})

	rec, body := do(t, h, http.MethodGet, "/api/v1/costs?range=90d&granularity=month", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "month", body["granularity"])

	rec, body = do(t, h, http.MethodGet, "/api/v1/costs?granularity=hour", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "granularity", body["details"].(map[string]any)["field"])
	costs.AssertNumberOfCalls(t, "Costs", 1)
}

func TestCostAnomalies(t *testing.T) {
	costs := &mockCosts{}
	costs.On("Anomalies", mock.Anything, mock.MatchedBy(func(q model.Query) bool {
		return q.AccountID == "acc-1" && len(q.Range.Days()) == 30
	})).Return(&model.AnomalyReport{
		Anomalies: []model.CostAnomaly{{Date: "2024-06-08", ActualCost: 300, ExpectedCost: 100, Type: model.AnomalySpike, Severity: model.SeverityCritical}},
		Summary:   model.AnomalySummary{Total: 1, Spikes: 1},
	}, nil)
	h := newRouter(Services{Costs: costs, MaxWindowDays: 366})

	rec, body := do(t, h, http.MethodGet, "/api/v1/costs/anomalies?range=30d&accountId=acc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	anomalies := body["anomalies"].([]any)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "spike", anomalies[0].(map[string]any)["type"])

	rec, _ = do(t, h, http.MethodGet, "/api/v1/costs/anomalies?range=1y", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	costs.AssertExpectations(t)
}

func TestWasteList(t *testing.T) {
	waste := &mockWaste{}
	waste.On("List", mock.Anything, model.WasteFilter{
		Severities: []model.Severity{model.SeverityHigh},
		Statuses:   []model.WasteStatus{model.WasteStatusOpen},
	}).Return(&model.WasteReport{Findings: []model.WasteFinding{{ID: "w1"}}}, nil)
	h := newRouter(Services{Waste: waste})

	rec, body := do(t, h, http.MethodGet, "/api/v1/waste?severity=high", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["findings"], 1)
	waste.AssertExpectations(t)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/waste?wasteType=idle", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWasteUpdate(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"backwards", fmt.Errorf("resolved -> open: %w", model.ErrInvalidTransition), http.StatusConflict},
		{"missing", fmt.Errorf("waste finding w9: %w", model.ErrNotFound), http.StatusNotFound},
		{"store down", &repository.StoreError{Op: "update", Err: errors.New("reset")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			waste := &mockWaste{}
			var finding *model.WasteFinding
			if tt.err == nil {
				finding = &model.WasteFinding{ID: "w1", Status: model.WasteStatusAcknowledged}
			}
			waste.On("UpdateStatus", mock.Anything, "w1", model.WasteStatusAcknowledged).Return(finding, tt.err)
			h := newRouter(Services{Waste: waste})

			rec, body := do(t, h, http.MethodPatch, "/api/v1/waste/w1", `{"status":"acknowledged"}`)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, true, body["retryable"])
			}
			waste.AssertExpectations(t)
		})
	}
}

func TestWasteUpdateRejectsBadBody(t *testing.T) {
	waste := &mockWaste{}
	h := newRouter(Services{Waste: waste})

	rec, body := do(t, h, http.MethodPatch, "/api/v1/waste/w1", `{"state":"resolved"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", body["code"])
	waste.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestWasteRunScopesToAccount(t *testing.T) {
	waste := &mockWaste{}
	waste.On("Run", mock.Anything, model.ResourceFilter{AccountID: "acc-1"}).
		Return(&model.PassResult{Examined: 3, Flagged: 1, Created: 1}, nil)
	h := newRouter(Services{Waste: waste})

	rec, body := do(t, h, http.MethodPost, "/api/v1/waste/run?accountId=acc-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, body["examined"])
	waste.AssertExpectations(t)
}

func TestAlerts(t *testing.T) {
	forecast := &mockForecast{}
	forecast.On("Alerts", mock.Anything, model.AlertFilter{Unacknowledged: true, Limit: 5}).
		Return([]model.BudgetAlert{{ID: "a1"}}, nil)
	forecast.On("Acknowledge", mock.Anything, "a1").Return(nil)
	forecast.On("Acknowledge", mock.Anything, "a9").Return(fmt.Errorf("alert a9: %w", model.ErrNotFound))
	h := newRouter(Services{Forecast: forecast})

	rec, body := do(t, h, http.MethodGet, "/api/v1/alerts?unacknowledged=true&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["count"])

	rec, _ = do(t, h, http.MethodGet, "/api/v1/alerts?limit=-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/v1/alerts/a1/acknowledge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["acknowledged"])

	rec, _ = do(t, h, http.MethodPost, "/api/v1/alerts/a9/acknowledge", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	forecast.AssertExpectations(t)
}

func TestPostCostRecords(t *testing.T) {
	ingest := &mockIngest{}
	ingest.On("CostRecords", mock.Anything, mock.MatchedBy(func(rs []model.CostRecord) bool {
		return len(rs) == 2 && rs[0].Cost == 10 && rs[1].Service == "RDS"
	})).Return(2, nil)
	h := newRouter(Services{Ingest: ingest})

	rec, body := do(t, h, http.MethodPost, "/api/v1/costs/records", `{"records":[
		{"account_id":"acc-1","date":"2024-06-01T00:00:00Z","category":"compute","service":"EC2","cost":10},
		{"account_id":"acc-1","date":"2024-06-01T00:00:00Z","category":"database","service":"RDS","cost":20.005}
	]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2.0, body["accepted"])
	ingest.AssertExpectations(t)
}

func TestPostUsageValidationError(t *testing.T) {
	ingest := &mockIngest{}
	ingest.On("UsageSamples", mock.Anything, mock.Anything).
		Return(0, model.NewInputError("samples[0].cpu_usage", "140", "must be between 0 and 100"))
	h := newRouter(Services{Ingest: ingest})

	rec, body := do(t, h, http.MethodPost, "/api/v1/usage", `{"samples":[{"resource_id":"r1","timestamp":"2024-06-01T00:00:00Z","cpu_usage":140}]}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "samples[0].cpu_usage", body["details"].(map[string]any)["field"])
}

func TestExports(t *testing.T) {
	h := newRouter(Services{Reports: stubReports{}, Plans: stubPlans{}})

	rec, _ := do(t, h, http.MethodGet, "/api/v1/waste/export.csv?status=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "yunwei-waste-")
	assert.Equal(t, "id,resource_id\nw1,r1\n", rec.Body.String())

	rec, _ = do(t, h, http.MethodGet, "/api/v1/waste/remediation.tf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "to = aws_instance.web")

	rec, body := do(t, h, http.MethodGet, "/api/v1/waste/remediation.tf?format=json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["hcl"], "aws_instance.web")

	failing := newRouter(Services{Reports: stubReports{err: &repository.StoreError{Op: "list", Err: errors.New("reset")}}})
	rec, _ = do(t, failing, http.MethodGet, "/api/v1/waste/export.csv", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestResources(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.UpsertResources(ctx, []model.Resource{
		{ID: "r1", AccountID: "acc-1", Category: model.CategoryCompute, Status: model.ResourceStatusRunning},
		{ID: "r2", AccountID: "acc-1", Category: model.CategoryStorage, Status: model.ResourceStatusStopped},
	}))
	h := newRouter(Services{Inventory: store})

	rec, body := do(t, h, http.MethodGet, "/api/v1/resources?status=stopped", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["count"])

	rec, _ = do(t, h, http.MethodGet, "/api/v1/resources?status=paused", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/resources/r9/usage", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newRouter(Services{Store: pinger{}}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	rec, body = do(t, newRouter(Services{Store: pinger{err: errors.New("dial tcp: refused")}}), http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
}
