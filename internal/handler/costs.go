package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/model"
)

// CostService answers aggregated cost queries.
type CostService interface {
	Costs(ctx context.Context, q model.Query) (*model.CostBreakdown, error)
	Anomalies(ctx context.Context, q model.Query) (*model.AnomalyReport, error)
}

// CostHandler handles cost breakdown requests.
type CostHandler struct {
	svc           CostService
	maxWindowDays int
	now           func() time.Time
}

func NewCostHandler(svc CostService, maxWindowDays int) *CostHandler {
	return &CostHandler{svc: svc, maxWindowDays: maxWindowDays, now: time.Now}
}

func (h *CostHandler) parse(r *http.Request) (model.Query, error) {
	q := r.URL.Query()
	return aggregation.ParseQuery(aggregation.QueryParams{
		Range:       q.Get("range"),
		Start:       q.Get("start"),
		End:         q.Get("end"),
		AccountID:   q.Get("accountId"),
		Category:    q.Get("category"),
		Granularity: q.Get("granularity"),
	}, h.now(), h.maxWindowDays)
}

// Get handles GET /costs?range=7d|30d|90d&start&end&accountId&category&granularity.
func (h *CostHandler) Get(w http.ResponseWriter, r *http.Request) {
	query, err := h.parse(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	breakdown, err := h.svc.Costs(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, breakdown)
}

// Anomalies handles GET /costs/anomalies with the same window parameters as Get.
func (h *CostHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	query, err := h.parse(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.svc.Anomalies(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
