package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fredphp/yunwei/internal/model"
)

// ForecastService produces predictions and manages budget alerts.
type ForecastService interface {
	Run(ctx context.Context) (*model.ForecastResult, error)
	List(ctx context.Context, filter model.PredictionFilter) (*model.PredictionReport, error)
	Alerts(ctx context.Context, filter model.AlertFilter) ([]model.BudgetAlert, error)
	Acknowledge(ctx context.Context, id string) error
}

// ForecastHandler handles prediction and budget alert requests.
type ForecastHandler struct {
	svc ForecastService
}

func NewForecastHandler(svc ForecastService) *ForecastHandler {
	return &ForecastHandler{svc: svc}
}

// List handles GET /predictions?accountId.
func (h *ForecastHandler) List(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.List(r.Context(), model.PredictionFilter{AccountID: r.URL.Query().Get("accountId")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// Run handles POST /predictions/run.
func (h *ForecastHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Alerts handles GET /alerts?accountId&period&unacknowledged&limit.
func (h *ForecastHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.AlertFilter{AccountID: q.Get("accountId"), Period: q.Get("period")}
	if s := q.Get("unacknowledged"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, r, model.NewInputError("unacknowledged", s, "must be true or false"))
			return
		}
		filter.Unacknowledged = b
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.Limit = limit

	alerts, err := h.svc.Alerts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// Acknowledge handles POST /alerts/{id}/acknowledge.
func (h *ForecastHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Acknowledge(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "acknowledged": true})
}
