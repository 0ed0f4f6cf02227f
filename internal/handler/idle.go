package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fredphp/yunwei/internal/model"
)

// IdleService tracks and manages idle findings.
type IdleService interface {
	Run(ctx context.Context, filter model.ResourceFilter) (*model.PassResult, error)
	List(ctx context.Context, filter model.IdleFilter) (*model.IdleReport, error)
	UpdateStatus(ctx context.Context, id string, status model.IdleStatus) (*model.IdleFinding, error)
}

type IdleHandler struct {
	svc IdleService
}

func NewIdleHandler(svc IdleService) *IdleHandler {
	return &IdleHandler{svc: svc}
}

// List handles GET /idle?status, active and reviewing by default.
func (h *IdleHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := model.ParseIdleFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.AccountID = r.URL.Query().Get("accountId")

	report, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// Run handles POST /idle/run.
func (h *IdleHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Run(r.Context(), model.ResourceFilter{AccountID: r.URL.Query().Get("accountId")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Update handles PATCH /idle/{id}.
func (h *IdleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	finding, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), model.IdleStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, finding)
}
