package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fredphp/yunwei/internal/model"
)

// WasteService detects and manages waste findings.
type WasteService interface {
	Run(ctx context.Context, filter model.ResourceFilter) (*model.PassResult, error)
	List(ctx context.Context, filter model.WasteFilter) (*model.WasteReport, error)
	UpdateStatus(ctx context.Context, id string, status model.WasteStatus) (*model.WasteFinding, error)
}

// WasteHandler handles waste finding requests.
type WasteHandler struct {
	svc WasteService
}

func NewWasteHandler(svc WasteService) *WasteHandler {
	return &WasteHandler{svc: svc}
}

// List handles GET /waste?severity&wasteType&status.
func (h *WasteHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := model.ParseWasteFilter(q.Get("severity"), q.Get("wasteType"), q.Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.AccountID = q.Get("accountId")

	report, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// Run handles POST /waste/run, a detection pass over every resource or one account's.
func (h *WasteHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Run(r.Context(), model.ResourceFilter{AccountID: r.URL.Query().Get("accountId")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Update handles PATCH /waste/{id} with a {"status": ...} body.
func (h *WasteHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	finding, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), model.WasteStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, finding)
}
