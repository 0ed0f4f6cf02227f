package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/terraform"
)

// ReportService renders findings reports.
type ReportService interface {
	WasteCSV(ctx context.Context, filter model.WasteFilter, w io.Writer) error
}

// PlanService renders remediation plans.
type PlanService interface {
	Plan(ctx context.Context, filter model.WasteFilter) (*terraform.Plan, error)
}

// ExportHandler handles downloads of waste findings.
type ExportHandler struct {
	reports ReportService
	plans   PlanService
	now     func() time.Time
}

func NewExportHandler(reports ReportService, plans PlanService) *ExportHandler {
	return &ExportHandler{reports: reports, plans: plans, now: time.Now}
}

func wasteFilter(r *http.Request) (model.WasteFilter, error) {
	q := r.URL.Query()
	filter, err := model.ParseWasteFilter(q.Get("severity"), q.Get("wasteType"), q.Get("status"))
	filter.AccountID = q.Get("accountId")
	return filter, err
}

// WasteCSV handles GET /waste/export.csv with the same filters as the list.
func (h *ExportHandler) WasteCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := wasteFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Render fully before writing so a store failure still gets a JSON error.
	var buf bytes.Buffer
	if err := h.reports.WasteCSV(r.Context(), filter, &buf); err != nil {
		writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("yunwei-waste-%s.csv", h.now().UTC().Format(model.DateLayout))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Remediation handles GET /waste/remediation.tf. With format=json the plan's steps are
// returned alongside the HCL.
func (h *ExportHandler) Remediation(w http.ResponseWriter, r *http.Request) {
	filter, err := wasteFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	plan, err := h.plans.Plan(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		WriteJSON(w, http.StatusOK, plan)
		return
	}
	filename := fmt.Sprintf("yunwei-remediation-%s.tf", h.now().UTC().Format(model.DateLayout))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(plan.HCL))
}
