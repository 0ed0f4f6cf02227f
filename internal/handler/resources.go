package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fredphp/yunwei/internal/model"
)

// Inventory reads accounts and resources.
type Inventory interface {
	GetAccounts(ctx context.Context, filter model.AccountFilter) ([]model.CloudAccount, error)
	ListResources(ctx context.Context, filter model.ResourceFilter) ([]model.Resource, error)
	GetResource(ctx context.Context, id string) (*model.Resource, error)
}

// UsageService returns a resource's recent samples with their averages.
type UsageService interface {
	ForResource(ctx context.Context, resource model.Resource, limit int) (*model.ResourceUsage, error)
}

// IngestService stores pushed batches of raw facts.
type IngestService interface {
	CostRecords(ctx context.Context, records []model.CostRecord) (int, error)
	UsageSamples(ctx context.Context, samples []model.UsageSample) (int, error)
}

// resourceUsageSamples is how many samples the usage view returns.
const resourceUsageSamples = 24

// ResourceHandler serves the inventory and accepts raw fact batches.
type ResourceHandler struct {
	inventory Inventory
	usage     UsageService
	ingest    IngestService
}

func NewResourceHandler(inventory Inventory, usage UsageService, ingest IngestService) *ResourceHandler {
	return &ResourceHandler{inventory: inventory, usage: usage, ingest: ingest}
}

// Accounts handles GET /accounts.
func (h *ResourceHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.inventory.GetAccounts(r.Context(), model.AccountFilter{
		Provider: model.CloudProvider(r.URL.Query().Get("provider")),
		Status:   model.AccountStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []model.CloudAccount{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"accounts": accounts, "count": len(accounts)})
}

// List handles GET /resources?accountId&category&status.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category, err := model.ParseCategory("category", q.Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := model.ResourceStatus(q.Get("status"))
	if status != "" && status != model.ResourceStatusRunning && status != model.ResourceStatusStopped {
		writeError(w, r, model.NewInputError("status", string(status), "must be running or stopped"))
		return
	}

	resources, err := h.inventory.ListResources(r.Context(), model.ResourceFilter{
		AccountID: q.Get("accountId"),
		Category:  category,
		Status:    status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resources == nil {
		resources = []model.Resource{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"resources": resources, "count": len(resources)})
}

// Usage handles GET /resources/{id}/usage.
func (h *ResourceHandler) Usage(w http.ResponseWriter, r *http.Request) {
	resource, err := h.inventory.GetResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", resourceUsageSamples)
	if err != nil {
		writeError(w, r, err)
		return
	}

	usage, err := h.usage.ForResource(r.Context(), *resource, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, usage)
}

// PostUsage handles POST /usage with {"samples": [...]}.
func (h *ResourceHandler) PostUsage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Samples []model.UsageSample `json:"samples"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.ingest.UsageSamples(r.Context(), req.Samples)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]int{"accepted": n})
}

// PostCostRecords handles POST /costs/records with {"records": [...]}.
func (h *ResourceHandler) PostCostRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []model.CostRecord `json:"records"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.ingest.CostRecords(r.Context(), req.Records)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]int{"accepted": n})
}
