package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fredphp/yunwei/internal/model"
)

// MemoryStore is an in-process Store with the same upsert rules as PostgresStore. It backs
// tests and dry runs.
type MemoryStore struct {
	mu sync.RWMutex

	// FailWrites, when set, is returned by every write and nothing is stored.
	FailWrites error

	accounts    map[string]model.CloudAccount
	resources   map[string]model.Resource
	samples     map[string][]model.UsageSample
	costs       []model.CostRecord
	waste       map[string]model.WasteFinding // by resource
	idle        map[string]model.IdleFinding  // by resource
	predictions map[string][]model.CostPrediction
	alerts      map[string]model.BudgetAlert // by account/period
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]model.CloudAccount),
		resources:   make(map[string]model.Resource),
		samples:     make(map[string][]model.UsageSample),
		waste:       make(map[string]model.WasteFinding),
		idle:        make(map[string]model.IdleFinding),
		predictions: make(map[string][]model.CostPrediction),
		alerts:      make(map[string]model.BudgetAlert),
	}
}

func (m *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) writeErr(op string) error {
	if m.FailWrites != nil {
		return &StoreError{Op: op, Err: m.FailWrites}
	}
	return nil
}

func (m *MemoryStore) ListCostRecords(_ context.Context, dateRange model.DateRange, filter model.CostFilter) ([]model.CostRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CostRecord
	for _, r := range m.costs {
		if !dateRange.Contains(r.Date) {
			continue
		}
		if filter.AccountID != "" && r.AccountID != filter.AccountID {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStore) ListResources(_ context.Context, filter model.ResourceFilter) ([]model.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Resource
	for _, r := range m.resources {
		if filter.AccountID != "" && r.AccountID != filter.AccountID {
			continue
		}
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, r.ID) {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetResource(_ context.Context, id string) (*model.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ListUsageSamples(_ context.Context, resourceID string, limit int, mostRecentFirst bool) ([]model.UsageSample, error) {
	m.mu.RLock()
	all := slices.Clone(m.samples[resourceID])
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	if !mostRecentFirst {
		slices.Reverse(all)
	}
	return all, nil
}

func (m *MemoryStore) GetAccounts(_ context.Context, filter model.AccountFilter) ([]model.CloudAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CloudAccount
	for _, a := range m.accounts {
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, a.ID) {
			continue
		}
		if filter.Provider != "" && a.Provider != filter.Provider {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListWasteFindings(_ context.Context, filter model.WasteFilter) ([]model.WasteFinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.WasteFinding
	for _, f := range m.waste {
		if filter.AccountID != "" && f.AccountID != filter.AccountID {
			continue
		}
		if len(filter.ResourceIDs) > 0 && !slices.Contains(filter.ResourceIDs, f.ResourceID) {
			continue
		}
		if len(filter.Severities) > 0 && !slices.Contains(filter.Severities, f.Severity) {
			continue
		}
		if len(filter.WasteTypes) > 0 && !slices.Contains(filter.WasteTypes, f.WasteType) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, f.Status) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetWasteFinding(_ context.Context, id string) (*model.WasteFinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.waste {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *MemoryStore) UpsertWasteFindings(_ context.Context, findings []model.WasteFinding) error {
	if err := m.writeErr("upsert waste findings"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range findings {
		if prior, ok := m.waste[f.ResourceID]; ok {
			f.ID = prior.ID
			f.Status = prior.Status
			f.DetectedAt = prior.DetectedAt
			f.ResolvedAt = prior.ResolvedAt
		}
		m.waste[f.ResourceID] = f
	}
	return nil
}

func (m *MemoryStore) UpdateWasteStatus(_ context.Context, id string, status model.WasteStatus, resolvedAt *time.Time, updatedAt time.Time) error {
	if err := m.writeErr("update waste status"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, f := range m.waste {
		if f.ID == id {
			f.Status = status
			if resolvedAt != nil {
				f.ResolvedAt = resolvedAt
			}
			f.UpdatedAt = updatedAt
			m.waste[k] = f
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *MemoryStore) ListIdleFindings(_ context.Context, filter model.IdleFilter) ([]model.IdleFinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.IdleFinding
	for _, f := range m.idle {
		if filter.AccountID != "" && f.AccountID != filter.AccountID {
			continue
		}
		if len(filter.ResourceIDs) > 0 && !slices.Contains(filter.ResourceIDs, f.ResourceID) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, f.Status) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetIdleFinding(_ context.Context, id string) (*model.IdleFinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.idle {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *MemoryStore) UpsertIdleFindings(_ context.Context, findings []model.IdleFinding) error {
	if err := m.writeErr("upsert idle findings"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range findings {
		if prior, ok := m.idle[f.ResourceID]; ok {
			if prior.Status.Terminal() {
				continue
			}
			f.ID = prior.ID
			f.Status = prior.Status
			f.DetectedAt = prior.DetectedAt
		}
		m.idle[f.ResourceID] = f
	}
	return nil
}

func (m *MemoryStore) UpdateIdleStatus(_ context.Context, id string, status model.IdleStatus, updatedAt time.Time) error {
	if err := m.writeErr("update idle status"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, f := range m.idle {
		if f.ID == id {
			f.Status = status
			f.UpdatedAt = updatedAt
			m.idle[k] = f
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *MemoryStore) ListPredictions(_ context.Context, filter model.PredictionFilter) ([]model.CostPrediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CostPrediction
	for accountID, preds := range m.predictions {
		if filter.AccountID != "" && accountID != filter.AccountID {
			continue
		}
		out = append(out, preds...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PredictionMonth != out[j].PredictionMonth {
			return out[i].PredictionMonth < out[j].PredictionMonth
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out, nil
}

func (m *MemoryStore) ListBudgetAlerts(_ context.Context, filter model.AlertFilter) ([]model.BudgetAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.BudgetAlert
	for _, a := range m.alerts {
		if filter.AccountID != "" && a.AccountID != filter.AccountID {
			continue
		}
		if filter.Period != "" && a.Period != filter.Period {
			continue
		}
		if filter.Unacknowledged && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) SaveForecast(_ context.Context, predictions map[string][]model.CostPrediction, alerts []model.BudgetAlert) error {
	if err := m.writeErr("save forecast"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for accountID, preds := range predictions {
		m.predictions[accountID] = slices.Clone(preds)
	}
	for _, a := range alerts {
		key := a.AccountID + "/" + a.Period
		if prior, ok := m.alerts[key]; ok {
			a.ID = prior.ID
			a.CreatedAt = prior.CreatedAt
			a.Acknowledged = prior.Acknowledged || a.Acknowledged
		}
		m.alerts[key] = a
	}
	return nil
}

func (m *MemoryStore) AcknowledgeBudgetAlert(_ context.Context, id string, at time.Time) error {
	if err := m.writeErr("acknowledge budget alert"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, a := range m.alerts {
		if a.ID == id {
			a.Acknowledged = true
			a.UpdatedAt = at
			m.alerts[k] = a
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *MemoryStore) UpsertAccounts(_ context.Context, accounts []model.CloudAccount) error {
	if err := m.writeErr("upsert accounts"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return nil
}

func (m *MemoryStore) UpsertResources(_ context.Context, resources []model.Resource) error {
	if err := m.writeErr("upsert resources"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range resources {
		m.resources[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) UpsertCostRecords(_ context.Context, records []model.CostRecord) error {
	if err := m.writeErr("upsert cost records"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if r.SourceKey != "" {
			if i := slices.IndexFunc(m.costs, func(c model.CostRecord) bool { return c.SourceKey == r.SourceKey }); i >= 0 {
				m.costs[i].Cost = r.Cost
				m.costs[i].UsageQuantity = r.UsageQuantity
				m.costs[i].UsageUnit = r.UsageUnit
				continue
			}
		}
		m.costs = append(m.costs, r)
	}
	return nil
}

func (m *MemoryStore) InsertUsageSamples(_ context.Context, samples []model.UsageSample) error {
	if err := m.writeErr("insert usage samples"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range samples {
		if slices.ContainsFunc(m.samples[s.ResourceID], func(x model.UsageSample) bool { return x.ID == s.ID }) {
			continue
		}
		m.samples[s.ResourceID] = append(m.samples[s.ResourceID], s)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*PostgresStore)(nil)
