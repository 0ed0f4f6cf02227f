// Package ingest copies raw cost and inventory facts into the store, either pulled from
// cloud providers on a schedule or pushed by clients in batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/provider"
	"github.com/fredphp/yunwei/internal/repository"
)

// MaxBatch bounds a single pushed batch.
const MaxBatch = 10000

// Store is the part of the store ingestion writes to.
type Store interface {
	repository.AccountReader
	repository.ResourceReader
	repository.IngestRepository
}

// Versioner invalidates cached results derived from a data scope.
type Versioner interface {
	Bump(ctx context.Context, scope string) error
}

// Result summarizes a provider sync.
type Result struct {
	Accounts    int      `json:"accounts"`
	Resources   int      `json:"resources"`
	CostRecords int      `json:"cost_records"`
	Skipped     []string `json:"skipped,omitempty"`
	Failed      []string `json:"failed,omitempty"`
}

// Service writes raw facts.
type Service struct {
	store     Store
	providers *provider.Registry
	cache     Versioner
	accounts  []model.CloudAccount
	syncDays  int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. accounts are the tracked accounts from the policy file;
// providers and cache may be nil.
func NewService(store Store, providers *provider.Registry, cache Versioner, accounts []model.CloudAccount, syncDays int, logger *slog.Logger) *Service {
	if syncDays <= 0 {
		syncDays = 35
	}
	return &Service{
		store:     store,
		providers: providers,
		cache:     cache,
		accounts:  accounts,
		syncDays:  syncDays,
		logger:    logger,
		now:       time.Now,
	}
}

// SyncAccounts writes the configured accounts to the store.
func (s *Service) SyncAccounts(ctx context.Context) error {
	if len(s.accounts) == 0 {
		return nil
	}
	if err := s.store.UpsertAccounts(ctx, s.accounts); err != nil {
		return fmt.Errorf("saving configured accounts: %w", err)
	}
	s.logger.Info("configured accounts synced", "accounts", len(s.accounts))
	return nil
}

// Sync pulls inventory and the trailing window of daily costs for every active account.
// A provider failure skips that account; a store failure aborts the pass.
func (s *Service) Sync(ctx context.Context) (*Result, error) {
	if err := s.SyncAccounts(ctx); err != nil {
		return nil, err
	}
	accounts, err := s.store.GetAccounts(ctx, model.AccountFilter{Status: model.AccountStatusActive})
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	today := model.TruncateDay(s.now())
	window := model.DateRange{Start: today.AddDate(0, 0, -s.syncDays), End: today}

	res := &Result{}
	for _, account := range accounts {
		var prov provider.Provider
		ok := false
		if s.providers != nil {
			prov, ok = s.providers.Get(account.Provider)
		}
		if !ok {
			s.logger.Info("no provider configured, skipping account", "account", account.AccountID, "provider", account.Provider)
			res.Skipped = append(res.Skipped, account.ID)
			continue
		}

		resources, records, err := fetch(ctx, prov, account, window)
		if err != nil {
			s.logger.Error("provider sync failed", "account", account.AccountID, "provider", account.Provider, "error", err)
			res.Failed = append(res.Failed, account.ID)
			continue
		}

		if err := s.store.UpsertResources(ctx, resources); err != nil {
			return nil, fmt.Errorf("saving resources of %s: %w", account.ID, err)
		}
		if err := s.store.UpsertCostRecords(ctx, records); err != nil {
			return nil, fmt.Errorf("saving cost records of %s: %w", account.ID, err)
		}
		res.Accounts++
		res.Resources += len(resources)
		res.CostRecords += len(records)
	}

	if res.CostRecords > 0 {
		s.invalidate(ctx)
	}
	s.logger.Info("provider sync completed",
		"accounts", res.Accounts,
		"resources", res.Resources,
		"cost_records", res.CostRecords,
		"failed", len(res.Failed),
	)
	return res, nil
}

func fetch(ctx context.Context, prov provider.Provider, account model.CloudAccount, window model.DateRange) ([]model.Resource, []model.CostRecord, error) {
	resources, err := prov.FetchResources(ctx, account)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching resources: %w", err)
	}
	records, err := prov.FetchCosts(ctx, account, window)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching costs: %w", err)
	}
	return resources, records, nil
}

// CostRecords validates and stores a pushed batch. Nothing is written if any record is
// invalid. Records with a source key replace the earlier record with that key.
func (s *Service) CostRecords(ctx context.Context, records []model.CostRecord) (int, error) {
	if err := checkBatch("records", len(records)); err != nil {
		return 0, err
	}
	known, err := s.accountIDs(ctx)
	if err != nil {
		return 0, err
	}

	out := make([]model.CostRecord, len(records))
	for i, r := range records {
		if r.Category == "" {
			r.Category = provider.CategoryFor(r.Service)
		}
		if r.Currency == "" {
			r.Currency = model.CurrencyUSD
		}
		r.Date = model.TruncateDay(r.Date)
		if err := r.Validate(); err != nil {
			return 0, indexed("records", i, err)
		}
		if !known[r.AccountID] {
			return 0, model.NewInputError(fmt.Sprintf("records[%d].account_id", i), r.AccountID, "unknown account")
		}
		if r.ID == "" {
			if r.SourceKey != "" {
				r.ID = model.StableID("cost", r.SourceKey)
			} else {
				r.ID = model.NewID()
			}
		}
		out[i] = r
	}

	if err := s.store.UpsertCostRecords(ctx, out); err != nil {
		return 0, fmt.Errorf("saving cost records: %w", err)
	}
	s.invalidate(ctx)
	return len(out), nil
}

// UsageSamples validates and stores a pushed batch of samples. A sample's id derives from
// its resource and timestamp, so re-sending a batch stores nothing new.
func (s *Service) UsageSamples(ctx context.Context, samples []model.UsageSample) (int, error) {
	if err := checkBatch("samples", len(samples)); err != nil {
		return 0, err
	}

	out := make([]model.UsageSample, len(samples))
	seen := make(map[string]bool)
	for i, sample := range samples {
		sample.Timestamp = sample.Timestamp.UTC()
		if err := sample.Validate(); err != nil {
			return 0, indexed("samples", i, err)
		}
		if !seen[sample.ResourceID] {
			if _, err := s.store.GetResource(ctx, sample.ResourceID); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return 0, model.NewInputError(fmt.Sprintf("samples[%d].resource_id", i), sample.ResourceID, "unknown resource")
				}
				return 0, fmt.Errorf("looking up resource %s: %w", sample.ResourceID, err)
			}
			seen[sample.ResourceID] = true
		}
		if sample.ID == "" {
			sample.ID = model.StableID("sample", sample.ResourceID, sample.Timestamp.Format(time.RFC3339Nano))
		}
		out[i] = sample
	}

	if err := s.store.InsertUsageSamples(ctx, out); err != nil {
		return 0, fmt.Errorf("saving usage samples: %w", err)
	}
	return len(out), nil
}

func (s *Service) accountIDs(ctx context.Context) (map[string]bool, error) {
	accounts, err := s.store.GetAccounts(ctx, model.AccountFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	ids := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		ids[a.ID] = true
	}
	return ids, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, aggregation.CacheScope); err != nil {
		s.logger.Warn("cost cache invalidation failed", "error", err)
	}
}

func checkBatch(field string, n int) error {
	switch {
	case n == 0:
		return model.NewInputError(field, "", "must not be empty")
	case n > MaxBatch:
		return model.NewInputError(field, fmt.Sprint(n), fmt.Sprintf("at most %d per batch", MaxBatch))
	}
	return nil
}

// indexed prefixes an input error's field with the batch position.
func indexed(field string, i int, err error) error {
	var in *model.InputError
	if errors.As(err, &in) {
		return model.NewInputError(fmt.Sprintf("%s[%d].%s", field, i, in.Field), in.Value, in.Reason)
	}
	return err
}
