package aggregation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

// CacheScope is the data version bumped whenever cost records change.
const CacheScope = "costs"

// Cache stores encoded breakdowns keyed by query and data version.
type Cache interface {
	Version(ctx context.Context, scope string) (int64, error)
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
}

// Service answers cost queries from the store.
type Service struct {
	store  repository.CostReader
	cache  Cache
	policy config.AggregationPolicy
	logger *slog.Logger
}

// NewService creates a Service. cache may be nil.
func NewService(store repository.CostReader, cache Cache, policy config.AggregationPolicy, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, policy: policy, logger: logger}
}

// Result lists the records matching q and aggregates them.
func (s *Service) Result(ctx context.Context, q model.Query) (*Result, error) {
	records, err := s.store.ListCostRecords(ctx, q.Range, model.CostFilter{AccountID: q.AccountID, Category: q.Category})
	if err != nil {
		return nil, fmt.Errorf("listing cost records: %w", err)
	}
	return Aggregate(records, q), nil
}

// Costs returns the formatted breakdown for q, served from cache when possible. Cache
// failures are logged and otherwise ignored.
func (s *Service) Costs(ctx context.Context, q model.Query) (*model.CostBreakdown, error) {
	key, cached := s.cacheKey(ctx, q)
	if cached {
		var b model.CostBreakdown
		found, err := s.cache.GetJSON(ctx, key, &b)
		if err != nil {
			s.logger.Warn("cost cache read failed", "error", err)
		} else if found {
			return &b, nil
		}
	}

	r, err := s.Result(ctx, q)
	if err != nil {
		return nil, err
	}
	b := r.Breakdown(s.policy.TopServices)

	if cached {
		if err := s.cache.SetJSON(ctx, key, b); err != nil {
			s.logger.Warn("cost cache write failed", "error", err)
		}
	}
	return &b, nil
}

// Anomalies reports the anomalous days of q's range. The store is read from WindowDays
// before the range start so the first days of the range have a full baseline.
func (s *Service) Anomalies(ctx context.Context, q model.Query) (*model.AnomalyReport, error) {
	extended := q
	extended.Range.Start = q.Range.Start.AddDate(0, 0, -s.policy.Anomaly.WindowDays)
	r, err := s.Result(ctx, extended)
	if err != nil {
		return nil, err
	}

	report := &model.AnomalyReport{
		Start:     model.TruncateDay(q.Range.Start).Format(model.DateLayout),
		End:       model.TruncateDay(q.Range.End).Format(model.DateLayout),
		Anomalies: []model.CostAnomaly{},
	}
	for _, a := range Anomalies(r, s.policy.Anomaly) {
		if a.Date >= report.Start {
			report.Anomalies = append(report.Anomalies, a)
		}
	}
	report.Summary = SummarizeAnomalies(report.Anomalies)
	return report, nil
}

func (s *Service) cacheKey(ctx context.Context, q model.Query) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	v, err := s.cache.Version(ctx, CacheScope)
	if err != nil {
		s.logger.Warn("cost cache version unavailable", "error", err)
		return "", false
	}
	return fmt.Sprintf("yunwei:costs:v%d:%s:%s:%s:%s:%s", v,
		q.Range.Start.Format(model.DateLayout), q.Range.End.Format(model.DateLayout),
		q.AccountID, q.Category, q.Granularity), true
}
