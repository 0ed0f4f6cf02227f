package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/repository"
)

// Store is the data the forecaster reads and writes.
type Store interface {
	repository.AccountReader
	repository.CostReader
	repository.ForecastRepository
}

// Notifier announces new and escalated budget alerts.
type Notifier interface {
	SendBudgetAlert(ctx context.Context, alert model.BudgetAlert, account model.CloudAccount) error
}

type Service struct {
	store    Store
	notifier Notifier
	policy   config.ForecastPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(store Store, notifier Notifier, policy config.ForecastPolicy, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run forecasts every active account and evaluates its budget alert. Predictions replace the
// previous ones per account; predictions and alerts are saved in one transaction.
func (s *Service) Run(ctx context.Context) (*model.ForecastResult, error) {
	now := s.now()
	accounts, err := s.store.GetAccounts(ctx, model.AccountFilter{Status: model.AccountStatusActive})
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	result := &model.ForecastResult{Accounts: len(accounts)}
	if len(accounts) == 0 {
		return result, nil
	}

	_, series := Window(now, s.policy)
	records, err := s.store.ListCostRecords(ctx, series, model.CostFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing cost records: %w", err)
	}
	period := model.MonthStart(now).Format(model.MonthLayout)
	existing, err := s.store.ListBudgetAlerts(ctx, model.AlertFilter{Period: period})
	if err != nil {
		return nil, fmt.Errorf("listing budget alerts: %w", err)
	}
	prior := make(map[string]*model.BudgetAlert, len(existing))
	for i := range existing {
		prior[existing[i].AccountID] = &existing[i]
	}

	predictions := make(map[string][]model.CostPrediction, len(accounts))
	var alerts []model.BudgetAlert
	type pending struct {
		alert   model.BudgetAlert
		account model.CloudAccount
	}
	var announce []pending

	for _, account := range accounts {
		daily := aggregation.Aggregate(records, model.Query{Range: series, AccountID: account.ID})
		h := Split(daily, now, s.policy)

		preds := Predict(account, h, s.policy, now)
		predictions[account.ID] = preds
		result.Predictions += len(preds)

		fresh, ok := AlertFor(account, h.MonthToDate, s.policy, now)
		if !ok {
			continue
		}
		merged, notify := MergeAlert(prior[account.ID], fresh)
		alerts = append(alerts, merged)
		if prior[account.ID] == nil {
			result.NewAlerts++
		}
		if notify {
			announce = append(announce, pending{merged, account})
		}
	}
	result.Alerts = len(alerts)

	if err := s.store.SaveForecast(ctx, predictions, alerts); err != nil {
		return nil, fmt.Errorf("saving forecast: %w", err)
	}
	s.logger.Info("forecast pass complete",
		"accounts", result.Accounts, "predictions", result.Predictions, "alerts", result.Alerts, "new_alerts", result.NewAlerts)

	if s.notifier != nil {
		for _, p := range announce {
			if err := s.notifier.SendBudgetAlert(ctx, p.alert, p.account); err != nil {
				s.logger.Warn("budget alert not delivered", "alert_id", p.alert.ID, "account_id", p.account.ID, "error", err)
			}
		}
	}
	return result, nil
}

// List returns the stored predictions with their summary and each account's recent daily
// spend.
func (s *Service) List(ctx context.Context, filter model.PredictionFilter) (*model.PredictionReport, error) {
	preds, err := s.store.ListPredictions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	if preds == nil {
		preds = []model.CostPrediction{}
	}

	ids := make([]string, 0, len(preds))
	for _, p := range preds {
		ids = append(ids, p.AccountID)
	}
	trends := map[string][]model.DailyTrend{}
	if len(ids) > 0 {
		r := s.trendRange()
		records, err := s.store.ListCostRecords(ctx, r, model.CostFilter{AccountID: filter.AccountID})
		if err != nil {
			return nil, fmt.Errorf("listing cost records: %w", err)
		}
		trends = DailyTrends(records, ids, r)
	}
	return &model.PredictionReport{Predictions: preds, Summary: Summarize(preds), DailyTrends: trends}, nil
}

func (s *Service) trendRange() model.DateRange {
	today := model.TruncateDay(s.now())
	days := s.policy.TrendDays
	if days <= 0 {
		days = 30
	}
	return model.DateRange{Start: today.AddDate(0, 0, 1-days), End: today}
}

// Alerts lists budget alerts, newest first.
func (s *Service) Alerts(ctx context.Context, filter model.AlertFilter) ([]model.BudgetAlert, error) {
	alerts, err := s.store.ListBudgetAlerts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing budget alerts: %w", err)
	}
	if alerts == nil {
		alerts = []model.BudgetAlert{}
	}
	return alerts, nil
}

// Acknowledge marks an alert acknowledged. Acknowledging twice is not an error.
func (s *Service) Acknowledge(ctx context.Context, id string) error {
	if id == "" {
		return model.NewInputError("id", id, "is required")
	}
	return s.store.AcknowledgeBudgetAlert(ctx, id, s.now())
}
