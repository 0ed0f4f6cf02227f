package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/fredphp/yunwei/internal/model"
)

func (s *PostgresStore) ListPredictions(ctx context.Context, filter model.PredictionFilter) ([]model.CostPrediction, error) {
	var c conditions
	if filter.AccountID != "" {
		c.eq("account_id", filter.AccountID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, provider, prediction_month, predicted_cost, base_cost, budget, budget_utilization,
			over_budget, budget_gap, confidence, trend, factors, generated_at
		FROM cost_predictions`+c.where()+` ORDER BY prediction_month, account_id`, c.args...)
	if err != nil {
		return nil, wrapErr("list predictions", err)
	}
	defer rows.Close()

	var predictions []model.CostPrediction
	for rows.Next() {
		var p model.CostPrediction
		var budget sql.NullFloat64
		var factorsJSON []byte
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Provider, &p.PredictionMonth, &p.PredictedCost, &p.BaseCost,
			&budget, &p.BudgetUtilization, &p.OverBudget, &p.BudgetGap, &p.Confidence, &p.Trend,
			&factorsJSON, &p.GeneratedAt); err != nil {
			return nil, wrapErr("list predictions", err)
		}
		p.Budget = floatPtr(budget)
		if len(factorsJSON) > 0 {
			if err := json.Unmarshal(factorsJSON, &p.Factors); err != nil {
				return nil, fmt.Errorf("decode factors of %s: %w", p.ID, err)
			}
		}
		predictions = append(predictions, p)
	}
	return predictions, wrapErr("list predictions", rows.Err())
}

func (s *PostgresStore) ListBudgetAlerts(ctx context.Context, filter model.AlertFilter) ([]model.BudgetAlert, error) {
	var c conditions
	if filter.AccountID != "" {
		c.eq("account_id", filter.AccountID)
	}
	if filter.Period != "" {
		c.eq("period", filter.Period)
	}
	if filter.Unacknowledged {
		c.clauses = append(c.clauses, "acknowledged = FALSE")
	}

	query := `SELECT id, account_id, period, alert_type, threshold, current_spend, budget_amount, message,
			acknowledged, created_at, updated_at
		FROM budget_alerts` + c.where() + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, wrapErr("list budget alerts", err)
	}
	defer rows.Close()

	var alerts []model.BudgetAlert
	for rows.Next() {
		var a model.BudgetAlert
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Period, &a.AlertType, &a.Threshold, &a.CurrentSpend,
			&a.BudgetAmount, &a.Message, &a.Acknowledged, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, wrapErr("list budget alerts", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, wrapErr("list budget alerts", rows.Err())
}

// SaveForecast replaces the predictions of each account present in predictions and upserts
// the alerts in a single transaction. An acknowledged alert stays acknowledged.
func (s *PostgresStore) SaveForecast(ctx context.Context, predictions map[string][]model.CostPrediction, alerts []model.BudgetAlert) error {
	const op = "save forecast"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err)
	}
	defer tx.Rollback()

	for _, accountID := range slices.Sorted(maps.Keys(predictions)) {
		preds := predictions[accountID]
		if _, err := tx.ExecContext(ctx, `DELETE FROM cost_predictions WHERE account_id = $1`, accountID); err != nil {
			return wrapErr(op, err)
		}
		for _, p := range preds {
			factorsJSON, err := json.Marshal(p.Factors)
			if err != nil {
				return fmt.Errorf("encode factors of %s: %w", p.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO cost_predictions (id, account_id, provider, prediction_month, predicted_cost, base_cost,
					budget, budget_utilization, over_budget, budget_gap, confidence, trend, factors, generated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			`, p.ID, p.AccountID, p.Provider, p.PredictionMonth, p.PredictedCost, p.BaseCost, nullFloat(p.Budget),
				p.BudgetUtilization, p.OverBudget, p.BudgetGap, p.Confidence, p.Trend, factorsJSON, p.GeneratedAt)
			if err != nil {
				return wrapErr(op, err)
			}
		}
	}

	for _, a := range alerts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO budget_alerts (id, account_id, period, alert_type, threshold, current_spend, budget_amount,
				message, acknowledged, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (account_id, period) DO UPDATE SET
				alert_type = EXCLUDED.alert_type, threshold = EXCLUDED.threshold,
				current_spend = EXCLUDED.current_spend, budget_amount = EXCLUDED.budget_amount,
				message = EXCLUDED.message, acknowledged = budget_alerts.acknowledged OR EXCLUDED.acknowledged,
				updated_at = EXCLUDED.updated_at
		`, a.ID, a.AccountID, a.Period, a.AlertType, a.Threshold, a.CurrentSpend, a.BudgetAmount, a.Message,
			a.Acknowledged, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return wrapErr(op, err)
		}
	}

	return wrapErr(op, tx.Commit())
}

func (s *PostgresStore) AcknowledgeBudgetAlert(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE budget_alerts SET acknowledged = TRUE, updated_at = $2 WHERE id = $1`, id, at)
	return affectedOne("acknowledge budget alert", id, res, err)
}
