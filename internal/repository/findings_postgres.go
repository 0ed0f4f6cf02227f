package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fredphp/yunwei/internal/model"
)

const wasteColumns = `id, resource_id, account_id, resource_name, resource_type, waste_type, severity,
	estimated_savings, avg_cpu, avg_memory, reason, recommendation, status, detected_at, updated_at, resolved_at`

func scanWaste(row rowScanner) (model.WasteFinding, error) {
	var f model.WasteFinding
	var resolvedAt sql.NullTime
	err := row.Scan(&f.ID, &f.ResourceID, &f.AccountID, &f.ResourceName, &f.ResourceType, &f.WasteType,
		&f.Severity, &f.EstimatedSavings, &f.AvgCPU, &f.AvgMemory, &f.Reason, &f.Recommendation,
		&f.Status, &f.DetectedAt, &f.UpdatedAt, &resolvedAt)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		f.ResolvedAt = &t
	}
	return f, err
}

func (s *PostgresStore) ListWasteFindings(ctx context.Context, filter model.WasteFilter) ([]model.WasteFinding, error) {
	var c conditions
	if filter.AccountID != "" {
		c.eq("account_id", filter.AccountID)
	}
	c.anyOf("resource_id", filter.ResourceIDs)
	c.anyOf("severity", toStrings(filter.Severities))
	c.anyOf("waste_type", toStrings(filter.WasteTypes))
	c.anyOf("status", toStrings(filter.Statuses))

	rows, err := s.db.QueryContext(ctx, `SELECT `+wasteColumns+` FROM waste_findings`+c.where()+` ORDER BY detected_at, id`, c.args...)
	if err != nil {
		return nil, wrapErr("list waste findings", err)
	}
	defer rows.Close()

	var findings []model.WasteFinding
	for rows.Next() {
		f, err := scanWaste(rows)
		if err != nil {
			return nil, wrapErr("list waste findings", err)
		}
		findings = append(findings, f)
	}
	return findings, wrapErr("list waste findings", rows.Err())
}

func (s *PostgresStore) GetWasteFinding(ctx context.Context, id string) (*model.WasteFinding, error) {
	f, err := scanWaste(s.db.QueryRowContext(ctx, `SELECT `+wasteColumns+` FROM waste_findings WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get waste finding", err)
	}
	return &f, nil
}

// UpsertWasteFindings refreshes the measured fields of existing findings and inserts new
// ones. The row ID, status, detection time and resolution time of an existing finding are
// never overwritten.
func (s *PostgresStore) UpsertWasteFindings(ctx context.Context, findings []model.WasteFinding) error {
	return execBatch(ctx, s.db, "upsert waste findings", `
		INSERT INTO waste_findings (id, resource_id, account_id, resource_name, resource_type, waste_type, severity,
			estimated_savings, avg_cpu, avg_memory, reason, recommendation, status, detected_at, updated_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (resource_id) DO UPDATE SET
			resource_name = EXCLUDED.resource_name, resource_type = EXCLUDED.resource_type,
			waste_type = EXCLUDED.waste_type, severity = EXCLUDED.severity,
			estimated_savings = EXCLUDED.estimated_savings, avg_cpu = EXCLUDED.avg_cpu,
			avg_memory = EXCLUDED.avg_memory, reason = EXCLUDED.reason,
			recommendation = EXCLUDED.recommendation, updated_at = EXCLUDED.updated_at
	`, findings, func(f model.WasteFinding) ([]any, error) {
		var resolvedAt sql.NullTime
		if f.ResolvedAt != nil {
			resolvedAt = sql.NullTime{Time: *f.ResolvedAt, Valid: true}
		}
		return []any{f.ID, f.ResourceID, f.AccountID, f.ResourceName, f.ResourceType, f.WasteType, f.Severity,
			f.EstimatedSavings, f.AvgCPU, f.AvgMemory, f.Reason, f.Recommendation, f.Status,
			f.DetectedAt, f.UpdatedAt, resolvedAt}, nil
	})
}

func (s *PostgresStore) UpdateWasteStatus(ctx context.Context, id string, status model.WasteStatus, resolvedAt *time.Time, updatedAt time.Time) error {
	var resolved sql.NullTime
	if resolvedAt != nil {
		resolved = sql.NullTime{Time: *resolvedAt, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE waste_findings SET status = $2, resolved_at = COALESCE($3, resolved_at), updated_at = $4
		WHERE id = $1
	`, id, status, resolved, updatedAt)
	return affectedOne("update waste status", id, res, err)
}

const idleColumns = `id, resource_id, account_id, resource_name, resource_type, idle_type, avg_cpu, avg_memory,
	avg_network, idle_days, monthly_cost, potential_savings, recommendation, priority, status, detected_at, updated_at`

func scanIdle(row rowScanner) (model.IdleFinding, error) {
	var f model.IdleFinding
	err := row.Scan(&f.ID, &f.ResourceID, &f.AccountID, &f.ResourceName, &f.ResourceType, &f.IdleType,
		&f.AvgCPU, &f.AvgMemory, &f.AvgNetwork, &f.IdleDays, &f.MonthlyCost, &f.PotentialSavings,
		&f.Recommendation, &f.Priority, &f.Status, &f.DetectedAt, &f.UpdatedAt)
	return f, err
}

func (s *PostgresStore) ListIdleFindings(ctx context.Context, filter model.IdleFilter) ([]model.IdleFinding, error) {
	var c conditions
	if filter.AccountID != "" {
		c.eq("account_id", filter.AccountID)
	}
	c.anyOf("resource_id", filter.ResourceIDs)
	c.anyOf("status", toStrings(filter.Statuses))

	rows, err := s.db.QueryContext(ctx, `SELECT `+idleColumns+` FROM idle_findings`+c.where()+` ORDER BY detected_at, id`, c.args...)
	if err != nil {
		return nil, wrapErr("list idle findings", err)
	}
	defer rows.Close()

	var findings []model.IdleFinding
	for rows.Next() {
		f, err := scanIdle(rows)
		if err != nil {
			return nil, wrapErr("list idle findings", err)
		}
		findings = append(findings, f)
	}
	return findings, wrapErr("list idle findings", rows.Err())
}

func (s *PostgresStore) GetIdleFinding(ctx context.Context, id string) (*model.IdleFinding, error) {
	f, err := scanIdle(s.db.QueryRowContext(ctx, `SELECT `+idleColumns+` FROM idle_findings WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get idle finding", err)
	}
	return &f, nil
}

// UpsertIdleFindings refreshes open findings and inserts new ones. Findings that reached a
// terminal status are left exactly as they are.
func (s *PostgresStore) UpsertIdleFindings(ctx context.Context, findings []model.IdleFinding) error {
	return execBatch(ctx, s.db, "upsert idle findings", `
		INSERT INTO idle_findings (id, resource_id, account_id, resource_name, resource_type, idle_type, avg_cpu,
			avg_memory, avg_network, idle_days, monthly_cost, potential_savings, recommendation, priority, status,
			detected_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (resource_id) DO UPDATE SET
			resource_name = EXCLUDED.resource_name, resource_type = EXCLUDED.resource_type,
			idle_type = EXCLUDED.idle_type, avg_cpu = EXCLUDED.avg_cpu, avg_memory = EXCLUDED.avg_memory,
			avg_network = EXCLUDED.avg_network, idle_days = EXCLUDED.idle_days,
			monthly_cost = EXCLUDED.monthly_cost, potential_savings = EXCLUDED.potential_savings,
			recommendation = EXCLUDED.recommendation, priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
		WHERE idle_findings.status NOT IN ('actioned', 'dismissed')
	`, findings, func(f model.IdleFinding) ([]any, error) {
		return []any{f.ID, f.ResourceID, f.AccountID, f.ResourceName, f.ResourceType, f.IdleType, f.AvgCPU,
			f.AvgMemory, f.AvgNetwork, f.IdleDays, f.MonthlyCost, f.PotentialSavings, f.Recommendation,
			f.Priority, f.Status, f.DetectedAt, f.UpdatedAt}, nil
	})
}

func (s *PostgresStore) UpdateIdleStatus(ctx context.Context, id string, status model.IdleStatus, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE idle_findings SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, updatedAt)
	return affectedOne("update idle status", id, res, err)
}

func affectedOne(op, id string, res sql.Result, err error) error {
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, model.ErrNotFound)
	}
	return nil
}
