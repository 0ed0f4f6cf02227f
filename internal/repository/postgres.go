// Package repository provides PostgreSQL repository implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fredphp/yunwei/internal/model"
)

// PostgresStore implements Store for PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// conditions accumulates a WHERE clause with numbered placeholders.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) eq(column string, v any) {
	c.args = append(c.args, v)
	c.clauses = append(c.clauses, fmt.Sprintf("%s = $%d", column, len(c.args)))
}

func (c *conditions) raw(clause string, v any) {
	c.args = append(c.args, v)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

// anyOf matches column against vals bound as a single text array, so the placeholder count
// does not grow with the list. An empty list adds nothing.
func (c *conditions) anyOf(column string, vals []string) {
	if len(vals) == 0 {
		return
	}
	c.args = append(c.args, vals)
	c.clauses = append(c.clauses, fmt.Sprintf("%s = ANY($%d)", column, len(c.args)))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func toStrings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const accountColumns = `id, provider, account_id, name, region, monthly_budget, alert_threshold, status, created_at`

func (s *PostgresStore) GetAccounts(ctx context.Context, filter model.AccountFilter) ([]model.CloudAccount, error) {
	var c conditions
	c.anyOf("id", filter.IDs)
	if filter.Provider != "" {
		c.eq("provider", string(filter.Provider))
	}
	if filter.Status != "" {
		c.eq("status", string(filter.Status))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM cloud_accounts`+c.where()+` ORDER BY name, account_id`, c.args...)
	if err != nil {
		return nil, wrapErr("list accounts", err)
	}
	defer rows.Close()

	var accounts []model.CloudAccount
	for rows.Next() {
		var a model.CloudAccount
		var budget sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.Provider, &a.AccountID, &a.Name, &a.Region, &budget,
			&a.AlertThreshold, &a.Status, &a.CreatedAt); err != nil {
			return nil, wrapErr("list accounts", err)
		}
		a.MonthlyBudget = floatPtr(budget)
		accounts = append(accounts, a)
	}
	return accounts, wrapErr("list accounts", rows.Err())
}

const resourceColumns = `id, account_id, resource_id, name, type, category, region, cost_per_hour, status, stopped_at, workload_ref, tags, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (model.Resource, error) {
	var r model.Resource
	var stoppedAt sql.NullTime
	var tagsJSON []byte
	err := row.Scan(&r.ID, &r.AccountID, &r.ResourceID, &r.Name, &r.Type, &r.Category, &r.Region,
		&r.CostPerHour, &r.Status, &stoppedAt, &r.WorkloadRef, &tagsJSON, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	if stoppedAt.Valid {
		t := stoppedAt.Time
		r.StoppedAt = &t
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &r.Tags); err != nil {
			return r, fmt.Errorf("decode tags of %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (s *PostgresStore) ListResources(ctx context.Context, filter model.ResourceFilter) ([]model.Resource, error) {
	var c conditions
	if filter.AccountID != "" {
		c.eq("account_id", filter.AccountID)
	}
	c.anyOf("id", filter.IDs)
	if filter.Category != "" {
		c.eq("category", string(filter.Category))
	}
	if filter.Status != "" {
		c.eq("status", string(filter.Status))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources`+c.where()+` ORDER BY id`, c.args...)
	if err != nil {
		return nil, wrapErr("list resources", err)
	}
	defer rows.Close()

	var resources []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, wrapErr("list resources", err)
		}
		resources = append(resources, r)
	}
	return resources, wrapErr("list resources", rows.Err())
}

func (s *PostgresStore) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
	r, err := scanResource(row)
	if err != nil {
		return nil, wrapErr("get resource", err)
	}
	return &r, nil
}

// ListUsageSamples returns up to limit of the most recent samples of a resource. They come
// back newest first when mostRecentFirst is set and in chronological order otherwise.
func (s *PostgresStore) ListUsageSamples(ctx context.Context, resourceID string, limit int, mostRecentFirst bool) ([]model.UsageSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_id, timestamp, cpu_usage, memory_usage, network_in, network_out, disk_usage, request_count
		FROM usage_samples WHERE resource_id = $1
		ORDER BY timestamp DESC LIMIT $2
	`, resourceID, limit)
	if err != nil {
		return nil, wrapErr("list usage samples", err)
	}
	defer rows.Close()

	var samples []model.UsageSample
	for rows.Next() {
		var u model.UsageSample
		if err := rows.Scan(&u.ID, &u.ResourceID, &u.Timestamp, &u.CPUUsage, &u.MemoryUsage,
			&u.NetworkIn, &u.NetworkOut, &u.DiskUsage, &u.RequestCount); err != nil {
			return nil, wrapErr("list usage samples", err)
		}
		samples = append(samples, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list usage samples", err)
	}
	if !mostRecentFirst {
		for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
			samples[i], samples[j] = samples[j], samples[i]
		}
	}
	return samples, nil
}

func (s *PostgresStore) ListCostRecords(ctx context.Context, dateRange model.DateRange, filter model.CostFilter) ([]model.CostRecord, error) {
	var c conditions
	c.raw("date >= $%d", model.TruncateDay(dateRange.Start))
	c.raw("date <= $%d", model.TruncateDay(dateRange.End))
	if filter.AccountID != "" {
		c.eq("account_id", filter.AccountID)
	}
	if filter.Category != "" {
		c.eq("category", string(filter.Category))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, date, category, service, cost, currency, usage_quantity, usage_unit, source_key
		FROM cost_records`+c.where()+` ORDER BY date, service`, c.args...)
	if err != nil {
		return nil, wrapErr("list cost records", err)
	}
	defer rows.Close()

	var records []model.CostRecord
	for rows.Next() {
		var r model.CostRecord
		var sourceKey sql.NullString
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Date, &r.Category, &r.Service, &r.Cost,
			&r.Currency, &r.UsageQuantity, &r.UsageUnit, &sourceKey); err != nil {
			return nil, wrapErr("list cost records", err)
		}
		r.SourceKey = sourceKey.String
		records = append(records, r)
	}
	return records, wrapErr("list cost records", rows.Err())
}

// execBatch runs one prepared statement per item inside a single transaction.
func execBatch[T any](ctx context.Context, db *sql.DB, op, query string, items []T, args func(T) ([]any, error)) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return wrapErr(op, err)
	}
	defer stmt.Close()

	for _, item := range items {
		a, err := args(item)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			return wrapErr(op, err)
		}
	}
	return wrapErr(op, tx.Commit())
}

func (s *PostgresStore) UpsertAccounts(ctx context.Context, accounts []model.CloudAccount) error {
	return execBatch(ctx, s.db, "upsert accounts", `
		INSERT INTO cloud_accounts (id, provider, account_id, name, region, monthly_budget, alert_threshold, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, region = EXCLUDED.region, monthly_budget = EXCLUDED.monthly_budget,
			alert_threshold = EXCLUDED.alert_threshold, status = EXCLUDED.status
	`, accounts, func(a model.CloudAccount) ([]any, error) {
		return []any{a.ID, a.Provider, a.AccountID, a.Name, a.Region, nullFloat(a.MonthlyBudget),
			a.AlertThreshold, a.Status}, nil
	})
}

func (s *PostgresStore) UpsertResources(ctx context.Context, resources []model.Resource) error {
	return execBatch(ctx, s.db, "upsert resources", `
		INSERT INTO resources (id, account_id, resource_id, name, type, category, region, cost_per_hour, status, stopped_at, workload_ref, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, category = EXCLUDED.category, region = EXCLUDED.region,
			cost_per_hour = EXCLUDED.cost_per_hour, status = EXCLUDED.status, stopped_at = EXCLUDED.stopped_at,
			workload_ref = EXCLUDED.workload_ref, tags = EXCLUDED.tags
	`, resources, func(r model.Resource) ([]any, error) {
		tags := r.Tags
		if tags == nil {
			tags = model.Tags{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags of %s: %w", r.ID, err)
		}
		var stoppedAt sql.NullTime
		if r.StoppedAt != nil {
			stoppedAt = sql.NullTime{Time: *r.StoppedAt, Valid: true}
		}
		return []any{r.ID, r.AccountID, r.ResourceID, r.Name, r.Type, r.Category, r.Region, r.CostPerHour,
			r.Status, stoppedAt, r.WorkloadRef, tagsJSON}, nil
	})
}

// UpsertCostRecords inserts cost facts. Records carrying a source key replace the earlier
// copy of the same provider line item.
func (s *PostgresStore) UpsertCostRecords(ctx context.Context, records []model.CostRecord) error {
	return execBatch(ctx, s.db, "upsert cost records", `
		INSERT INTO cost_records (id, account_id, date, category, service, cost, currency, usage_quantity, usage_unit, source_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_key) DO UPDATE SET
			cost = EXCLUDED.cost, usage_quantity = EXCLUDED.usage_quantity, usage_unit = EXCLUDED.usage_unit
	`, records, func(r model.CostRecord) ([]any, error) {
		return []any{r.ID, r.AccountID, model.TruncateDay(r.Date), r.Category, r.Service, r.Cost, r.Currency,
			r.UsageQuantity, r.UsageUnit, nullString(r.SourceKey)}, nil
	})
}

func (s *PostgresStore) InsertUsageSamples(ctx context.Context, samples []model.UsageSample) error {
	return execBatch(ctx, s.db, "insert usage samples", `
		INSERT INTO usage_samples (id, resource_id, timestamp, cpu_usage, memory_usage, network_in, network_out, disk_usage, request_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, samples, func(u model.UsageSample) ([]any, error) {
		return []any{u.ID, u.ResourceID, u.Timestamp, u.CPUUsage, u.MemoryUsage, u.NetworkIn, u.NetworkOut,
			u.DiskUsage, u.RequestCount}, nil
	})
}
