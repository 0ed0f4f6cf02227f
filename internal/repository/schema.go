package repository

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cloud_accounts (
		id UUID PRIMARY KEY,
		provider VARCHAR(20) NOT NULL,
		account_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		region VARCHAR(64) NOT NULL DEFAULT '',
		monthly_budget DOUBLE PRECISION,
		alert_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (provider, account_id)
	)`,
	`CREATE TABLE IF NOT EXISTS resources (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES cloud_accounts(id),
		resource_id VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		type VARCHAR(100) NOT NULL DEFAULT '',
		category VARCHAR(20) NOT NULL,
		region VARCHAR(64) NOT NULL DEFAULT '',
		cost_per_hour DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (cost_per_hour >= 0),
		status VARCHAR(20) NOT NULL,
		stopped_at TIMESTAMPTZ,
		workload_ref VARCHAR(255) NOT NULL DEFAULT '',
		tags JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (account_id, resource_id)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_samples (
		id UUID PRIMARY KEY,
		resource_id UUID NOT NULL REFERENCES resources(id),
		timestamp TIMESTAMPTZ NOT NULL,
		cpu_usage DOUBLE PRECISION NOT NULL,
		memory_usage DOUBLE PRECISION NOT NULL,
		network_in DOUBLE PRECISION NOT NULL DEFAULT 0,
		network_out DOUBLE PRECISION NOT NULL DEFAULT 0,
		disk_usage DOUBLE PRECISION NOT NULL DEFAULT 0,
		request_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_samples_resource_ts ON usage_samples (resource_id, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS cost_records (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES cloud_accounts(id),
		date DATE NOT NULL,
		category VARCHAR(20) NOT NULL,
		service VARCHAR(255) NOT NULL,
		cost DOUBLE PRECISION NOT NULL CHECK (cost >= 0),
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		usage_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
		usage_unit VARCHAR(50) NOT NULL DEFAULT '',
		source_key VARCHAR(512) UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cost_records_account_date ON cost_records (account_id, date)`,
	`CREATE TABLE IF NOT EXISTS waste_findings (
		id UUID PRIMARY KEY,
		resource_id UUID NOT NULL UNIQUE REFERENCES resources(id),
		account_id UUID NOT NULL,
		resource_name VARCHAR(255) NOT NULL DEFAULT '',
		resource_type VARCHAR(100) NOT NULL DEFAULT '',
		waste_type VARCHAR(20) NOT NULL,
		severity VARCHAR(10) NOT NULL,
		estimated_savings DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_cpu DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_memory DOUBLE PRECISION NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		recommendation TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		detected_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS idle_findings (
		id UUID PRIMARY KEY,
		resource_id UUID NOT NULL UNIQUE REFERENCES resources(id),
		account_id UUID NOT NULL,
		resource_name VARCHAR(255) NOT NULL DEFAULT '',
		resource_type VARCHAR(100) NOT NULL DEFAULT '',
		idle_type VARCHAR(20) NOT NULL,
		avg_cpu DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_memory DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_network DOUBLE PRECISION NOT NULL DEFAULT 0,
		idle_days INTEGER NOT NULL DEFAULT 0,
		monthly_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		potential_savings DOUBLE PRECISION NOT NULL DEFAULT 0,
		recommendation VARCHAR(20) NOT NULL,
		priority VARCHAR(10) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		detected_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cost_predictions (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES cloud_accounts(id),
		provider VARCHAR(20) NOT NULL,
		prediction_month CHAR(7) NOT NULL,
		predicted_cost DOUBLE PRECISION NOT NULL,
		base_cost DOUBLE PRECISION NOT NULL,
		budget DOUBLE PRECISION,
		budget_utilization DOUBLE PRECISION NOT NULL DEFAULT 0,
		over_budget BOOLEAN NOT NULL DEFAULT FALSE,
		budget_gap DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence DOUBLE PRECISION NOT NULL,
		trend VARCHAR(20) NOT NULL,
		factors JSONB NOT NULL DEFAULT '{}',
		generated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (account_id, prediction_month)
	)`,
	`CREATE TABLE IF NOT EXISTS budget_alerts (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES cloud_accounts(id),
		period CHAR(7) NOT NULL,
		alert_type VARCHAR(20) NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		current_spend DOUBLE PRECISION NOT NULL,
		budget_amount DOUBLE PRECISION NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (account_id, period)
	)`,
}

// EnsureSchema creates the tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
