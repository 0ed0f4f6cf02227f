// Package repository defines data access interfaces.
package repository

import (
	"context"
	"time"

	"github.com/fredphp/yunwei/internal/model"
)

// CostReader lists raw cost facts.
type CostReader interface {
	ListCostRecords(ctx context.Context, dateRange model.DateRange, filter model.CostFilter) ([]model.CostRecord, error)
}

// ResourceReader lists the resource inventory.
type ResourceReader interface {
	ListResources(ctx context.Context, filter model.ResourceFilter) ([]model.Resource, error)
	GetResource(ctx context.Context, id string) (*model.Resource, error)
}

// UsageReader lists utilization samples of one resource.
type UsageReader interface {
	ListUsageSamples(ctx context.Context, resourceID string, limit int, mostRecentFirst bool) ([]model.UsageSample, error)
}

// AccountReader lists tracked cloud accounts.
type AccountReader interface {
	GetAccounts(ctx context.Context, filter model.AccountFilter) ([]model.CloudAccount, error)
}

// WasteRepository stores waste findings, keyed by resource.
type WasteRepository interface {
	ListWasteFindings(ctx context.Context, filter model.WasteFilter) ([]model.WasteFinding, error)
	GetWasteFinding(ctx context.Context, id string) (*model.WasteFinding, error)
	// UpsertWasteFindings writes a whole detection pass in one transaction.
	UpsertWasteFindings(ctx context.Context, findings []model.WasteFinding) error
	UpdateWasteStatus(ctx context.Context, id string, status model.WasteStatus, resolvedAt *time.Time, updatedAt time.Time) error
}

// IdleRepository stores idle findings, keyed by resource.
type IdleRepository interface {
	ListIdleFindings(ctx context.Context, filter model.IdleFilter) ([]model.IdleFinding, error)
	GetIdleFinding(ctx context.Context, id string) (*model.IdleFinding, error)
	// UpsertIdleFindings writes a whole tracking pass in one transaction.
	UpsertIdleFindings(ctx context.Context, findings []model.IdleFinding) error
	UpdateIdleStatus(ctx context.Context, id string, status model.IdleStatus, updatedAt time.Time) error
}

// ForecastRepository stores predictions and budget alerts.
type ForecastRepository interface {
	ListPredictions(ctx context.Context, filter model.PredictionFilter) ([]model.CostPrediction, error)
	ListBudgetAlerts(ctx context.Context, filter model.AlertFilter) ([]model.BudgetAlert, error)
	// SaveForecast replaces the predictions of every account in the map and upserts the
	// alerts, all in one transaction.
	SaveForecast(ctx context.Context, predictions map[string][]model.CostPrediction, alerts []model.BudgetAlert) error
	AcknowledgeBudgetAlert(ctx context.Context, id string, at time.Time) error
}

// IngestRepository writes raw facts collected from providers or pushed by clients.
type IngestRepository interface {
	UpsertAccounts(ctx context.Context, accounts []model.CloudAccount) error
	UpsertResources(ctx context.Context, resources []model.Resource) error
	UpsertCostRecords(ctx context.Context, records []model.CostRecord) error
	InsertUsageSamples(ctx context.Context, samples []model.UsageSample) error
}

// Store is the full data access surface used by the pipeline.
type Store interface {
	CostReader
	ResourceReader
	UsageReader
	AccountReader
	WasteRepository
	IdleRepository
	ForecastRepository
	IngestRepository
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
}
