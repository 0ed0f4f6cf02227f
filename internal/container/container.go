// Package container provides dependency injection.
package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/cache"
	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/dashboard"
	"github.com/fredphp/yunwei/internal/export"
	"github.com/fredphp/yunwei/internal/forecast"
	"github.com/fredphp/yunwei/internal/handler"
	"github.com/fredphp/yunwei/internal/idle"
	"github.com/fredphp/yunwei/internal/ingest"
	"github.com/fredphp/yunwei/internal/jobs"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/notification"
	"github.com/fredphp/yunwei/internal/provider"
	"github.com/fredphp/yunwei/internal/provider/aws"
	"github.com/fredphp/yunwei/internal/repository"
	"github.com/fredphp/yunwei/internal/terraform"
	"github.com/fredphp/yunwei/internal/usage"
	"github.com/fredphp/yunwei/internal/waste"
)

// Job names.
const (
	JobCostSync = "cost-sync"
	JobWaste    = "waste-detect"
	JobIdle     = "idle-track"
	JobForecast = "forecast"
	JobExport   = "findings-export"
)

// Container holds all application dependencies.
type Container struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	store     repository.Store
	cache     *cache.Redis
	providers *provider.Registry
	notifier  *notification.Service
	scheduler *jobs.Scheduler

	aggregation *aggregation.Service
	usage       *usage.Service
	waste       *waste.Service
	idle        *idle.Service
	forecast    *forecast.Service
	dashboard   *dashboard.Service
	ingest      *ingest.Service
	export      *export.Service
	terraform   *terraform.Service
}

// New connects to Postgres and builds the container on top of it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("database connected", "host", cfg.Database.Host, "database", cfg.Database.Name)

	c, err := NewWithStore(ctx, cfg, repository.NewPostgresStore(db), logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.db = db
	return c, nil
}

// NewWithStore builds the container on an existing store. It ensures the schema, connects
// the optional cache and providers, and writes the configured accounts.
func NewWithStore(ctx context.Context, cfg *config.Config, store repository.Store, logger *slog.Logger) (*Container, error) {
	c := &Container{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		providers: provider.NewRegistry(),
	}

	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	if cfg.Redis.Enabled() {
		rc, err := cache.New(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "addr", cfg.Redis.Addr(), "error", err)
		} else {
			c.cache = rc
			logger.Info("redis connected", "addr", cfg.Redis.Addr())
		}
	}

	if cfg.AWS.Enabled {
		p, err := aws.NewProvider(ctx, cfg.AWS, logger)
		if err != nil {
			logger.Warn("failed to initialize AWS provider", "error", err)
		} else {
			c.providers.Register(p)
			logger.Info("AWS provider registered", "region", cfg.AWS.Region)
		}
	}

	c.notifier = notification.NewService(notification.FromConfig(cfg.Notification), logger)
	logger.Info("notification service initialized", "enabled", c.notifier.Enabled())

	c.buildServices(ctx)

	if err := c.ingest.SyncAccounts(ctx); err != nil {
		return nil, fmt.Errorf("failed to store configured accounts: %w", err)
	}

	var locker jobs.Locker
	if c.cache != nil {
		locker = c.cache
	}
	c.scheduler = jobs.NewScheduler(logger, locker, cfg.Jobs.Timeout)
	if err := c.registerJobs(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Container) buildServices(ctx context.Context) {
	policy := c.cfg.Policy

	// Typed nils must not leak into the optional interfaces.
	var (
		costCache     aggregation.Cache
		versioner     ingest.Versioner
		wasteNotifier waste.Notifier
		alertNotifier forecast.Notifier
		putter        export.ObjectPutter
	)
	if c.cache != nil {
		costCache = c.cache
		versioner = c.cache
	}
	if c.notifier.Enabled() {
		wasteNotifier = c.notifier
		alertNotifier = c.notifier
	}
	if c.cfg.Export.Bucket != "" {
		client, err := export.NewS3Client(ctx, c.cfg.AWS)
		if err != nil {
			c.logger.Warn("failed to initialize S3 client, report publishing disabled", "error", err)
		} else {
			putter = client
		}
	}

	c.aggregation = aggregation.NewService(c.store, costCache, policy.Aggregation, c.logger)
	c.usage = usage.NewService(c.store)
	c.waste = waste.NewService(c.store, wasteNotifier, policy.Waste, c.logger)
	c.idle = idle.NewService(c.store, policy.Idle, c.logger)
	c.forecast = forecast.NewService(c.store, alertNotifier, policy.Forecast, c.logger)
	c.dashboard = dashboard.NewService(c.store)
	c.ingest = ingest.NewService(c.store, c.providers, versioner, policy.Accounts, c.cfg.AWS.SyncDays, c.logger)
	c.export = export.NewService(c.store, putter, c.cfg.Export, c.logger)
	c.terraform = terraform.NewService(c.store, c.logger)
}

func (c *Container) registerJobs() error {
	j := c.cfg.Jobs
	entries := []struct {
		name     string
		schedule string
		fn       jobs.JobFunc
	}{
		{JobCostSync, j.CostSyncSchedule, c.costSyncJob},
		{JobWaste, j.WasteSchedule, c.wasteJob},
		{JobIdle, j.IdleSchedule, c.idleJob},
		{JobForecast, j.ForecastSchedule, c.forecastJob},
		{JobExport, j.ExportSchedule, c.exportJob},
	}
	for _, e := range entries {
		schedule := e.schedule
		if !j.Enabled {
			schedule = ""
		}
		if err := c.scheduler.Register(e.name, schedule, e.fn); err != nil {
			return fmt.Errorf("failed to register job %s: %w", e.name, err)
		}
	}
	return nil
}

// Start starts background jobs.
func (c *Container) Start(ctx context.Context) error {
	if !c.cfg.Jobs.Enabled {
		c.logger.Info("scheduled jobs disabled")
		return nil
	}
	c.scheduler.Start()
	return nil
}

// Stop gracefully stops all components.
func (c *Container) Stop(ctx context.Context) error {
	c.logger.Info("stopping container components")

	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.providers != nil {
		c.providers.Close()
	}

	var errs []error
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}

// RunJob runs a registered job now.
func (c *Container) RunJob(ctx context.Context, name string) error {
	return c.scheduler.Run(ctx, name)
}

// Router builds the HTTP API.
func (c *Container) Router() http.Handler {
	return handler.NewRouter(handler.Services{
		Costs:          c.aggregation,
		Waste:          c.waste,
		Idle:           c.idle,
		Forecast:       c.forecast,
		Dashboard:      c.dashboard,
		Inventory:      c.store,
		Usage:          c.usage,
		Ingest:         c.ingest,
		Reports:        c.export,
		Plans:          c.terraform,
		Store:          c.store,
		Providers:      c.providers,
		MaxWindowDays:  c.cfg.Policy.Aggregation.MaxWindowDays,
		AllowedOrigins: c.cfg.Server.AllowedOrigins,
		Timeout:        c.cfg.Server.WriteTimeout,
	}, c.logger)
}

// Accessors

func (c *Container) Config() *config.Config            { return c.cfg }
func (c *Container) Logger() *slog.Logger              { return c.logger }
func (c *Container) Store() repository.Store           { return c.store }
func (c *Container) Providers() *provider.Registry     { return c.providers }
func (c *Container) Scheduler() *jobs.Scheduler        { return c.scheduler }
func (c *Container) Aggregation() *aggregation.Service { return c.aggregation }
func (c *Container) Waste() *waste.Service             { return c.waste }
func (c *Container) Idle() *idle.Service               { return c.idle }
func (c *Container) Forecast() *forecast.Service       { return c.forecast }
func (c *Container) Ingest() *ingest.Service           { return c.ingest }
func (c *Container) Export() *export.Service           { return c.export }
func (c *Container) Terraform() *terraform.Service     { return c.terraform }

func (c *Container) costSyncJob(ctx context.Context) error {
	res, err := c.ingest.Sync(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("cost sync complete",
		"accounts", res.Accounts, "resources", res.Resources, "cost_records", res.CostRecords,
		"skipped", len(res.Skipped), "failed", len(res.Failed))
	return nil
}

func (c *Container) wasteJob(ctx context.Context) error {
	_, err := c.waste.Run(ctx, model.ResourceFilter{})
	return err
}

func (c *Container) idleJob(ctx context.Context) error {
	_, err := c.idle.Run(ctx, model.ResourceFilter{})
	return err
}

func (c *Container) forecastJob(ctx context.Context) error {
	_, err := c.forecast.Run(ctx)
	return err
}

func (c *Container) exportJob(ctx context.Context) error {
	keys, err := c.export.Publish(ctx)
	if errors.Is(err, export.ErrNotConfigured) {
		c.logger.Debug("findings export skipped, no bucket configured")
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.Info("findings exported", "objects", keys)
	return nil
}
