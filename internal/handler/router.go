package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fredphp/yunwei/internal/apierrors"
	"github.com/fredphp/yunwei/internal/correlation"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/provider"
)

// DashboardService builds the overview rollup.
type DashboardService interface {
	Get(ctx context.Context) (*model.Dashboard, error)
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the dependencies of the HTTP API.
type Services struct {
	Costs     CostService
	Waste     WasteService
	Idle      IdleService
	Forecast  ForecastService
	Dashboard DashboardService
	Inventory Inventory
	Usage     UsageService
	Ingest    IngestService
	Reports   ReportService
	Plans     PlanService
	Store     Pinger
	Providers *provider.Registry

	MaxWindowDays  int
	AllowedOrigins []string
	Timeout        time.Duration
}

// NewRouter mounts the API under /api/v1.
func NewRouter(s Services, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(correlation.Middleware(logger))
	r.Use(correlation.RequestLogger)
	r.Use(apierrors.ErrorHandler)
	if s.Timeout > 0 {
		r.Use(middleware.Timeout(s.Timeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", correlation.HeaderName},
		ExposedHeaders:   []string{correlation.HeaderName},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", health(s))

	costs := NewCostHandler(s.Costs, s.MaxWindowDays)
	waste := NewWasteHandler(s.Waste)
	idle := NewIdleHandler(s.Idle)
	forecast := NewForecastHandler(s.Forecast)
	resources := NewResourceHandler(s.Inventory, s.Usage, s.Ingest)
	export := NewExportHandler(s.Reports, s.Plans)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health(s))

		r.Get("/costs", costs.Get)
		r.Get("/costs/anomalies", costs.Anomalies)
		r.Post("/costs/records", resources.PostCostRecords)

		r.Get("/waste", waste.List)
		r.Post("/waste/run", waste.Run)
		r.Get("/waste/export.csv", export.WasteCSV)
		r.Get("/waste/remediation.tf", export.Remediation)
		r.Patch("/waste/{id}", waste.Update)

		r.Get("/idle", idle.List)
		r.Post("/idle/run", idle.Run)
		r.Patch("/idle/{id}", idle.Update)

		r.Get("/predictions", forecast.List)
		r.Post("/predictions/run", forecast.Run)
		r.Get("/alerts", forecast.Alerts)
		r.Post("/alerts/{id}/acknowledge", forecast.Acknowledge)

		r.Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
			d, err := s.Dashboard.Get(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			WriteJSON(w, http.StatusOK, d)
		})

		r.Get("/accounts", resources.Accounts)
		r.Get("/resources", resources.List)
		r.Get("/resources/{id}/usage", resources.Usage)
		r.Post("/usage", resources.PostUsage)
	})

	return r
}

func health(s Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "healthy", "time": time.Now().UTC()}
		if s.Store != nil {
			if err := s.Store.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body["database"] = err.Error()
			}
		}
		if s.Providers != nil {
			body["providers"] = s.Providers.HealthAll(ctx)
		}
		WriteJSON(w, status, body)
	}
}
