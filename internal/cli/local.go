package cli

import (
	"context"
	"io"
	"time"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/container"
	"github.com/fredphp/yunwei/internal/jobs"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/terraform"
)

// Local runs commands in-process against a container.
type Local struct {
	c   *container.Container
	now func() time.Time
}

func NewLocal(c *container.Container) *Local {
	return &Local{c: c, now: time.Now}
}

func (l *Local) Costs(ctx context.Context, p aggregation.QueryParams) (*model.CostBreakdown, error) {
	q, err := aggregation.ParseQuery(p, l.now(), l.c.Config().Policy.Aggregation.MaxWindowDays)
	if err != nil {
		return nil, err
	}
	return l.c.Aggregation().Costs(ctx, q)
}

func (l *Local) Anomalies(ctx context.Context, p aggregation.QueryParams) (*model.AnomalyReport, error) {
	q, err := aggregation.ParseQuery(p, l.now(), l.c.Config().Policy.Aggregation.MaxWindowDays)
	if err != nil {
		return nil, err
	}
	return l.c.Aggregation().Anomalies(ctx, q)
}

func (l *Local) Waste(ctx context.Context, filter model.WasteFilter) (*model.WasteReport, error) {
	return l.c.Waste().List(ctx, filter)
}

func (l *Local) Idle(ctx context.Context, filter model.IdleFilter) (*model.IdleReport, error) {
	return l.c.Idle().List(ctx, filter)
}

func (l *Local) Predictions(ctx context.Context, filter model.PredictionFilter) (*model.PredictionReport, error) {
	return l.c.Forecast().List(ctx, filter)
}

func (l *Local) WasteCSV(ctx context.Context, filter model.WasteFilter, w io.Writer) error {
	return l.c.Export().WasteCSV(ctx, filter, w)
}

func (l *Local) IdleCSV(ctx context.Context, filter model.IdleFilter, w io.Writer) error {
	return l.c.Export().IdleCSV(ctx, filter, w)
}

func (l *Local) Plan(ctx context.Context, filter model.WasteFilter) (*terraform.Plan, error) {
	return l.c.Terraform().Plan(ctx, filter)
}

func (l *Local) Publish(ctx context.Context) ([]string, error) {
	return l.c.Export().Publish(ctx)
}

func (l *Local) Jobs() []jobs.Job {
	return l.c.Scheduler().ListJobs()
}

func (l *Local) RunJob(ctx context.Context, name string) error {
	return l.c.RunJob(ctx, name)
}
