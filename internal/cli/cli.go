// Package cli implements yunweictl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/jobs"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/terraform"
)

// Backend is what the commands drive.
type Backend interface {
	Costs(ctx context.Context, p aggregation.QueryParams) (*model.CostBreakdown, error)
	Anomalies(ctx context.Context, p aggregation.QueryParams) (*model.AnomalyReport, error)
	Waste(ctx context.Context, filter model.WasteFilter) (*model.WasteReport, error)
	Idle(ctx context.Context, filter model.IdleFilter) (*model.IdleReport, error)
	Predictions(ctx context.Context, filter model.PredictionFilter) (*model.PredictionReport, error)
	WasteCSV(ctx context.Context, filter model.WasteFilter, w io.Writer) error
	IdleCSV(ctx context.Context, filter model.IdleFilter, w io.Writer) error
	Plan(ctx context.Context, filter model.WasteFilter) (*terraform.Plan, error)
	Publish(ctx context.Context) ([]string, error)
	Jobs() []jobs.Job
	RunJob(ctx context.Context, name string) error
}

// OpenFunc connects a Backend. closeFn, when not nil, releases it.
type OpenFunc func(ctx context.Context) (b Backend, closeFn func() error, err error)

// Options configure the CLI.
type Options struct {
	Open    OpenFunc
	Output  io.Writer
	Timeout time.Duration
}

// CLI is the yunweictl command tree.
type CLI struct {
	open    OpenFunc
	out     io.Writer
	timeout time.Duration
	format  string
	rootCmd *cobra.Command
}

func New(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	cli := &CLI{open: opts.Open, out: opts.Output, timeout: opts.Timeout}
	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute() error {
	return cli.rootCmd.Execute()
}

// SetArgs overrides os.Args for the next Execute.
func (cli *CLI) SetArgs(args []string) {
	cli.rootCmd.SetArgs(args)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "yunweictl",
		Short:         "Inspect cloud spend, waste, idle resources and budget forecasts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cli.format != "table" && cli.format != "json" {
				return fmt.Errorf("--output must be table or json, got %q", cli.format)
			}
			return nil
		},
	}
	cmd.SetOut(cli.out)
	cmd.PersistentFlags().StringVarP(&cli.format, "output", "o", "table", "Output format (table, json)")

	cmd.AddCommand(cli.newCostsCmd())
	cmd.AddCommand(cli.newAnomaliesCmd())
	cmd.AddCommand(cli.newWasteCmd())
	cmd.AddCommand(cli.newIdleCmd())
	cmd.AddCommand(cli.newForecastCmd())
	cmd.AddCommand(cli.newJobsCmd())
	cmd.AddCommand(cli.newSyncCmd())
	cmd.AddCommand(cli.newExportCmd())
	cmd.AddCommand(cli.newPlanCmd())

	return cmd
}

// with opens the backend for the duration of fn.
func (cli *CLI) with(fn func(ctx context.Context, b Backend) error) error {
	if cli.open == nil {
		return fmt.Errorf("no backend configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), cli.timeout)
	defer cancel()

	b, closeFn, err := cli.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeFn != nil {
			_ = closeFn()
		}
	}()
	return fn(ctx, b)
}

func (cli *CLI) jsonOutput() bool { return cli.format == "json" }

func (cli *CLI) writeJSON(v any) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
