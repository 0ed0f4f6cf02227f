package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/model"
)

const jobCostSync = "cost-sync"

func (cli *CLI) newCostsCmd() *cobra.Command {
	var p aggregation.QueryParams
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Show the cost breakdown for a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.with(func(ctx context.Context, b Backend) error {
				breakdown, err := b.Costs(ctx, p)
				if err != nil {
					return err
				}
				if cli.jsonOutput() {
					return cli.writeJSON(breakdown)
				}
				renderCosts(cli.out, breakdown)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&p.Range, "range", "", "Window ending today (7d, 30d, 90d)")
	cmd.Flags().StringVar(&p.Start, "start", "", "Window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&p.End, "end", "", "Window end, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&p.AccountID, "account", "", "Limit to one account")
	cmd.Flags().StringVar(&p.Category, "category", "", "Limit to one category")
	cmd.Flags().StringVar(&p.Granularity, "granularity", "", "Roll the timeline up by day, week or month")
	return cmd
}

func (cli *CLI) newAnomaliesCmd() *cobra.Command {
	var p aggregation.QueryParams
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "List days whose spend broke from the week before",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.with(func(ctx context.Context, b Backend) error {
				report, err := b.Anomalies(ctx, p)
				if err != nil {
					return err
				}
				if cli.jsonOutput() {
					return cli.writeJSON(report)
				}
				renderAnomalies(cli.out, report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&p.Range, "range", "", "Window ending today (7d, 30d, 90d)")
	cmd.Flags().StringVar(&p.Start, "start", "", "Window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&p.End, "end", "", "Window end, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&p.AccountID, "account", "", "Limit to one account")
	cmd.Flags().StringVar(&p.Category, "category", "", "Limit to one category")
	return cmd
}

func (cli *CLI) newWasteCmd() *cobra.Command {
	var severity, wasteType, status, account string
	cmd := &cobra.Command{
		Use:   "waste",
		Short: "List waste findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := model.ParseWasteFilter(severity, wasteType, status)
			if err != nil {
				return err
			}
			filter.AccountID = account
			return cli.with(func(ctx context.Context, b Backend) error {
				report, err := b.Waste(ctx, filter)
				if err != nil {
					return err
				}
				if cli.jsonOutput() {
					return cli.writeJSON(report)
				}
				renderWaste(cli.out, report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&severity, "severity", "", "Comma-separated severities")
	cmd.Flags().StringVar(&wasteType, "type", "", "Comma-separated waste types")
	cmd.Flags().StringVar(&status, "status", "", "Comma-separated statuses")
	cmd.Flags().StringVar(&account, "account", "", "Limit to one account")
	return cmd
}

func (cli *CLI) newIdleCmd() *cobra.Command {
	var status, account string
	cmd := &cobra.Command{
		Use:   "idle",
		Short: "List idle resource findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := model.ParseIdleFilter(status)
			if err != nil {
				return err
			}
			filter.AccountID = account
			return cli.with(func(ctx context.Context, b Backend) error {
				report, err := b.Idle(ctx, filter)
				if err != nil {
					return err
				}
				if cli.jsonOutput() {
					return cli.writeJSON(report)
				}
				renderIdle(cli.out, report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Comma-separated statuses, or all (default active,reviewing)")
	cmd.Flags().StringVar(&account, "account", "", "Limit to one account")
	return cmd
}

func (cli *CLI) newForecastCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Show the current cost predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.with(func(ctx context.Context, b Backend) error {
				report, err := b.Predictions(ctx, model.PredictionFilter{AccountID: account})
				if err != nil {
					return err
				}
				if cli.jsonOutput() {
					return cli.writeJSON(report)
				}
				renderPredictions(cli.out, report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Limit to one account")
	return cmd
}

func (cli *CLI) newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List or run the analysis passes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.with(func(ctx context.Context, b Backend) error {
				list := b.Jobs()
				if cli.jsonOutput() {
					return cli.writeJSON(jobViews(list))
				}
				renderJobs(cli.out, list)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.runJob(args[0])
		},
	})

	return cmd
}

func (cli *CLI) newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Pull accounts, resources and cost records from the providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.runJob(jobCostSync)
		},
	}
}

func (cli *CLI) runJob(name string) error {
	return cli.with(func(ctx context.Context, b Backend) error {
		if err := b.RunJob(ctx, name); err != nil {
			return fmt.Errorf("job %s: %w", name, err)
		}
		fmt.Fprintf(cli.out, "job %s completed\n", name)
		return nil
	})
}

func (cli *CLI) newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write findings as CSV or publish them to the report bucket",
	}
	cmd.PersistentFlags().StringVar(&out, "file", "", "Write to this file instead of stdout")

	cmd.AddCommand(&cobra.Command{
		Use:   "waste",
		Short: "Write open waste findings as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := model.ParseWasteFilter("", "", "")
			return cli.with(func(ctx context.Context, b Backend) error {
				return cli.toFile(out, func(w io.Writer) error { return b.WasteCSV(ctx, filter, w) })
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "idle",
		Short: "Write active and reviewing idle findings as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := model.ParseIdleFilter("")
			return cli.with(func(ctx context.Context, b Backend) error {
				return cli.toFile(out, func(w io.Writer) error { return b.IdleCSV(ctx, filter, w) })
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "publish",
		Short: "Upload both reports to the configured bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.with(func(ctx context.Context, b Backend) error {
				keys, err := b.Publish(ctx)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cli.out, k)
				}
				return nil
			})
		},
	})

	return cmd
}

func (cli *CLI) newPlanCmd() *cobra.Command {
	var severity, wasteType, account, out string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate Terraform that remediates open waste findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := model.ParseWasteFilter(severity, wasteType, "")
			if err != nil {
				return err
			}
			filter.AccountID = account
			return cli.with(func(ctx context.Context, b Backend) error {
				plan, err := b.Plan(ctx, filter)
				if err != nil {
					return err
				}
				if cli.jsonOutput() {
					return cli.writeJSON(plan)
				}
				return cli.toFile(out, func(w io.Writer) error {
					_, err := io.WriteString(w, plan.HCL)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&severity, "severity", "", "Comma-separated severities")
	cmd.Flags().StringVar(&wasteType, "type", "", "Comma-separated waste types")
	cmd.Flags().StringVar(&account, "account", "", "Limit to one account")
	cmd.Flags().StringVar(&out, "file", "", "Write to this file instead of stdout")
	return cmd
}

func (cli *CLI) toFile(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cli.out)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
