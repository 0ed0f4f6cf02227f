package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fredphp/yunwei/internal/jobs"
	"github.com/fredphp/yunwei/internal/model"
)

func newTable(w io.Writer, header table.Row, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// shortID trims generated ids to something readable in a table.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func severityColor(s model.Severity) text.Colors {
	switch s {
	case model.SeverityCritical:
		return text.Colors{text.FgHiRed, text.Bold}
	case model.SeverityHigh:
		return text.Colors{text.FgRed}
	case model.SeverityMedium:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgGreen}
	}
}

func renderCosts(w io.Writer, b *model.CostBreakdown) {
	fmt.Fprintf(w, "Costs %s .. %s (%s)\n", b.Start, b.End, b.Currency)

	tw := newTable(w, table.Row{"Service", "Category", "Cost"}, 3)
	for _, s := range b.ByService {
		tw.AppendRow(table.Row{s.Service, s.Category, money(s.Cost)})
	}
	tw.AppendFooter(table.Row{"Total", "", money(b.Total)})
	tw.Render()

	ct := newTable(w, table.Row{"Category", "Cost"}, 2)
	for _, c := range b.ByCategory {
		ct.AppendRow(table.Row{c.Category, money(c.Cost)})
	}
	ct.Render()

	if len(b.Periods) > 0 {
		pt := newTable(w, table.Row{"From", "To", "Days", "Cost"}, 3, 4)
		for _, p := range b.Periods {
			pt.AppendRow(table.Row{p.Start, p.End, p.Days, money(p.Total)})
		}
		pt.Render()
	}

	trend := b.TrendPercent
	if trend == "" {
		trend = "n/a"
	}
	fmt.Fprintf(w, "Average daily cost %s, trend %s\n", money(b.AvgDailyCost), trend)
}

func renderAnomalies(w io.Writer, r *model.AnomalyReport) {
	fmt.Fprintf(w, "Anomalies %s .. %s\n", r.Start, r.End)
	tw := newTable(w, table.Row{"Date", "Type", "Severity", "Actual", "Expected", "Change", "Sigma"}, 4, 5, 6, 7)
	for _, a := range r.Anomalies {
		tw.AppendRow(table.Row{
			a.Date,
			a.Type,
			severityColor(a.Severity).Sprint(string(a.Severity)),
			money(a.ActualCost),
			money(a.ExpectedCost),
			fmt.Sprintf("%+.1f%%", a.DeviationPct),
			fmt.Sprintf("%.2f", a.Deviation),
		})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d spikes", r.Summary.Spikes), fmt.Sprintf("%d drops", r.Summary.Drops), "", "Net", money(r.Summary.NetDeviation), ""})
	tw.Render()
}

func renderWaste(w io.Writer, r *model.WasteReport) {
	tw := newTable(w, table.Row{"ID", "Resource", "Type", "Waste", "Severity", "Status", "Savings/mo"}, 7)
	for _, f := range r.Findings {
		name := f.ResourceName
		if name == "" {
			name = f.ResourceID
		}
		tw.AppendRow(table.Row{
			shortID(f.ID),
			name,
			f.ResourceType,
			f.WasteType,
			severityColor(f.Severity).Sprint(string(f.Severity)),
			f.Status,
			money(f.EstimatedSavings),
		})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d findings", r.Summary.Total), "", "", "", "Total", money(r.Summary.TotalSavings)})
	tw.Render()
}

func renderIdle(w io.Writer, r *model.IdleReport) {
	tw := newTable(w, table.Row{"ID", "Resource", "Type", "Idle", "Days", "Priority", "Status", "Savings/mo"}, 5, 8)
	for _, f := range r.Findings {
		name := f.ResourceName
		if name == "" {
			name = f.ResourceID
		}
		tw.AppendRow(table.Row{
			shortID(f.ID),
			name,
			f.ResourceType,
			f.IdleType,
			f.IdleDays,
			f.Priority,
			f.Status,
			money(f.PotentialSavings),
		})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d findings", r.Summary.Total), "", "", "", "", "Total", money(r.Summary.TotalSavings)})
	tw.Render()
}

func renderPredictions(w io.Writer, r *model.PredictionReport) {
	tw := newTable(w, table.Row{"Account", "Month", "Predicted", "Budget", "Used", "Trend", "Confidence"}, 3, 4, 5, 7)
	for _, p := range r.Predictions {
		budget, used := "-", "-"
		if p.Budget != nil {
			budget = money(*p.Budget)
			used = fmt.Sprintf("%.1f%%", p.BudgetUtilization)
			if p.OverBudget {
				used = text.FgHiRed.Sprint(used)
			}
		}
		tw.AppendRow(table.Row{
			p.AccountID,
			p.PredictionMonth,
			money(p.PredictedCost),
			budget,
			used,
			p.Trend,
			fmt.Sprintf("%.0f%%", p.Confidence*100),
		})
	}
	tw.AppendFooter(table.Row{"Total", "", money(r.Summary.TotalPredicted), money(r.Summary.TotalBudget), "", "", ""})
	tw.Render()
}

type jobView struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

func jobViews(list []jobs.Job) []jobView {
	views := make([]jobView, 0, len(list))
	for _, j := range list {
		v := jobView{Name: j.Name, Schedule: j.Schedule}
		if v.Schedule == "" {
			v.Schedule = "on demand"
		}
		if !j.LastRun.IsZero() {
			t := j.LastRun
			v.LastRun = &t
		}
		if j.LastErr != nil {
			v.LastErr = j.LastErr.Error()
		}
		views = append(views, v)
	}
	return views
}

func renderJobs(w io.Writer, list []jobs.Job) {
	tw := newTable(w, table.Row{"Name", "Schedule", "Last Run", "Last Error"})
	for _, v := range jobViews(list) {
		last := "never"
		if v.LastRun != nil {
			last = v.LastRun.UTC().Format(time.RFC3339)
		}
		tw.AppendRow(table.Row{v.Name, v.Schedule, last, v.LastErr})
	}
	tw.Render()
}
