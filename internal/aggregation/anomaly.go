package aggregation

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/money"
)

type period struct {
	start, end time.Time
	days       int
	cells      map[model.Category]decimal.Decimal
	total      decimal.Decimal
}

// periodStart returns the first day of the week (Monday) or month containing d.
func periodStart(d time.Time, g model.Granularity) time.Time {
	if g == model.GranularityMonth {
		return model.MonthStart(d)
	}
	return d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7))
}

// Rollup groups the daily matrix into weeks starting Monday or into calendar months. Buckets
// at the edges of the range are clipped to it. Daily granularity has no rollup.
func (r *Result) Rollup(g model.Granularity) []model.PeriodCost {
	if g != model.GranularityWeek && g != model.GranularityMonth {
		return nil
	}
	var periods []*period
	var cur *period
	var key time.Time
	for _, d := range r.days {
		if k := periodStart(d, g); cur == nil || !k.Equal(key) {
			key = k
			cur = &period{start: d, cells: make(map[model.Category]decimal.Decimal), total: decimal.Zero}
			periods = append(periods, cur)
		}
		cur.end = d
		cur.days++
		for c, v := range r.cells[d] {
			cur.cells[c] = cur.cells[c].Add(v)
			cur.total = cur.total.Add(v)
		}
	}

	cats := r.Categories()
	out := make([]model.PeriodCost, 0, len(periods))
	for _, p := range periods {
		row := model.PeriodCost{
			Start:      p.start.Format(model.DateLayout),
			End:        p.end.Format(model.DateLayout),
			Days:       p.days,
			ByCategory: make(map[model.Category]float64, len(cats)),
			Total:      money.Round(p.total),
		}
		for _, c := range cats {
			row.ByCategory[c] = money.Round(p.cells[c])
		}
		out = append(out, row)
	}
	return out
}

// Anomalies compares every day with the mean and population standard deviation of the
// p.WindowDays days before it and flags days more than p.Sigma deviations away. Days without
// a full window before them are not evaluated, nor are days whose window saw no spend. When
// the window is flat any change is flagged and the deviation is reported as 0.
func Anomalies(r *Result, p config.AnomalyPolicy) []model.CostAnomaly {
	totals := r.DailyTotals()
	window := p.WindowDays
	out := []model.CostAnomaly{}
	if window < 1 {
		return out
	}

	for i := window; i < len(totals); i++ {
		sum := decimal.Zero
		for _, v := range totals[i-window : i] {
			sum = sum.Add(v)
		}
		if sum.IsZero() {
			continue
		}
		mean := sum.Div(decimal.NewFromInt(int64(window)))
		var variance float64
		for _, v := range totals[i-window : i] {
			d := v.Sub(mean).InexactFloat64()
			variance += d * d
		}
		stddev := math.Sqrt(variance / float64(window))

		diff := totals[i].Sub(mean)
		var sigmas float64
		if stddev == 0 {
			if diff.IsZero() {
				continue
			}
		} else {
			sigmas = math.Abs(diff.InexactFloat64()) / stddev
			if sigmas <= p.Sigma {
				continue
			}
		}

		pct, _ := money.Percent(diff, mean, 1)
		a := model.CostAnomaly{
			Date:         r.days[i].Format(model.DateLayout),
			AccountID:    r.Query.AccountID,
			ActualCost:   money.Round(totals[i]),
			ExpectedCost: money.Round(mean),
			StdDev:       money.RoundTo(stddev, 2),
			Deviation:    money.RoundTo(sigmas, 2),
			DeviationPct: pct,
			Type:         model.AnomalySpike,
			Severity:     model.ClassifyAnomalySeverity(pct),
		}
		if diff.IsNegative() {
			a.Type = model.AnomalyDrop
		}
		out = append(out, a)
	}
	return out
}

// SummarizeAnomalies counts anomalies by type and severity.
func SummarizeAnomalies(anomalies []model.CostAnomaly) model.AnomalySummary {
	s := model.AnomalySummary{BySeverity: make(map[model.Severity]int)}
	net := decimal.Zero
	for _, a := range anomalies {
		s.Total++
		if a.Type == model.AnomalySpike {
			s.Spikes++
		} else {
			s.Drops++
		}
		s.BySeverity[a.Severity]++
		net = net.Add(money.From(a.ActualCost).Sub(money.From(a.ExpectedCost)))
	}
	s.NetDeviation = money.Round(net)
	return s
}
