// Package forecast projects next-month cost per account and raises budget alerts.
//
// The projection is a fixed heuristic: the trailing monthly average scaled by a growth
// multiplier taken from the last two weeks of daily spend. Confidence falls as day-to-day
// spend becomes more volatile.
package forecast

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fredphp/yunwei/internal/aggregation"
	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/money"
)

// growthDays is the length of the recent and prior weeks compared for growth.
const growthDays = 7

// Window returns the trailing window of full months before now, and the daily series range
// that runs from the start of that window through today.
func Window(now time.Time, p config.ForecastPolicy) (trailing, series model.DateRange) {
	monthStart := model.MonthStart(now)
	start := monthStart.AddDate(0, -p.TrailingMonths, 0)
	trailing = model.DateRange{Start: start, End: monthStart.AddDate(0, 0, -1)}
	series = model.DateRange{Start: start, End: model.TruncateDay(now)}
	return trailing, series
}

// History is one account's spend split the way the forecaster needs it.
type History struct {
	// Monthly holds the total of each trailing month, oldest first.
	Monthly []decimal.Decimal
	// TrailingDaily holds every day of the trailing window.
	TrailingDaily []decimal.Decimal
	// Settled holds every day of the series before today.
	Settled []decimal.Decimal
	// MonthToDate is the current month's spend including today.
	MonthToDate decimal.Decimal
}

// Split breaks an aggregated daily series into trailing months, settled days and
// month-to-date spend.
func Split(r *aggregation.Result, now time.Time, p config.ForecastPolicy) History {
	trailing, _ := Window(now, p)
	today := model.TruncateDay(now)
	monthStart := model.MonthStart(now)

	h := History{MonthToDate: decimal.Zero}
	byMonth := make(map[time.Time]decimal.Decimal)
	totals := r.DailyTotals()
	for i, d := range r.Days() {
		if d.After(today) {
			break
		}
		if d.Before(today) {
			h.Settled = append(h.Settled, totals[i])
		}
		switch {
		case trailing.Contains(d):
			h.TrailingDaily = append(h.TrailingDaily, totals[i])
			m := model.MonthStart(d)
			byMonth[m] = byMonth[m].Add(totals[i])
		case !d.Before(monthStart):
			h.MonthToDate = h.MonthToDate.Add(totals[i])
		}
	}
	for m := trailing.Start; m.Before(monthStart); m = m.AddDate(0, 1, 0) {
		h.Monthly = append(h.Monthly, byMonth[m])
	}
	return h
}

// Base is the trailing sum divided by the full window length, so months without spend
// count as zero. The second result is how many of those months saw any cost.
func (h History) Base() (decimal.Decimal, int) {
	if len(h.Monthly) == 0 {
		return decimal.Zero, 0
	}
	sum := decimal.Zero
	months := 0
	for _, m := range h.Monthly {
		sum = sum.Add(m)
		if !m.IsZero() {
			months++
		}
	}
	return sum.Div(decimal.NewFromInt(int64(len(h.Monthly)))), months
}

// Weeks returns the last settled week and the week before it.
func (h History) Weeks() (recent, prior decimal.Decimal) {
	recent, prior = decimal.Zero, decimal.Zero
	n := len(h.Settled)
	for i := max(0, n-growthDays); i < n; i++ {
		recent = recent.Add(h.Settled[i])
	}
	for i := max(0, n-2*growthDays); i < max(0, n-growthDays); i++ {
		prior = prior.Add(h.Settled[i])
	}
	return recent, prior
}

// GrowthMultiplier turns week-over-week change into a multiplier clamped to 1±step. A
// zero prior week means no growth signal.
func GrowthMultiplier(recent, prior decimal.Decimal, step float64) float64 {
	if prior.IsZero() {
		return 1
	}
	change := recent.Div(prior).Sub(decimal.NewFromInt(1)).InexactFloat64()
	return 1 + math.Max(-step, math.Min(step, change))
}

// meanStdDev returns the mean and population standard deviation of daily spend.
func meanStdDev(daily []decimal.Decimal) (mean, stddev float64) {
	if len(daily) == 0 {
		return 0, 0
	}
	values := make([]float64, len(daily))
	for i, d := range daily {
		values[i] = d.InexactFloat64()
		mean += values[i]
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

// Volatility is the coefficient of variation of daily spend, or 0 when the mean is 0.
func Volatility(daily []decimal.Decimal) float64 {
	mean, stddev := meanStdDev(daily)
	if mean == 0 {
		return 0
	}
	return stddev / mean
}

// Confidence is 1 minus volatility, clamped to [0,1] with two decimals. A window without
// spend has no confidence.
func Confidence(daily []decimal.Decimal) float64 {
	mean, stddev := meanStdDev(daily)
	if mean == 0 {
		return 0
	}
	return money.RoundTo(math.Max(0, math.Min(1, 1-stddev/mean)), 2)
}

// TrendFor classifies predicted against the trailing base.
func TrendFor(predicted, base decimal.Decimal, decreaseRatio float64) model.Trend {
	switch {
	case predicted.GreaterThan(base):
		return model.TrendIncreasing
	case predicted.LessThan(base.Mul(decimal.NewFromFloat(decreaseRatio))):
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

// ApplyBudget fills the budget comparison fields of p. Without a positive budget,
// utilization and gap are 0 and the prediction is never over budget.
func ApplyBudget(p *model.CostPrediction, budget *float64) {
	p.Budget = budget
	p.BudgetUtilization, p.OverBudget, p.BudgetGap = 0, false, 0
	if budget == nil || *budget <= 0 {
		return
	}
	predicted := money.From(p.PredictedCost)
	limit := money.From(*budget)
	p.BudgetUtilization, _ = money.Percent(predicted, limit, 1)
	p.OverBudget = predicted.GreaterThan(limit)
	p.BudgetGap = money.Round(predicted.Sub(limit))
}

// Predict projects an account's cost for each month of the horizon. The multiplier
// compounds month over month.
func Predict(account model.CloudAccount, h History, p config.ForecastPolicy, now time.Time) []model.CostPrediction {
	base, months := h.Base()
	recent, prior := h.Weeks()
	growth := GrowthMultiplier(recent, prior, p.MaxGrowthStep)
	confidence := Confidence(h.TrailingDaily)

	factors := map[string]float64{
		"historicalAverage": money.Round(base),
		"growthMultiplier":  money.RoundTo(growth, 4),
		"recentWeek":        money.Round(recent),
		"priorWeek":         money.Round(prior),
		"volatility":        money.RoundTo(Volatility(h.TrailingDaily), 4),
		"monthsOfHistory":   float64(months),
	}

	horizon := max(1, p.HorizonMonths)
	monthStart := model.MonthStart(now)
	multiplier := decimal.NewFromFloat(growth)
	predicted := base
	out := make([]model.CostPrediction, 0, horizon)
	for i := 1; i <= horizon; i++ {
		predicted = predicted.Mul(multiplier)
		pred := model.CostPrediction{
			ID:              model.NewID(),
			AccountID:       account.ID,
			Provider:        account.Provider,
			PredictionMonth: monthStart.AddDate(0, i, 0).Format(model.MonthLayout),
			PredictedCost:   money.Round(predicted),
			BaseCost:        money.Round(base),
			Confidence:      confidence,
			Trend:           TrendFor(predicted, base, p.DecreaseRatio),
			Factors:         factors,
			GeneratedAt:     now,
		}
		ApplyBudget(&pred, account.MonthlyBudget)
		out = append(out, pred)
	}
	return out
}

// AlertFor compares month-to-date spend with the account's alert threshold. It reports false
// when the account has no budget or spend is below the threshold.
func AlertFor(account model.CloudAccount, spend decimal.Decimal, p config.ForecastPolicy, now time.Time) (model.BudgetAlert, bool) {
	budget := account.Budget()
	if budget <= 0 {
		return model.BudgetAlert{}, false
	}
	threshold := account.AlertThreshold
	if threshold <= 0 {
		threshold = p.DefaultAlertThreshold
	}
	limit := money.From(budget)
	trigger := limit.Mul(money.From(threshold)).Div(decimal.NewFromInt(100))
	if spend.LessThan(trigger) {
		return model.BudgetAlert{}, false
	}

	a := model.BudgetAlert{
		ID:           model.NewID(),
		AccountID:    account.ID,
		Period:       model.MonthStart(now).Format(model.MonthLayout),
		AlertType:    model.AlertTypeThreshold,
		Threshold:    threshold,
		CurrentSpend: money.Round(spend),
		BudgetAmount: budget,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	pct, _ := money.Percent(spend, limit, 1)
	a.Message = fmt.Sprintf("%s has spent %.2f of its %.2f budget (%.1f%%), above the %.0f%% threshold",
		accountLabel(account), a.CurrentSpend, budget, pct, threshold)
	if !spend.LessThan(limit) {
		a.AlertType = model.AlertTypeExceeded
		a.Message = fmt.Sprintf("%s has exceeded its %.2f budget with %.2f spent (%.1f%%)",
			accountLabel(account), budget, a.CurrentSpend, pct)
	}
	return a, true
}

func accountLabel(a model.CloudAccount) string {
	if a.Name != "" {
		return a.Name
	}
	return a.AccountID
}

// MergeAlert folds a recomputed alert into the stored one for the same account and period.
// notify is true for a new alert and for an escalation from threshold to exceeded.
func MergeAlert(prior *model.BudgetAlert, fresh model.BudgetAlert) (merged model.BudgetAlert, notify bool) {
	if prior == nil {
		return fresh, true
	}
	notify = prior.AlertType == model.AlertTypeThreshold && fresh.AlertType == model.AlertTypeExceeded
	fresh.ID = prior.ID
	fresh.CreatedAt = prior.CreatedAt
	fresh.Acknowledged = prior.Acknowledged || fresh.Acknowledged
	return fresh, notify
}

// Summarize rolls up the nearest month predicted for each account.
func Summarize(predictions []model.CostPrediction) model.PredictionSummary {
	nearest := make(map[string]model.CostPrediction)
	for _, p := range predictions {
		if cur, ok := nearest[p.AccountID]; !ok || p.PredictionMonth < cur.PredictionMonth {
			nearest[p.AccountID] = p
		}
	}

	s := model.PredictionSummary{
		Trends:     map[model.Trend]int{model.TrendIncreasing: 0, model.TrendDecreasing: 0, model.TrendStable: 0},
		ByProvider: make(map[model.CloudProvider]model.ProviderRollup),
	}
	var predicted, budget, confidence []float64
	type rollup struct{ predicted, budget []float64 }
	byProvider := make(map[model.CloudProvider]*rollup)
	counts := make(map[model.CloudProvider]int)

	for _, p := range nearest {
		predicted = append(predicted, p.PredictedCost)
		confidence = append(confidence, p.Confidence)
		if p.OverBudget {
			s.OverBudgetCount++
		}
		s.Trends[p.Trend]++

		r := byProvider[p.Provider]
		if r == nil {
			r = &rollup{}
			byProvider[p.Provider] = r
		}
		r.predicted = append(r.predicted, p.PredictedCost)
		counts[p.Provider]++
		if p.Budget != nil && *p.Budget > 0 {
			budget = append(budget, *p.Budget)
			r.budget = append(r.budget, *p.Budget)
		}
	}

	s.TotalPredicted = money.Round(money.Sum(predicted...))
	s.TotalBudget = money.Round(money.Sum(budget...))
	if len(confidence) > 0 {
		avg := money.Sum(confidence...).Div(decimal.NewFromInt(int64(len(confidence))))
		s.AvgConfidence = avg.Round(2).InexactFloat64()
	}
	for provider, r := range byProvider {
		total := money.Sum(r.predicted...)
		limit := money.Sum(r.budget...)
		util, _ := money.Percent(total, limit, 1)
		s.ByProvider[provider] = model.ProviderRollup{
			Count:       counts[provider],
			Predicted:   money.Round(total),
			Budget:      money.Round(limit),
			Utilization: util,
		}
	}
	return s
}

// DailyTrends returns each account's daily spend over r, oldest day first, with zero days
// included.
func DailyTrends(records []model.CostRecord, accountIDs []string, r model.DateRange) map[string][]model.DailyTrend {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)
	out := make(map[string][]model.DailyTrend, len(ids))
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		res := aggregation.Aggregate(records, model.Query{Range: r, AccountID: id})
		totals := res.DailyTotals()
		trend := make([]model.DailyTrend, len(totals))
		for i, d := range res.Days() {
			trend[i] = model.DailyTrend{Date: d.Format(model.DateLayout), Cost: money.Round(totals[i])}
		}
		out[id] = trend
	}
	return out
}
