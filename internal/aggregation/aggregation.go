// Package aggregation groups raw cost records into timelines and ranked totals.
package aggregation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fredphp/yunwei/internal/model"
	"github.com/fredphp/yunwei/internal/money"
)

// DefaultTopServices is the number of services listed in a breakdown when none is configured.
const DefaultTopServices = 20

// trendDays is the length of the first and last week compared for the trend percent.
const trendDays = 7

type serviceKey struct {
	service  string
	category model.Category
}

// Result holds exact, unrounded sums for one query. Use Breakdown to format it.
type Result struct {
	Query model.Query

	days       []time.Time
	cells      map[time.Time]map[model.Category]decimal.Decimal
	services   map[serviceKey]decimal.Decimal
	categories map[model.Category]decimal.Decimal
	total      decimal.Decimal
}

// Aggregate sums records into a per-day, per-category matrix plus service and category
// totals. Every day of the query range is present; records outside the range or not
// matching the query filters are ignored.
func Aggregate(records []model.CostRecord, q model.Query) *Result {
	r := &Result{
		Query:      q,
		days:       q.Range.Days(),
		cells:      make(map[time.Time]map[model.Category]decimal.Decimal),
		services:   make(map[serviceKey]decimal.Decimal),
		categories: make(map[model.Category]decimal.Decimal),
		total:      decimal.Zero,
	}
	for _, d := range r.days {
		r.cells[d] = make(map[model.Category]decimal.Decimal)
	}

	for _, rec := range records {
		if !q.Range.Contains(rec.Date) {
			continue
		}
		if q.AccountID != "" && rec.AccountID != q.AccountID {
			continue
		}
		if q.Category != "" && rec.Category != q.Category {
			continue
		}
		amount := money.From(rec.Cost)
		day := model.TruncateDay(rec.Date)

		r.cells[day][rec.Category] = r.cells[day][rec.Category].Add(amount)
		key := serviceKey{service: rec.Service, category: rec.Category}
		r.services[key] = r.services[key].Add(amount)
		r.categories[rec.Category] = r.categories[rec.Category].Add(amount)
		r.total = r.total.Add(amount)
	}
	return r
}

// Total is the exact sum of every matched record.
func (r *Result) Total() decimal.Decimal {
	return r.total
}

// DailyTotals returns the exact total of each day in the range, oldest first.
func (r *Result) DailyTotals() []decimal.Decimal {
	totals := make([]decimal.Decimal, len(r.days))
	for i, d := range r.days {
		sum := decimal.Zero
		for _, v := range r.cells[d] {
			sum = sum.Add(v)
		}
		totals[i] = sum
	}
	return totals
}

// Days returns the calendar days of the result, oldest first.
func (r *Result) Days() []time.Time {
	return r.days
}

// Categories returns every category observed in the result, sorted by name.
func (r *Result) Categories() []model.Category {
	cats := make([]model.Category, 0, len(r.categories))
	for c := range r.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// TrendPercent compares the last week of the series with the first week, formatted with one
// decimal place. A zero first week yields "0".
func (r *Result) TrendPercent() string {
	totals := r.DailyTotals()
	n := min(trendDays, len(totals))
	first := decimal.Zero
	last := decimal.Zero
	for i := 0; i < n; i++ {
		first = first.Add(totals[i])
		last = last.Add(totals[len(totals)-n+i])
	}
	return money.PercentString(last.Sub(first), first, 1)
}

// Breakdown rounds the result into its presentation form, listing at most topServices
// services. Rounding happens here and nowhere earlier.
func (r *Result) Breakdown(topServices int) model.CostBreakdown {
	if topServices <= 0 {
		topServices = DefaultTopServices
	}
	cats := r.Categories()

	b := model.CostBreakdown{
		Start:        model.TruncateDay(r.Query.Range.Start).Format(model.DateLayout),
		End:          model.TruncateDay(r.Query.Range.End).Format(model.DateLayout),
		Categories:   cats,
		Timeline:     make([]model.DailyCost, 0, len(r.days)),
		ByService:    []model.ServiceCost{},
		ByCategory:   []model.CategoryCost{},
		Total:        money.Round(r.total),
		TrendPercent: r.TrendPercent(),
		Currency:     model.CurrencyUSD,
		Granularity:  r.Query.Granularity,
	}
	if b.Granularity == "" {
		b.Granularity = model.GranularityDay
	}
	b.Periods = r.Rollup(b.Granularity)

	for i, total := range r.DailyTotals() {
		d := r.days[i]
		row := model.DailyCost{
			Date:       d.Format(model.DateLayout),
			ByCategory: make(map[model.Category]float64, len(cats)),
			Total:      money.Round(total),
		}
		for _, c := range cats {
			row.ByCategory[c] = money.Round(r.cells[d][c])
		}
		b.Timeline = append(b.Timeline, row)
	}

	if n := len(r.days); n > 0 {
		b.AvgDailyCost = money.Round(r.total.Div(decimal.NewFromInt(int64(n))))
	}

	type ranked struct {
		name string
		cat  model.Category
		cost decimal.Decimal
	}
	services := make([]ranked, 0, len(r.services))
	for k, v := range r.services {
		services = append(services, ranked{name: k.service, cat: k.category, cost: v})
	}
	sort.Slice(services, func(i, j int) bool {
		if c := services[i].cost.Cmp(services[j].cost); c != 0 {
			return c > 0
		}
		if services[i].name != services[j].name {
			return services[i].name < services[j].name
		}
		return services[i].cat < services[j].cat
	})
	for i, s := range services {
		if i == topServices {
			break
		}
		b.ByService = append(b.ByService, model.ServiceCost{Service: s.name, Category: s.cat, Cost: money.Round(s.cost)})
	}

	for _, c := range cats {
		b.ByCategory = append(b.ByCategory, model.CategoryCost{Category: c, Cost: money.Round(r.categories[c])})
	}
	sort.SliceStable(b.ByCategory, func(i, j int) bool {
		ci, cj := r.categories[b.ByCategory[i].Category], r.categories[b.ByCategory[j].Category]
		return ci.Cmp(cj) > 0
	})

	return b
}
