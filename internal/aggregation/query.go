package aggregation

import (
	"fmt"
	"time"

	"github.com/fredphp/yunwei/internal/model"
)

// DefaultRange is used when a request names neither a range token nor explicit dates.
const DefaultRange = "30d"

var rangeDays = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// QueryParams are the raw request values of a cost query.
type QueryParams struct {
	Range       string
	Start       string
	End         string
	AccountID   string
	Category    string
	Granularity string
}

// ParseQuery validates request values into a query. Explicit start/end dates take
// precedence over the range token; a token of N days covers the N calendar days ending
// today, today included.
func ParseQuery(p QueryParams, now time.Time, maxWindowDays int) (model.Query, error) {
	var q model.Query
	today := model.TruncateDay(now)

	category, err := model.ParseCategory("category", p.Category)
	if err != nil {
		return q, err
	}
	q.Category = category
	q.AccountID = p.AccountID
	if q.Granularity, err = model.ParseGranularity(p.Granularity); err != nil {
		return q, err
	}

	switch {
	case p.Start != "" || p.End != "":
		if p.Start == "" {
			return q, model.NewInputError("start", "", "is required when end is set")
		}
		start, err := time.Parse(model.DateLayout, p.Start)
		if err != nil {
			return q, model.NewInputError("start", p.Start, "must be a YYYY-MM-DD date")
		}
		end := today
		if p.End != "" {
			if end, err = time.Parse(model.DateLayout, p.End); err != nil {
				return q, model.NewInputError("end", p.End, "must be a YYYY-MM-DD date")
			}
		}
		if end.Before(start) {
			return q, model.NewInputError("end", p.End, "must not be before start")
		}
		q.Range = model.DateRange{Start: start, End: end}
	default:
		token := p.Range
		if token == "" {
			token = DefaultRange
		}
		days, ok := rangeDays[token]
		if !ok {
			return q, model.NewInputError("range", token, "must be one of 7d, 30d, 90d")
		}
		q.Range = model.DateRange{Start: today.AddDate(0, 0, -(days - 1)), End: today}
	}

	if maxWindowDays > 0 {
		if n := int(q.Range.End.Sub(q.Range.Start).Hours()/24) + 1; n > maxWindowDays {
			return q, model.NewInputError("end", q.Range.End.Format(model.DateLayout),
				fmt.Sprintf("window of %d days exceeds the maximum of %d", n, maxWindowDays))
		}
	}
	return q, nil
}
