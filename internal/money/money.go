// Package money keeps monetary arithmetic exact until the final formatting step.
//
// Intermediate sums are decimal.Decimal values; rounding to cents happens once, at output,
// using round-half-away-from-zero.
package money

import "github.com/shopspring/decimal"

// Cents is the number of decimal places used for monetary output.
const Cents = 2

// From converts a stored float amount into an exact decimal.
func From(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// Sum adds amounts without intermediate rounding.
func Sum(amounts ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(From(a))
	}
	return total
}

// Round rounds d to cents, half away from zero.
func Round(d decimal.Decimal) float64 {
	return d.Round(Cents).InexactFloat64()
}

// RoundTo rounds f to the given number of places, half away from zero.
func RoundTo(f float64, places int32) float64 {
	return From(f).Round(places).InexactFloat64()
}

// Product multiplies the factors exactly and rounds the result to cents.
func Product(factors ...float64) float64 {
	if len(factors) == 0 {
		return 0
	}
	p := From(factors[0])
	for _, f := range factors[1:] {
		p = p.Mul(From(f))
	}
	return Round(p)
}

// Percent returns part/whole*100 rounded to places. ok is false when whole is zero.
func Percent(part, whole decimal.Decimal, places int32) (pct float64, ok bool) {
	if whole.IsZero() {
		return 0, false
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(places).InexactFloat64(), true
}

// PercentString is Percent formatted with a fixed number of places, or "0" when whole is zero.
func PercentString(part, whole decimal.Decimal, places int32) string {
	if whole.IsZero() {
		return "0"
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).StringFixed(places)
}
