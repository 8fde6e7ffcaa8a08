package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeOfDay is the LULD session category. Opening and closing periods
// double the bands per FINRA Rule 6190.
type TimeOfDay string

const (
	TimeOfDayOpening TimeOfDay = "opening" // 9:30-9:45
	TimeOfDayClosing TimeOfDay = "closing" // 15:35-16:00
	TimeOfDayNormal  TimeOfDay = "normal"
)

// BandParams selects the regulatory band percentage.
type BandParams struct {
	Tier      int // 1 = S&P 500 / Russell 1000 / select ETPs, 2 = other NMS
	TimeOfDay TimeOfDay
	Leverage  float64 // band multiplier for leveraged ETPs, 1.0 otherwise
}

// Bands is a computed LULD corridor around a reference price.
type Bands struct {
	Lower decimal.Decimal
	Upper decimal.Decimal
	Pct   float64 // final band percentage as a decimal, e.g. 0.05
}

// Contains reports whether price sits strictly inside the corridor.
func (b Bands) Contains(price decimal.Decimal) bool {
	return price.GreaterThan(b.Lower) && price.LessThan(b.Upper)
}

var (
	dollars3 = decimal.NewFromInt(3)
	cents75  = decimal.NewFromFloat(0.75)
	cents15  = decimal.NewFromFloat(0.15)

	pct5  = decimal.NewFromFloat(0.05)
	pct10 = decimal.NewFromFloat(0.10)
	pct20 = decimal.NewFromFloat(0.20)
	pct75 = decimal.NewFromFloat(0.75)
	two   = decimal.NewFromInt(2)
)

// ComputeBands derives the LULD corridor per SEC Release 34-67091:
// above $3 the band is 5% (tier 1) or 10% (tier 2); $0.75-$3 uses 20%;
// below $0.75 the band is 75% or $0.15, whichever is less restrictive.
// Opening/closing periods double the percentage, leverage multiplies it.
// The corridor is exact decimal arithmetic; the lower band never goes
// below zero.
func ComputeBands(reference decimal.Decimal, p BandParams) Bands {
	var basePct decimal.Decimal
	switch {
	case reference.GreaterThanOrEqual(dollars3):
		if p.Tier == 2 {
			basePct = pct10
		} else {
			basePct = pct5
		}
	case reference.GreaterThanOrEqual(cents75):
		basePct = pct20
	default:
		// Less restrictive means the larger absolute band: 75% of the
		// reference or $0.15, whichever is wider.
		if reference.IsPositive() && reference.Mul(pct75).LessThan(cents15) {
			basePct = cents15.Div(reference)
		} else {
			basePct = pct75
		}
	}

	if p.TimeOfDay == TimeOfDayOpening || p.TimeOfDay == TimeOfDayClosing {
		basePct = basePct.Mul(two)
	}
	if p.Leverage > 1 {
		basePct = basePct.Mul(decimal.NewFromFloat(p.Leverage))
	}

	band := reference.Mul(basePct)
	lower := reference.Sub(band)
	if lower.IsNegative() {
		lower = decimal.Zero
	}
	return Bands{
		Lower: lower,
		Upper: reference.Add(band),
		Pct:   basePct.InexactFloat64(),
	}
}

// TimeOfDayCategory classifies a session timestamp for band doubling.
func TimeOfDayCategory(t time.Time) TimeOfDay {
	h, m := t.Hour(), t.Minute()
	mins := h*60 + m
	switch {
	case mins >= 9*60+30 && mins < 9*60+45:
		return TimeOfDayOpening
	case mins >= 15*60+35 && mins <= 16*60:
		return TimeOfDayClosing
	default:
		return TimeOfDayNormal
	}
}
