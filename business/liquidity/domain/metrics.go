// Package domain contains result types for the liquidity analytics context.
package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientData is returned instead of a misleading coefficient when
// a metric cannot be estimated from the inputs (too few trades, zero
// variance). Undefined metrics are reported as undefined, never zeroed.
var ErrInsufficientData = errors.New("insufficient data for liquidity metric")

// ErrUndefinedMetric is returned when a ratio has no meaning for the
// window, e.g. zero dollar volume throughout.
var ErrUndefinedMetric = errors.New("metric undefined for window")

// ImpactCoefficient is the estimated price-impact slope (Kyle's lambda):
// price change per share of signed order flow, with the regression fit
// quality attached.
type ImpactCoefficient struct {
	Lambda   float64 // price change per unit signed volume
	RSquared float64
	Trades   int
}

// IlliquidityRatio is the Amihud measure: mean |return| per dollar traded.
type IlliquidityRatio struct {
	Ratio   float64
	Periods int // periods with non-zero dollar volume that contributed
	Skipped int // zero-volume periods excluded from the mean
}

// Gap is a price interval with no resting orders: the zone a market order
// falls through.
type Gap struct {
	Lower    decimal.Decimal
	Upper    decimal.Decimal
	WidthPct float64 // gap width as a percentage of the upper price
}
