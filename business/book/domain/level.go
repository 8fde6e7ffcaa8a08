// Package domain contains the core order book types for the book context.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the side a market order consumes liquidity from.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PriceLevel is one rung of a book side: a price and the resting size at it.
type PriceLevel struct {
	Price decimal.Decimal
	Size  int64
}

// Trade is one executed fill on the tape.
type Trade struct {
	Timestamp time.Time
	Price     decimal.Decimal
	Size      int64
	Side      Side
}

// InvalidOrderError rejects non-positive prices or sizes at the call that
// introduced them. Silent clamping would mask exactly the scenarios the
// simulation exists to illustrate.
type InvalidOrderError struct {
	Price decimal.Decimal
	Size  int64
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: price=%s size=%d (both must be positive)", e.Price, e.Size)
}

// EmptyBookError reports a structural query against an empty book side.
// A depleted side is an expected simulated state, not a bug, so callers
// branch on this type rather than aborting the run.
type EmptyBookError struct {
	Side Side
}

func (e *EmptyBookError) Error() string {
	return fmt.Sprintf("book side %s is empty", e.Side)
}

// Fill is one (price, size) slice of an executed market order.
type Fill struct {
	Price decimal.Decimal
	Size  int64
}

// FillReport describes how a market order executed. A depleted book side
// surfaces as Unfilled > 0, never as an error: this is how air pockets
// reach callers.
type FillReport struct {
	Side     Side
	Fills    []Fill
	Filled   int64
	Unfilled int64
	VWAP     decimal.Decimal // zero when Filled == 0
}

// Complete reports whether the order filled in full.
func (r FillReport) Complete() bool { return r.Unfilled == 0 }

// Notional returns the total traded value of the report.
func (r FillReport) Notional() decimal.Decimal {
	return r.VWAP.Mul(decimal.NewFromInt(r.Filled))
}
