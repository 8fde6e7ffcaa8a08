package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is an immutable point-in-time capture of both book sides.
// Derived quantities are computed on demand from the captured levels, never
// cached, so a snapshot is always internally consistent.
type Snapshot struct {
	Timestamp time.Time
	Bids      []PriceLevel // best first (descending price)
	Asks      []PriceLevel // best first (ascending price)
	LastTrade *decimal.Decimal
	FairValue decimal.Decimal
	Halted    bool
}

// BestBid returns the top bid level.
func (s Snapshot) BestBid() (PriceLevel, error) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, &EmptyBookError{Side: Buy}
	}
	return s.Bids[0], nil
}

// BestAsk returns the top ask level.
func (s Snapshot) BestAsk() (PriceLevel, error) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, &EmptyBookError{Side: Sell}
	}
	return s.Asks[0], nil
}

// Spread returns ask minus bid in price units.
func (s Snapshot) Spread() (decimal.Decimal, error) {
	bid, err := s.BestBid()
	if err != nil {
		return decimal.Zero, err
	}
	ask, err := s.BestAsk()
	if err != nil {
		return decimal.Zero, err
	}
	return ask.Price.Sub(bid.Price), nil
}

// Mid returns the quote midpoint.
func (s Snapshot) Mid() (decimal.Decimal, error) {
	bid, err := s.BestBid()
	if err != nil {
		return decimal.Zero, err
	}
	ask, err := s.BestAsk()
	if err != nil {
		return decimal.Zero, err
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), nil
}

// SpreadBps returns the spread in basis points of the midpoint. During the
// crash wide spreads made midpoints unreliable for fair value; callers
// should prefer FairValue when it is populated.
func (s Snapshot) SpreadBps() (decimal.Decimal, error) {
	spread, err := s.Spread()
	if err != nil {
		return decimal.Zero, err
	}
	mid, err := s.Mid()
	if err != nil {
		return decimal.Zero, err
	}
	if !mid.IsPositive() {
		return decimal.Zero, &EmptyBookError{Side: Buy}
	}
	return spread.Div(mid).Mul(ten4), nil
}

// DepthWithin returns cumulative (bid, ask) size within distancePct of the
// midpoint, e.g. 0.01 for one percent.
func (s Snapshot) DepthWithin(distancePct float64) (int64, int64, error) {
	mid, err := s.Mid()
	if err != nil {
		return 0, 0, err
	}
	threshold := mid.Mul(decimal.NewFromFloat(distancePct))
	lower := mid.Sub(threshold)
	upper := mid.Add(threshold)

	var bidDepth, askDepth int64
	for _, lvl := range s.Bids {
		if lvl.Price.LessThan(lower) {
			break
		}
		bidDepth += lvl.Size
	}
	for _, lvl := range s.Asks {
		if lvl.Price.GreaterThan(upper) {
			break
		}
		askDepth += lvl.Size
	}
	return bidDepth, askDepth, nil
}

// InsufficientDepthError reports that a hypothetical order exceeds the
// visible liquidity rather than fabricating an execution price.
type InsufficientDepthError struct {
	Side      Side
	Requested int64
	Visible   int64
}

func (e *InsufficientDepthError) Error() string {
	return "insufficient visible depth for projected impact"
}

// ProjectedImpact returns the volume-weighted price a market order of the
// given size would pay against the snapshot. The snapshot is not mutated.
func (s Snapshot) ProjectedImpact(side Side, size int64) (decimal.Decimal, error) {
	if size <= 0 {
		return decimal.Zero, &InvalidOrderError{Price: decimal.Zero, Size: size}
	}
	levels := s.Asks
	if side == Sell {
		levels = s.Bids
	}

	remaining := size
	notional := decimal.Zero
	for _, lvl := range levels {
		traded := min(remaining, lvl.Size)
		notional = notional.Add(lvl.Price.Mul(decimal.NewFromInt(traded)))
		remaining -= traded
		if remaining == 0 {
			break
		}
	}
	if remaining > 0 {
		return decimal.Zero, &InsufficientDepthError{Side: side, Requested: size, Visible: size - remaining}
	}
	return notional.Div(decimal.NewFromInt(size)), nil
}
