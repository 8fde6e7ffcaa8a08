// Package domain contains the arbitrage evaluation types.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityType classifies the primary-market action a deviation
// from fair value would call for.
type OpportunityType int

const (
	// NoOpportunity means price and fair value agree.
	NoOpportunity OpportunityType = iota
	// Creation: ETF trading at a premium, buy the basket and create.
	Creation
	// Redemption: ETF trading at a discount, buy the ETF and redeem.
	Redemption
)

func (t OpportunityType) String() string {
	switch t {
	case Creation:
		return "creation"
	case Redemption:
		return "redemption"
	default:
		return "none"
	}
}

// BarrierType explains why a profitable-looking spread cannot actually
// be arbitraged. Tests and callers depend on the reason, not just the
// executable verdict.
type BarrierType int

const (
	// BarrierUnhedgeableComponent: too little of the basket can be
	// hedged, either below the coverage threshold or because the
	// unhedged remainder does not survive an adverse shock.
	BarrierUnhedgeableComponent BarrierType = iota
	// BarrierStaleReference: the fair value estimate is too old to act on.
	BarrierStaleReference
	// BarrierHaltRisk: halts are in force or the deviation is so
	// extreme that price discovery itself is suspect.
	BarrierHaltRisk
	// BarrierInsufficientCapital: one creation unit plus buffer
	// exceeds available capital.
	BarrierInsufficientCapital
)

func (b BarrierType) String() string {
	switch b {
	case BarrierUnhedgeableComponent:
		return "unhedgeable_component"
	case BarrierStaleReference:
		return "stale_reference"
	case BarrierHaltRisk:
		return "halt_risk"
	case BarrierInsufficientCapital:
		return "insufficient_capital"
	default:
		return fmt.Sprintf("barrier(%d)", int(b))
	}
}

// Opportunity is the immutable verdict for one evaluation. Produced
// fresh each tick, never mutated.
type Opportunity struct {
	Timestamp         time.Time
	Symbol            string
	ETFPrice          decimal.Decimal
	FairValue         decimal.Decimal
	SpreadPct         decimal.Decimal
	Type              OpportunityType
	HedgeableFraction float64

	GrossProfitPerShare   decimal.Decimal
	TransactionCosts      decimal.Decimal
	NetProfitPerShare     decimal.Decimal
	ShockedProfitPerShare decimal.Decimal

	Profitable bool
	Executable bool
	Barriers   []BarrierType
}

// PrimaryBarrier returns the highest-priority barrier, or false when
// the opportunity carries none.
func (o Opportunity) PrimaryBarrier() (BarrierType, bool) {
	if len(o.Barriers) == 0 {
		return 0, false
	}
	return o.Barriers[0], true
}

// HasBarrier reports whether b was identified.
func (o Opportunity) HasBarrier(b BarrierType) bool {
	for _, have := range o.Barriers {
		if have == b {
			return true
		}
	}
	return false
}

// Bounds is the no-arbitrage corridor around fair value. Unbounded is
// set when nothing can be hedged and no price deviation, however
// large, would draw in arbitrage capital.
type Bounds struct {
	Lower     decimal.Decimal
	Upper     decimal.Decimal
	WidthPct  decimal.Decimal
	Unbounded bool
}

// Contains reports whether price sits inside the corridor.
func (b Bounds) Contains(price decimal.Decimal) bool {
	if b.Unbounded {
		return true
	}
	return price.GreaterThanOrEqual(b.Lower) && price.LessThanOrEqual(b.Upper)
}
