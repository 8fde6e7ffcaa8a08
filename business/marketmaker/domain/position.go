package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// Position tracks the market maker's signed inventory in a single ETF
// along with the average entry price of the open lot, realized P&L, and
// the current hedge status. Inventory is positive when long.
type Position struct {
	Inventory     int64
	AvgEntryPrice decimal.Decimal
	RealizedPnL   decimal.Decimal
	Hedge         HedgeStatus
}

// NewPosition starts flat with a full hedge available.
func NewPosition() Position {
	return Position{Hedge: FullHedge()}
}

// Flat reports whether there is no open inventory.
func (p Position) Flat() bool { return p.Inventory == 0 }

// NetDelta is the unhedged share exposure: inventory scaled by the
// portion of it that cannot be offset in the basket.
func (p Position) NetDelta() float64 {
	return float64(p.Inventory) * (1 - p.Hedge.Fraction())
}

// InventoryRiskUSD is the dollar value of the unhedged exposure scaled
// by current volatility: the amount plausibly at risk over a short
// horizon if the hedge cannot be restored.
func (p Position) InventoryRiskUSD(price decimal.Decimal, volatility float64) decimal.Decimal {
	delta := decimal.NewFromFloat(math.Abs(p.NetDelta()))
	return delta.Mul(price).Mul(decimal.NewFromFloat(volatility))
}

// GammaRisk approximates second-order exposure as unhedged delta times
// volatility. For a plain ETF position this is a proxy, not an options
// greek, but it ranks positions the same way.
func (p Position) GammaRisk(volatility float64) float64 {
	return math.Abs(p.NetDelta()) * volatility
}

// UnrealizedPnL marks the open lot against price.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p.Inventory == 0 {
		return decimal.Zero
	}
	return price.Sub(p.AvgEntryPrice).Mul(decimal.NewFromInt(p.Inventory))
}
