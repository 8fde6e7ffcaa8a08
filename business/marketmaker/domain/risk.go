package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskMetrics is a point-in-time view of position risk.
type RiskMetrics struct {
	NetDelta          float64
	InventoryRiskUSD  decimal.Decimal
	GammaRisk         float64
	VaR95             float64
	ExpectedShortfall float64
	MaxDrawdown       float64
	InventoryPct      float64
}

// InsufficientRiskCapacityError is returned when a fill would push the
// position past its inventory or capital limit. The trade is rejected
// whole; there is no partial acceptance at the risk boundary.
type InsufficientRiskCapacityError struct {
	ProjectedInventory int64
	MaxInventory       int64
	UnhedgedExposure   decimal.Decimal
	CapitalLimit       decimal.Decimal
}

func (e *InsufficientRiskCapacityError) Error() string {
	if e.MaxInventory > 0 && abs64(e.ProjectedInventory) > e.MaxInventory {
		return fmt.Sprintf("insufficient risk capacity: projected inventory %d exceeds limit %d",
			e.ProjectedInventory, e.MaxInventory)
	}
	return fmt.Sprintf("insufficient risk capacity: unhedged exposure %s exceeds capital limit %s",
		e.UnhedgedExposure.StringFixed(2), e.CapitalLimit.StringFixed(2))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
