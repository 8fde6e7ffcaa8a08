// Package app implements the arbitrage evaluator.
//
// The evaluator answers the question at the heart of the August 24
// episode: with an ETF visibly 30-40% below fair value, why did nobody
// buy it? The answer is in the barriers: when the basket cannot be
// hedged, when the fair value feed is stale, when halts make the next
// print unknowable, a huge spread is risk, not profit.
package app

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantedu/etf-stress-sim/business/arbitrage/domain"
)

// Config carries the evaluator parameters. All thresholds are supplied
// externally so that scenarios remain reproducible experiments.
type Config struct {
	Symbol              string
	TransactionCostBps  float64
	CreationUnitSize    int64
	MinProfitThreshold  float64 // fraction of ETF price, e.g. 0.001
	HedgeableThreshold  float64 // minimum basket coverage, e.g. 0.8
	ShockPct            float64 // adverse move applied to the unhedged remainder
	StaleReferenceAge   time.Duration
	AvailableCapital    decimal.Decimal
	ExtremeDeviationPct float64 // beyond this, price discovery is treated as broken
}

// Input is one tick's view of the market as seen by an arbitrageur.
type Input struct {
	Timestamp         time.Time
	ETFPrice          decimal.Decimal
	FairValue         decimal.Decimal
	HedgeableFraction float64
	ReferenceAge      time.Duration // age of the fair value estimate
	Halted            bool          // ETF or a material share of components halted
}

// Evaluator classifies creation/redemption opportunities.
type Evaluator struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Evaluator {
	if cfg.ExtremeDeviationPct <= 0 {
		cfg.ExtremeDeviationPct = 20
	}
	return &Evaluator{cfg: cfg, log: log}
}

// AnalyzeOpportunity computes the spread against fair value, nets out
// transaction costs, stresses the unhedged remainder by the configured
// shock, and classifies any barriers. Executable requires all of:
// profitable after costs, hedgeable fraction at or above the
// threshold, profit surviving the shock, and no other barrier.
//
// Barriers are ordered by priority: an unhedgeable basket dominates
// everything else, regardless of how wide the raw spread is.
func (e *Evaluator) AnalyzeOpportunity(in Input) domain.Opportunity {
	spread := in.ETFPrice.Sub(in.FairValue)
	spreadPct := decimal.Zero
	if in.FairValue.IsPositive() {
		spreadPct = spread.Div(in.FairValue).Mul(oneHundred)
	}

	typ := domain.NoOpportunity
	switch {
	case spread.IsPositive():
		typ = domain.Creation
	case spread.IsNegative():
		typ = domain.Redemption
	}

	gross := spread.Abs()
	costs := in.ETFPrice.Mul(decimal.NewFromFloat(e.cfg.TransactionCostBps / 10_000))
	net := gross.Sub(costs)
	minProfit := in.ETFPrice.Mul(decimal.NewFromFloat(e.cfg.MinProfitThreshold))
	profitable := net.GreaterThan(minProfit)

	// Worst case the unhedged remainder moves against the position by
	// the shock percentage before the arb can be unwound.
	unhedged := 1 - in.HedgeableFraction
	shockLoss := in.ETFPrice.Mul(decimal.NewFromFloat(e.cfg.ShockPct * unhedged))
	shocked := net.Sub(shockLoss)

	var barriers []domain.BarrierType
	if in.HedgeableFraction < e.cfg.HedgeableThreshold {
		barriers = append(barriers, domain.BarrierUnhedgeableComponent)
	} else if profitable && !shocked.GreaterThan(minProfit) {
		// Covered enough to pass the threshold, but the residual
		// exposure still eats the profit under the shock.
		barriers = append(barriers, domain.BarrierUnhedgeableComponent)
	}
	if e.cfg.StaleReferenceAge > 0 && in.ReferenceAge > e.cfg.StaleReferenceAge {
		barriers = append(barriers, domain.BarrierStaleReference)
	}
	if in.Halted || spreadPct.Abs().GreaterThan(decimal.NewFromFloat(e.cfg.ExtremeDeviationPct)) {
		barriers = append(barriers, domain.BarrierHaltRisk)
	}
	if required := e.RequiredCapital(in.ETFPrice, 1); required.GreaterThan(e.cfg.AvailableCapital) {
		barriers = append(barriers, domain.BarrierInsufficientCapital)
	}

	executable := profitable && len(barriers) == 0

	opp := domain.Opportunity{
		Timestamp:             in.Timestamp,
		Symbol:                e.cfg.Symbol,
		ETFPrice:              in.ETFPrice,
		FairValue:             in.FairValue,
		SpreadPct:             spreadPct,
		Type:                  typ,
		HedgeableFraction:     in.HedgeableFraction,
		GrossProfitPerShare:   gross,
		TransactionCosts:      costs,
		NetProfitPerShare:     net,
		ShockedProfitPerShare: shocked,
		Profitable:            profitable,
		Executable:            executable,
		Barriers:              barriers,
	}

	if profitable && !executable {
		primary, _ := opp.PrimaryBarrier()
		e.log.Debug("profitable spread blocked",
			zap.String("symbol", e.cfg.Symbol),
			zap.String("spread_pct", spreadPct.StringFixed(2)),
			zap.String("barrier", primary.String()))
	}
	return opp
}

// NoArbitrageBounds is the corridor around fair value inside which no
// rational arbitrageur acts. Transaction costs set the floor width;
// hedge uncertainty widens it hyperbolically as coverage falls, so a
// barely-hedgeable basket tolerates enormous visible discounts. With
// nothing hedgeable the corridor is unbounded.
func (e *Evaluator) NoArbitrageBounds(fairValue decimal.Decimal, hedgeableFraction float64) domain.Bounds {
	costWidth := e.cfg.TransactionCostBps / 10_000
	if hedgeableFraction <= 0 {
		return domain.Bounds{Unbounded: true}
	}
	width := costWidth + e.cfg.ShockPct*(1-hedgeableFraction)/hedgeableFraction
	w := decimal.NewFromFloat(width)
	return domain.Bounds{
		Lower:    fairValue.Mul(decimal.NewFromInt(1).Sub(w)),
		Upper:    fairValue.Mul(decimal.NewFromInt(1).Add(w)),
		WidthPct: w.Mul(oneHundred),
	}
}

// RequiredCapital prices one side of the trade for the given number of
// creation units, with a 20% buffer for margin and costs.
func (e *Evaluator) RequiredCapital(etfPrice decimal.Decimal, units int64) decimal.Decimal {
	shares := decimal.NewFromInt(e.cfg.CreationUnitSize * units)
	return etfPrice.Mul(shares).Mul(capitalBuffer)
}

var (
	oneHundred    = decimal.NewFromInt(100)
	capitalBuffer = decimal.NewFromFloat(1.20)
)
