// Package app implements the market maker quoting and risk engine.
//
// The engine models a single-name ETF market maker during a stress
// episode: quotes widen as the hedge degrades from full to partial to
// none, inventory skews the market, and past a risk premium threshold
// the maker withdraws entirely. Withdrawal is what turns a thin book
// into an air pocket, so the quoting rule here feeds directly into the
// book stress model.
package app

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantedu/etf-stress-sim/business/marketmaker/domain"
)

// Config carries the engine parameters. All bps values are basis points
// of fair value.
type Config struct {
	InitialCapital         decimal.Decimal
	MaxInventory           int64
	QuoteSize              int64
	BaseSpreadBps          float64
	WithdrawalThresholdBps float64
	PartialMultiplier      float64
	NoHedgeMultiplier      float64
	SkewBps                float64
	VolReference           float64
}

// Engine owns one market maker position and quotes against it.
type Engine struct {
	cfg      Config
	position domain.Position
	history  []float64 // total P&L after each mark
	log      *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Engine {
	if cfg.VolReference <= 0 {
		cfg.VolReference = 0.40
	}
	if cfg.QuoteSize <= 0 {
		cfg.QuoteSize = 10_000
	}
	return &Engine{
		cfg:      cfg,
		position: domain.NewPosition(),
		log:      log,
	}
}

// Position returns a copy of the current position.
func (e *Engine) Position() domain.Position { return e.position }

// SetHedgeStatus updates the hedge availability. The driver feeds this
// from the hedge monitor each tick before quoting.
func (e *Engine) SetHedgeStatus(h domain.HedgeStatus) {
	if h.Kind() != e.position.Hedge.Kind() {
		e.log.Info("hedge status changed",
			zap.String("from", e.position.Hedge.String()),
			zap.String("to", h.String()))
	}
	e.position.Hedge = h
}

// hedgeMultiplier maps hedge status onto a spread multiplier. A full
// hedge quotes the base spread. A partial hedge pays the partial
// multiplier scaled up as the covered fraction shrinks. No hedge pays
// the full no-hedge multiplier.
func (e *Engine) hedgeMultiplier(h domain.HedgeStatus) float64 {
	switch h.Kind() {
	case domain.HedgeFull:
		return 1
	case domain.HedgePartial:
		return e.cfg.PartialMultiplier * (1 + (1 - h.Fraction()))
	default:
		return e.cfg.NoHedgeMultiplier
	}
}

// QuoteMarket produces this round's quote, or a withdrawal decision.
//
// The half spread is the base spread times the hedge multiplier, scaled
// up with realized volatility relative to the reference level. The
// excess over the base spread is the risk premium; if it crosses the
// withdrawal threshold the maker steps away. Inventory skews both
// prices toward flat, and near the inventory limit the quote becomes
// one-sided reduce-only.
func (e *Engine) QuoteMarket(fairValue decimal.Decimal, volatility float64) domain.QuoteDecision {
	mult := e.hedgeMultiplier(e.position.Hedge)
	spreadBps := e.cfg.BaseSpreadBps * mult * (1 + volatility/e.cfg.VolReference)
	premiumBps := spreadBps - e.cfg.BaseSpreadBps

	if premiumBps > e.cfg.WithdrawalThresholdBps {
		e.log.Warn("withdrawing quotes",
			zap.Float64("premium_bps", premiumBps),
			zap.Float64("threshold_bps", e.cfg.WithdrawalThresholdBps),
			zap.String("hedge", e.position.Hedge.String()))
		return domain.QuoteDecision{Reason: domain.WithdrawalRiskPremium, PremiumBps: premiumBps}
	}

	inv := e.position.Inventory
	atLimit := e.cfg.MaxInventory > 0 && absInt64(inv) >= e.cfg.MaxInventory
	if atLimit && e.position.Hedge.Kind() == domain.HedgeNone {
		return domain.QuoteDecision{Reason: domain.WithdrawalInventoryLimit, PremiumBps: premiumBps}
	}

	invRatio := 0.0
	if e.cfg.MaxInventory > 0 {
		invRatio = float64(inv) / float64(e.cfg.MaxInventory)
	}
	skewBps := invRatio * e.cfg.SkewBps

	half := fairValue.Mul(decimal.NewFromFloat(spreadBps / 2 / 10_000))
	skew := fairValue.Mul(decimal.NewFromFloat(skewBps / 10_000))

	q := domain.Quote{
		Bid:       fairValue.Sub(half).Sub(skew),
		Ask:       fairValue.Add(half).Sub(skew),
		BidSize:   e.cfg.QuoteSize,
		AskSize:   e.cfg.QuoteSize,
		SpreadBps: spreadBps,
	}

	// Past 90% of the limit the quote only works the position down.
	if e.cfg.MaxInventory > 0 && math.Abs(invRatio) >= 0.9 {
		if inv > 0 {
			q.BidSize = 0
		} else {
			q.AskSize = 0
		}
	}

	return domain.QuoteDecision{Quote: &q, PremiumBps: premiumBps}
}

// ExecuteTrade applies a fill to the position. Side is the maker's own
// direction: a Buy adds inventory, a Sell removes it. Average entry
// price follows lot accounting: adding to a position blends the entry,
// reducing realizes P&L against the existing entry, and crossing
// through zero realizes the closed lot and opens a new one at the trade
// price.
func (e *Engine) ExecuteTrade(side domain.TradeSide, price decimal.Decimal, size int64) error {
	if size <= 0 {
		return nil
	}
	signed := size
	if side == domain.MakerSell {
		signed = -size
	}
	projected := e.position.Inventory + signed

	if err := e.checkCapacity(projected, price); err != nil {
		return err
	}

	p := &e.position
	switch {
	case p.Inventory == 0:
		p.AvgEntryPrice = price
	case sameSign(p.Inventory, signed):
		// Adding: blend the entry price by size.
		oldNotional := p.AvgEntryPrice.Mul(decimal.NewFromInt(absInt64(p.Inventory)))
		newNotional := price.Mul(decimal.NewFromInt(size))
		total := absInt64(p.Inventory) + size
		p.AvgEntryPrice = oldNotional.Add(newNotional).Div(decimal.NewFromInt(total))
	case sameSign(p.Inventory, projected) || projected == 0:
		// Reducing: realize on the closed portion, keep the entry.
		closed := size
		pnl := e.closePnL(price, closed)
		p.RealizedPnL = p.RealizedPnL.Add(pnl)
		if projected == 0 {
			p.AvgEntryPrice = decimal.Zero
		}
	default:
		// Crossing zero: realize the whole old lot, open the rest fresh.
		closed := absInt64(p.Inventory)
		pnl := e.closePnL(price, closed)
		p.RealizedPnL = p.RealizedPnL.Add(pnl)
		p.AvgEntryPrice = price
	}
	p.Inventory = projected
	return nil
}

// closePnL is the realized P&L of closing `closed` shares at price,
// given the current position direction and entry.
func (e *Engine) closePnL(price decimal.Decimal, closed int64) decimal.Decimal {
	diff := price.Sub(e.position.AvgEntryPrice)
	if e.position.Inventory < 0 {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(closed))
}

func (e *Engine) checkCapacity(projected int64, price decimal.Decimal) error {
	if e.cfg.MaxInventory > 0 && absInt64(projected) > e.cfg.MaxInventory {
		return &domain.InsufficientRiskCapacityError{
			ProjectedInventory: projected,
			MaxInventory:       e.cfg.MaxInventory,
		}
	}
	unhedged := decimal.NewFromFloat(
		math.Abs(float64(projected) * (1 - e.position.Hedge.Fraction())),
	).Mul(price)
	if unhedged.GreaterThan(e.cfg.InitialCapital) {
		return &domain.InsufficientRiskCapacityError{
			ProjectedInventory: projected,
			UnhedgedExposure:   unhedged,
			CapitalLimit:       e.cfg.InitialCapital,
		}
	}
	return nil
}

// MarkReport is the result of a mark-to-market pass.
type MarkReport struct {
	Price         decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	TotalPnL      decimal.Decimal
	ReturnPct     decimal.Decimal
}

// MarkToMarket values the position at price. It never changes
// inventory; the only side effect is appending to the P&L history used
// for the historical risk measures.
func (e *Engine) MarkToMarket(price decimal.Decimal) MarkReport {
	unreal := e.position.UnrealizedPnL(price)
	total := unreal.Add(e.position.RealizedPnL)

	ret := decimal.Zero
	if e.cfg.InitialCapital.IsPositive() {
		ret = total.Div(e.cfg.InitialCapital).Mul(decimal.NewFromInt(100))
	}

	tf, _ := total.Float64()
	e.history = append(e.history, tf)

	return MarkReport{
		Price:         price,
		UnrealizedPnL: unreal,
		RealizedPnL:   e.position.RealizedPnL,
		TotalPnL:      total,
		ReturnPct:     ret,
	}
}

// RiskMetrics computes the current risk picture. It reads but never
// mutates position state or the P&L history.
//
// VaR95 is parametric: 1.645 times the one-day dollar volatility of the
// unhedged delta. Expected shortfall and max drawdown come from the
// recorded P&L path when enough marks exist.
func (e *Engine) RiskMetrics(price decimal.Decimal, volatility float64) domain.RiskMetrics {
	p := e.position
	delta := p.NetDelta()
	pf, _ := price.Float64()

	dailyVol := volatility / math.Sqrt(252)
	var95 := 1.645 * math.Abs(delta) * pf * dailyVol

	invPct := 0.0
	if e.cfg.MaxInventory > 0 {
		invPct = float64(absInt64(p.Inventory)) / float64(e.cfg.MaxInventory) * 100
	}

	return domain.RiskMetrics{
		NetDelta:          delta,
		InventoryRiskUSD:  p.InventoryRiskUSD(price, volatility),
		GammaRisk:         p.GammaRisk(volatility),
		VaR95:             var95,
		ExpectedShortfall: e.expectedShortfall(),
		MaxDrawdown:       e.maxDrawdown(),
		InventoryPct:      invPct,
	}
}

// expectedShortfall averages the worst 5% of P&L changes in the
// recorded history. Zero until there are enough marks to be meaningful.
func (e *Engine) expectedShortfall() float64 {
	if len(e.history) < 20 {
		return 0
	}
	changes := make([]float64, 0, len(e.history)-1)
	for i := 1; i < len(e.history); i++ {
		changes = append(changes, e.history[i]-e.history[i-1])
	}
	sort.Float64s(changes)
	tail := len(changes) / 20
	if tail == 0 {
		tail = 1
	}
	var sum float64
	for _, c := range changes[:tail] {
		sum += c
	}
	return -sum / float64(tail)
}

func (e *Engine) maxDrawdown() float64 {
	var peak, dd float64
	for i, v := range e.history {
		if i == 0 || v > peak {
			peak = v
		}
		if d := peak - v; d > dd {
			dd = d
		}
	}
	return dd
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
