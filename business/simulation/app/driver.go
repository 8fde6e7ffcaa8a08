// Package app runs scenarios through the engine.
//
// The driver is the only clock owner: each tick is processed
// synchronously in a fixed order (stress, order execution, halt
// evaluation, mark-to-market and risk, arbitrage) so runs are
// reproducible bit for bit. Nothing in here spawns goroutines; a run
// either completes its tick count or is aborted wholesale between
// ticks via the context.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	arbApp "github.com/quantedu/etf-stress-sim/business/arbitrage/app"
	bookApp "github.com/quantedu/etf-stress-sim/business/book/app"
	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
	liqApp "github.com/quantedu/etf-stress-sim/business/liquidity/app"
	liqDomain "github.com/quantedu/etf-stress-sim/business/liquidity/domain"
	mmApp "github.com/quantedu/etf-stress-sim/business/marketmaker/app"
	mmDomain "github.com/quantedu/etf-stress-sim/business/marketmaker/domain"
	"github.com/quantedu/etf-stress-sim/business/simulation/domain"
	"github.com/quantedu/etf-stress-sim/internal/apm"
	"github.com/quantedu/etf-stress-sim/internal/metrics"
	"github.com/quantedu/etf-stress-sim/internal/ratelimit"
	"github.com/quantedu/etf-stress-sim/internal/simclock"
)

// Reporter receives each tick's result. Implementations live in infra
// (console, JSONL, TUI); the driver only knows this port.
type Reporter interface {
	Report(domain.TickResult) error
	Close() error
}

// HedgeSource maps the observed basket coverage onto a hedge status.
// The production implementation is the circuit-breaker-backed monitor
// in marketmaker/infra.
type HedgeSource interface {
	Status(observedFraction float64) mmDomain.HedgeStatus
}

// Summary aggregates a completed run.
type Summary struct {
	Ticks          int
	Halts          int
	Withdrawals    int
	CascadeFills   int
	MinTradePrice  decimal.Decimal
	FinalPnL       decimal.Decimal
	ExecutableOpps int
	BlockedOpps    int
}

// Driver wires one security's components together and runs a scenario.
type Driver struct {
	book      *bookApp.StressedBook
	engine    *mmApp.Engine
	hedge     HedgeSource
	evaluator *arbApp.Evaluator
	analytics *liqApp.Analytics

	clock    *simclock.Clock
	pacer    *ratelimit.Pacer
	sim      *metrics.Sim
	tracer   trace.Tracer
	reporter Reporter
	log      *zap.Logger

	gapThresholdPct float64

	// per-run series for the Amihud ratio
	markPrices []float64
	volumes    []int64

	prevPhase bookDomain.HaltPhase
}

// Deps carries the driver's collaborators. All are required except
// Pacer and Tracer, which may be nil for unpaced, untraced runs.
type Deps struct {
	Book      *bookApp.StressedBook
	Engine    *mmApp.Engine
	Hedge     HedgeSource
	Evaluator *arbApp.Evaluator
	Analytics *liqApp.Analytics
	Clock     *simclock.Clock
	Pacer     *ratelimit.Pacer
	Sim       *metrics.Sim
	Tracer    trace.Tracer
	Reporter  Reporter
	Log       *zap.Logger
}

func NewDriver(d Deps, gapThresholdPct float64) (*Driver, error) {
	switch {
	case d.Book == nil, d.Engine == nil, d.Hedge == nil,
		d.Evaluator == nil, d.Analytics == nil,
		d.Clock == nil, d.Sim == nil, d.Reporter == nil, d.Log == nil:
		return nil, errors.New("driver: missing required dependency")
	}
	return &Driver{
		book:            d.Book,
		engine:          d.Engine,
		hedge:           d.Hedge,
		evaluator:       d.Evaluator,
		analytics:       d.Analytics,
		clock:           d.Clock,
		pacer:           d.Pacer,
		sim:             d.Sim,
		tracer:          d.Tracer,
		reporter:        d.Reporter,
		log:             d.Log,
		gapThresholdPct: gapThresholdPct,
		prevPhase:       bookDomain.PhaseTrading,
	}, nil
}

// Run executes the scenario tick by tick. The context is checked only
// between ticks; a tick in flight always completes.
func (d *Driver) Run(ctx context.Context, scenario *domain.Scenario) (Summary, error) {
	inputs, err := scenario.Expand()
	if err != nil {
		return Summary{}, fmt.Errorf("expanding scenario: %w", err)
	}

	d.log.Info("run starting",
		zap.String("scenario", scenario.Name),
		zap.String("symbol", scenario.Symbol),
		zap.Int("ticks", len(inputs)),
	)

	var sum Summary
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			d.log.Warn("run aborted", zap.Int("tick", in.Tick), zap.Error(err))
			return sum, err
		}
		if d.pacer != nil {
			if err := d.pacer.Wait(ctx); err != nil {
				return sum, err
			}
		}

		result, err := d.tick(ctx, in)
		if err != nil {
			return sum, fmt.Errorf("tick %d: %w", in.Tick, err)
		}
		d.accumulate(&sum, result)

		if err := d.reporter.Report(result); err != nil {
			return sum, fmt.Errorf("reporting tick %d: %w", in.Tick, err)
		}
	}

	sum.Ticks = len(inputs)
	sum.Halts = d.book.Halt().HaltCount()
	d.log.Info("run complete",
		zap.Int("ticks", sum.Ticks),
		zap.Int("halts", sum.Halts),
		zap.Int("withdrawals", sum.Withdrawals),
		zap.String("final_pnl", sum.FinalPnL.StringFixed(2)),
	)
	return sum, nil
}

func (d *Driver) tick(ctx context.Context, in domain.TickInput) (domain.TickResult, error) {
	now := d.clock.Tick()
	if d.tracer != nil {
		_, span := apm.StartTick(ctx, d.tracer, in.Tick)
		span.SetAttributes(attribute.Float64("stress", in.Stress))
		defer span.End()
	}

	// 1. Stress: move fair value and withdraw liquidity.
	if err := d.book.SetFairValue(in.FairValue); err != nil {
		return domain.TickResult{}, err
	}
	if err := d.book.ApplyStress(in.Stress); err != nil {
		return domain.TickResult{}, err
	}

	// 2. Quote, then execute order flow and stop cascades.
	d.engine.SetHedgeStatus(d.hedge.Status(in.HedgeableFraction))
	decision := d.engine.QuoteMarket(in.FairValue, in.Volatility)
	if decision.Withdrawn() {
		d.sim.QuoteWithdrawals.Inc()
	}

	var fills []bookDomain.FillReport
	var tickVolume int64
	for _, order := range in.Orders {
		report, volume, err := d.routeOrder(now, order, decision)
		if err != nil {
			return domain.TickResult{}, err
		}
		fills = append(fills, report)
		tickVolume += volume
	}

	cascades, err := d.runCascades(now, in)
	if err != nil {
		return domain.TickResult{}, err
	}
	for _, c := range cascades {
		tickVolume += c.Filled
	}

	// 3. Halt evaluation on the post-execution book.
	phase := d.book.Step(now)
	if phase == bookDomain.PhaseHalted && d.prevPhase != bookDomain.PhaseHalted {
		d.sim.HaltsTriggered.Inc()
	}
	d.prevPhase = phase
	d.sim.HaltPhase.Set(float64(phase))

	snap := d.book.Snapshot(now)
	mark := d.markPrice(snap, in.FairValue)

	// 4. Mark-to-market and risk.
	markReport := d.engine.MarkToMarket(mark)
	risk := d.engine.RiskMetrics(mark, in.Volatility)

	// 5. Arbitrage verdict on the marked price.
	opp := d.evaluator.AnalyzeOpportunity(arbApp.Input{
		Timestamp:         now,
		ETFPrice:          mark,
		FairValue:         in.FairValue,
		HedgeableFraction: in.HedgeableFraction,
		ReferenceAge:      in.ReferenceAge,
		Halted:            phase != bookDomain.PhaseTrading,
	})
	bounds := d.evaluator.NoArbitrageBounds(in.FairValue, in.HedgeableFraction)

	mf, _ := mark.Float64()
	d.markPrices = append(d.markPrices, mf)
	d.volumes = append(d.volumes, tickVolume)

	result := domain.TickResult{
		Tick:        in.Tick,
		Timestamp:   now,
		Snapshot:    snap,
		Fills:       fills,
		Cascades:    cascades,
		HaltPhase:   phase,
		Queued:      d.book.Halt().QueuedCount(),
		Quote:       decision,
		Position:    d.engine.Position(),
		Mark:        markReport,
		Risk:        risk,
		Opportunity: opp,
		Bounds:      bounds,
	}
	d.attachAnalytics(&result, snap)
	d.observe(result, snap)
	return result, nil
}

// routeOrder fills incoming flow against the market maker's quote
// first, then routes the remainder to the book. A maker rejection for
// risk capacity is not an error; the flow simply spills to the book.
func (d *Driver) routeOrder(now time.Time, order domain.OrderEvent, decision mmDomain.QuoteDecision) (bookDomain.FillReport, int64, error) {
	side := order.BookSide()
	remaining := order.Size
	var volume int64

	if q := decision.Quote; q != nil && d.book.Halt().CanExecute() {
		// Incoming sells hit the maker's bid, buys lift the offer.
		makerSide, price, avail := mmDomain.MakerBuy, q.Bid, q.BidSize
		if side == bookDomain.Buy {
			makerSide, price, avail = mmDomain.MakerSell, q.Ask, q.AskSize
		}
		if take := min(remaining, avail); take > 0 {
			if err := d.engine.ExecuteTrade(makerSide, price, take); err != nil {
				var capErr *mmDomain.InsufficientRiskCapacityError
				if !errors.As(err, &capErr) {
					return bookDomain.FillReport{}, 0, err
				}
				d.log.Debug("maker rejected flow", zap.Error(err))
			} else {
				remaining -= take
				volume += take
			}
		}
	}

	report := bookDomain.FillReport{Side: side}
	if remaining > 0 {
		var err error
		report, _, err = d.book.SubmitMarketOrder(now, side, remaining)
		if err != nil {
			return bookDomain.FillReport{}, 0, err
		}
		volume += report.Filled
		d.sim.FillsExecuted.Add(float64(len(report.Fills)))
		d.sim.SharesFilled.Add(float64(report.Filled))
		d.sim.SharesUnfilled.Add(float64(report.Unfilled))
	}
	return report, volume, nil
}

// runCascades arms this tick's stops and fires the cascade from the
// last traded price (or the mid, or fair value, in that order). A halt
// already in force swallows the cascade for this tick; the scheduled
// stops are simply not armed while no trading is possible.
func (d *Driver) runCascades(now time.Time, in domain.TickInput) ([]bookApp.CascadeExecution, error) {
	if len(in.Stops) == 0 {
		return nil, nil
	}
	stops := make([]bookApp.StopOrder, 0, len(in.Stops))
	for _, s := range in.Stops {
		stops = append(stops, bookApp.StopOrder{
			TriggerPrice: decimal.NewFromFloat(s.Trigger),
			Size:         s.Size,
			Side:         s.BookSide(),
		})
	}

	start := d.book.FairValue()
	if last := d.book.LastTrade(); last != nil {
		start = *last
	} else if mid, err := d.book.Book().Mid(); err == nil {
		start = mid
	}
	cascades, err := d.book.TriggerCascade(now, stops, start)
	if err != nil {
		if errors.Is(err, bookDomain.ErrTradingHalted) {
			d.log.Debug("cascade suppressed by halt", zap.Int("stops", len(stops)))
			return nil, nil
		}
		return nil, err
	}
	d.sim.CascadeExecutions.Add(float64(len(cascades)))
	return cascades, nil
}

// markPrice is the valuation price for this tick: last trade when one
// exists, else the mid, else fair value.
func (d *Driver) markPrice(snap bookDomain.Snapshot, fairValue decimal.Decimal) decimal.Decimal {
	if snap.LastTrade != nil {
		return *snap.LastTrade
	}
	if mid, err := snap.Mid(); err == nil {
		return mid
	}
	return fairValue
}

// attachAnalytics computes the liquidity measures that have enough
// data this tick. Insufficient data is not an error at this level; the
// field stays nil and reporters render it as pending.
func (d *Driver) attachAnalytics(result *domain.TickResult, snap bookDomain.Snapshot) {
	if impact, err := d.analytics.PriceImpactCoefficient(d.book.Tape()); err == nil {
		result.Impact = &impact
	} else if !errors.Is(err, liqDomain.ErrInsufficientData) {
		d.log.Warn("impact coefficient failed", zap.Error(err))
	}

	if amihud, err := d.analytics.IlliquidityRatio(d.markPrices, d.volumes); err == nil {
		result.Amihud = &amihud
	}

	result.Gaps = append(
		d.analytics.FindGaps(snap, bookDomain.Buy, d.gapThresholdPct),
		d.analytics.FindGaps(snap, bookDomain.Sell, d.gapThresholdPct)...,
	)
}

func (d *Driver) observe(result domain.TickResult, snap bookDomain.Snapshot) {
	d.sim.TicksProcessed.Inc()
	if bps, err := snap.SpreadBps(); err == nil {
		f, _ := bps.Float64()
		d.sim.BookSpreadBps.Set(f)
	}
	d.sim.Inventory.Set(float64(result.Position.Inventory))
	pnl, _ := result.Mark.UnrealizedPnL.Float64()
	d.sim.UnrealizedPnL.Set(pnl)
}

func (d *Driver) accumulate(sum *Summary, r domain.TickResult) {
	if r.Quote.Withdrawn() {
		sum.Withdrawals++
	}
	for _, c := range r.Cascades {
		sum.CascadeFills += int(c.Filled)
		if sum.MinTradePrice.IsZero() || c.ExecutionPrice.LessThan(sum.MinTradePrice) {
			sum.MinTradePrice = c.ExecutionPrice
		}
	}
	for _, f := range r.Fills {
		for _, fill := range f.Fills {
			if sum.MinTradePrice.IsZero() || fill.Price.LessThan(sum.MinTradePrice) {
				sum.MinTradePrice = fill.Price
			}
		}
	}
	if r.Opportunity.Executable {
		sum.ExecutableOpps++
	} else if r.Opportunity.Profitable {
		sum.BlockedOpps++
	}
	sum.FinalPnL = r.Mark.TotalPnL
}
