// Package app composes the order book domain into the stressed-book
// service used by the simulation driver.
package app

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantedu/etf-stress-sim/business/book/domain"
)

// minResidualLot is the stub size left at the touch under full stress:
// everything beyond the minimum tick is withdrawn, the touch itself never
// quite vanishes.
const minResidualLot = 100

// Config parameterises the stressed book. All values come from external
// configuration; nothing is hard-coded so scenarios stay reproducible.
type Config struct {
	Symbol          string
	FairValue       decimal.Decimal
	NormalSpreadBps float64
	DepthLevels     int
	LevelSize       int64
	TickSize        decimal.Decimal
	FloorPrice      decimal.Decimal // worst-case sentinel for empty-book executions
}

// StopOrder is a resting stop-loss: it converts to a market order when the
// last traded price crosses its trigger.
type StopOrder struct {
	TriggerPrice decimal.Decimal
	Size         int64
	Side         domain.Side
}

// CascadeExecution records how one triggered stop executed.
type CascadeExecution struct {
	TriggerPrice   decimal.Decimal
	ExecutionPrice decimal.Decimal
	Size           int64
	Filled         int64
	Unfilled       int64
	Sentinel       bool // true when the book was empty and the floor price was used
}

// StressedBook is a price-level book whose liquidity can be progressively
// withdrawn, with a LULD halt machine gating execution. It owns the trade
// tape and snapshot history for one simulated security.
type StressedBook struct {
	cfg  Config
	book *domain.Book
	halt *domain.HaltMachine
	log  *zap.Logger

	fairValue decimal.Decimal
	stress    float64
	lastTrade *decimal.Decimal

	tape      []domain.Trade
	snapshots []domain.Snapshot
}

// New builds a stressed book seeded with the normal-market depth profile
// and a halt machine referenced at the initial fair value.
func New(cfg Config, bandParams domain.BandParams, cureWindow, haltDuration time.Duration, log *zap.Logger) (*StressedBook, error) {
	if !cfg.FairValue.IsPositive() {
		return nil, fmt.Errorf("fair value must be positive, got %s", cfg.FairValue)
	}
	if cfg.NormalSpreadBps <= 0 {
		return nil, fmt.Errorf("normal spread must be positive, got %v", cfg.NormalSpreadBps)
	}
	if cfg.DepthLevels <= 0 || cfg.LevelSize <= 0 {
		return nil, fmt.Errorf("depth levels and level size must be positive")
	}
	if !cfg.FloorPrice.IsPositive() {
		return nil, fmt.Errorf("floor price must be positive, got %s", cfg.FloorPrice)
	}

	s := &StressedBook{
		cfg:       cfg,
		halt:      domain.NewHaltMachine(cfg.FairValue, bandParams, cureWindow, haltDuration),
		log:       log,
		fairValue: cfg.FairValue,
	}
	s.rebuild()
	return s, nil
}

// Halt exposes the halt machine for phase inspection.
func (s *StressedBook) Halt() *domain.HaltMachine { return s.halt }

// Stress returns the currently applied stress level.
func (s *StressedBook) Stress() float64 { return s.stress }

// FairValue returns the fair value the book is quoted around.
func (s *StressedBook) FairValue() decimal.Decimal { return s.fairValue }

// SetFairValue moves the fair value the next rebuild quotes around.
func (s *StressedBook) SetFairValue(fv decimal.Decimal) error {
	if !fv.IsPositive() {
		return fmt.Errorf("fair value must be positive, got %s", fv)
	}
	s.fairValue = fv
	return nil
}

// LastTrade returns the most recent traded price, or nil before any fill.
func (s *StressedBook) LastTrade() *decimal.Decimal { return s.lastTrade }

// Tape returns the executed-trade tape so far.
func (s *StressedBook) Tape() []domain.Trade { return s.tape }

// Snapshots returns the snapshot history.
func (s *StressedBook) Snapshots() []domain.Snapshot { return s.snapshots }

// Book exposes read access to the underlying book.
func (s *StressedBook) Book() *domain.Book { return s.book }

// spreadMultiplier and depthScale define the documented stress curve:
// the spread widens continuously from 1x to 100x as stress goes 0 -> 1,
// and per-level depth shrinks with the square of remaining calm. Both are
// monotonic in the stress level, so incremental stress tests compose.
func spreadMultiplier(level float64) float64 { return 1 + 99*level*level }

func depthScale(level float64) float64 { return (1 - level) * (1 - level) }

// rebuild re-derives the resting book from the pristine depth profile at
// the current stress level. Market makers are modeled as refreshing their
// quotes every tick, so stress application never compounds.
func (s *StressedBook) rebuild() {
	book := domain.NewBook()

	spreadBps := s.cfg.NormalSpreadBps * spreadMultiplier(s.stress)
	halfSpread := s.fairValue.Mul(decimal.NewFromFloat(spreadBps / 10000 / 2))
	scale := depthScale(s.stress)

	for i := 0; i < s.cfg.DepthLevels; i++ {
		// Power-law depth decay: more size near the touch, less away.
		baseSize := float64(s.cfg.LevelSize) / math.Pow(float64(i+1), 1.5)
		size := int64(math.Round(baseSize * scale))
		if i == 0 && size < minResidualLot {
			size = minResidualLot
		}
		if size <= 0 {
			continue
		}

		distance := halfSpread.Mul(decimal.NewFromInt(int64(2*i + 1)))
		bidPrice := s.fairValue.Sub(distance)
		askPrice := s.fairValue.Add(distance)

		if bidPrice.GreaterThan(s.cfg.FloorPrice) {
			// Errors are impossible here: prices and sizes are positive.
			_ = book.AddRestingOrder(domain.Buy, bidPrice.Round(4), size)
		}
		_ = book.AddRestingOrder(domain.Sell, askPrice.Round(4), size)
	}

	s.book = book
}

// ApplyStress withdraws liquidity deterministically and monotonically in
// level: 0.0 restores the normal book, 1.0 leaves only the residual stub
// at the touch. Levels outside [0,1] are rejected, never clamped.
func (s *StressedBook) ApplyStress(level float64) error {
	if level < 0 || level > 1 || math.IsNaN(level) {
		return fmt.Errorf("stress level must be in [0,1], got %v", level)
	}
	s.stress = level
	s.rebuild()
	s.log.Debug("stress applied",
		zap.String("symbol", s.cfg.Symbol),
		zap.Float64("level", level),
		zap.Int64("bid_depth", s.book.TotalDepth(domain.Buy)),
		zap.Int64("ask_depth", s.book.TotalDepth(domain.Sell)),
	)
	return nil
}

// SubmitMarketOrder executes a market order against the current book,
// unless the security is halted, in which case the order is queued for
// atomic release at reopening (queued=true, empty report).
func (s *StressedBook) SubmitMarketOrder(now time.Time, side domain.Side, size int64) (domain.FillReport, bool, error) {
	if size <= 0 {
		return domain.FillReport{}, false, &domain.InvalidOrderError{Price: decimal.Zero, Size: size}
	}
	if !s.halt.CanExecute() {
		s.halt.Queue(domain.QueuedOrder{Side: side, Size: size})
		s.log.Debug("order queued during halt",
			zap.String("symbol", s.cfg.Symbol),
			zap.String("side", string(side)),
			zap.Int64("size", size),
		)
		return domain.FillReport{Side: side}, true, nil
	}

	report, err := s.book.FillMarketOrder(side, size)
	if err != nil {
		return domain.FillReport{}, false, err
	}
	s.record(now, report)
	return report, false, nil
}

func (s *StressedBook) record(now time.Time, report domain.FillReport) {
	for _, f := range report.Fills {
		s.tape = append(s.tape, domain.Trade{
			Timestamp: now,
			Price:     f.Price,
			Size:      f.Size,
			Side:      report.Side,
		})
	}
	if n := len(report.Fills); n > 0 {
		last := report.Fills[n-1].Price
		s.lastTrade = &last
	}
}

// sentinelPrice is the defined worst-case execution for a stop that
// triggers into an empty book: the configured floor for sell stops, and
// double the trigger for buy stops.
func (s *StressedBook) sentinelPrice(stop StopOrder) decimal.Decimal {
	if stop.Side == domain.Sell {
		return s.cfg.FloorPrice
	}
	return stop.TriggerPrice.Mul(decimal.NewFromInt(2))
}

// stopTriggered checks a stop against the last traded price. An empty
// opposite side also triggers: with no resting orders holding the
// price, a stop behind an air pocket is already through its threshold.
func (s *StressedBook) stopTriggered(stop StopOrder, last decimal.Decimal) bool {
	if stop.Side == domain.Sell {
		if _, err := s.book.BestBid(); err != nil {
			return true
		}
		return last.LessThanOrEqual(stop.TriggerPrice)
	}
	if _, err := s.book.BestAsk(); err != nil {
		return true
	}
	return last.GreaterThanOrEqual(stop.TriggerPrice)
}

// TriggerCascade walks a stop-loss cascade: whenever the last traded price
// crosses an untriggered stop, that stop converts to a market order and
// executes immediately against the current (already degraded) book. Each
// execution moves the price and can trigger further stops. A triggered
// stop is never skipped: an empty book produces an execution at the
// worst-case sentinel price. Returns executions in trigger order.
func (s *StressedBook) TriggerCascade(now time.Time, stops []StopOrder, startingPrice decimal.Decimal) ([]CascadeExecution, error) {
	if !s.halt.CanExecute() {
		return nil, domain.ErrTradingHalted
	}
	if !startingPrice.IsPositive() {
		return nil, fmt.Errorf("starting price must be positive, got %s", startingPrice)
	}

	// Sells trigger top-down, buys bottom-up.
	ordered := make([]StopOrder, len(stops))
	copy(ordered, stops)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Side != ordered[j].Side {
			return ordered[i].Side == domain.Sell
		}
		if ordered[i].Side == domain.Sell {
			return ordered[i].TriggerPrice.GreaterThan(ordered[j].TriggerPrice)
		}
		return ordered[i].TriggerPrice.LessThan(ordered[j].TriggerPrice)
	})

	current := startingPrice
	triggered := make([]bool, len(ordered))
	var executions []CascadeExecution

	// Repeat until a full pass triggers nothing: a late execution can pull
	// the price through earlier-checked triggers.
	for {
		fired := false
		for i, stop := range ordered {
			if triggered[i] || !s.stopTriggered(stop, current) {
				continue
			}
			triggered[i] = true
			fired = true

			report, err := s.book.FillMarketOrder(stop.Side, stop.Size)
			if err != nil {
				return executions, err
			}

			exec := CascadeExecution{
				TriggerPrice: stop.TriggerPrice,
				Size:         stop.Size,
				Filled:       report.Filled,
				Unfilled:     report.Unfilled,
			}
			if report.Filled > 0 {
				exec.ExecutionPrice = report.VWAP
				s.record(now, report)
				// Chaining uses the worst fill, not the average: that is
				// the price the tape shows when the next stop is checked.
				current = report.Fills[len(report.Fills)-1].Price
			} else {
				exec.ExecutionPrice = s.sentinelPrice(stop)
				exec.Sentinel = true
				current = exec.ExecutionPrice
			}
			executions = append(executions, exec)

			s.log.Debug("stop executed",
				zap.String("symbol", s.cfg.Symbol),
				zap.String("trigger", stop.TriggerPrice.String()),
				zap.String("execution", exec.ExecutionPrice.String()),
				zap.Int64("unfilled", exec.Unfilled),
			)
		}
		if !fired {
			break
		}
	}

	return executions, nil
}

func (s *StressedBook) bestQuotes() (bid, ask *decimal.Decimal) {
	if lvl, err := s.book.BestBid(); err == nil {
		p := lvl.Price
		bid = &p
	}
	if lvl, err := s.book.BestAsk(); err == nil {
		p := lvl.Price
		ask = &p
	}
	return bid, ask
}

// Step advances the halt machine on the simulated clock. When a halt
// expires, queued orders are released atomically and the first post-halt
// execution establishes the new reference price.
func (s *StressedBook) Step(now time.Time) domain.HaltPhase {
	bid, ask := s.bestQuotes()
	phase := s.halt.Evaluate(now, bid, ask)
	if phase == domain.PhaseHalted && s.halt.HaltCount() > 0 {
		s.log.Info("trading halted",
			zap.String("symbol", s.cfg.Symbol),
			zap.Time("until", s.halt.HaltedUntil()),
		)
	}
	if phase == domain.PhaseReopening {
		s.reopen(now)
		phase = s.halt.Phase()
	}
	return phase
}

// reopen releases the held order queue and re-references the machine.
func (s *StressedBook) reopen(now time.Time) {
	queued := s.halt.DrainQueue()
	var newRef *decimal.Decimal

	for _, q := range queued {
		report, err := s.book.FillMarketOrder(q.Side, q.Size)
		if err != nil {
			continue
		}
		if report.Filled > 0 {
			s.record(now, report)
			if newRef == nil {
				ref := report.VWAP
				newRef = &ref
			}
		}
	}

	if newRef == nil {
		if s.lastTrade != nil {
			newRef = s.lastTrade
		} else if mid, err := s.book.Mid(); err == nil {
			newRef = &mid
		} else {
			ref := s.halt.Reference()
			newRef = &ref
		}
	}

	if err := s.halt.Reopen(*newRef, now); err != nil {
		s.log.Error("reopen failed", zap.Error(err))
		return
	}
	s.log.Info("trading reopened",
		zap.String("symbol", s.cfg.Symbol),
		zap.String("reference", newRef.String()),
		zap.Int("released_orders", len(queued)),
	)
}

// Snapshot captures the current state and appends it to the history.
func (s *StressedBook) Snapshot(now time.Time) domain.Snapshot {
	snap := s.book.Snapshot(now)
	snap.FairValue = s.fairValue
	snap.Halted = s.halt.Phase() == domain.PhaseHalted
	snap.LastTrade = s.lastTrade
	s.snapshots = append(s.snapshots, snap)
	return snap
}
