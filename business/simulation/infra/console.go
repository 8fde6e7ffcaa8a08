package infra

import (
	"go.uber.org/zap"

	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
	"github.com/quantedu/etf-stress-sim/business/simulation/domain"
)

// ConsoleReporter logs each tick through zap. Quiet in steady state:
// ordinary ticks log at debug, anything that moved the episode forward
// (fills, cascades, halt transitions, withdrawals, blocked arbitrage)
// logs at info.
type ConsoleReporter struct {
	log       *zap.Logger
	prevPhase bookDomain.HaltPhase
}

func NewConsoleReporter(log *zap.Logger) *ConsoleReporter {
	return &ConsoleReporter{log: log, prevPhase: bookDomain.PhaseTrading}
}

func (r *ConsoleReporter) Report(res domain.TickResult) error {
	fields := []zap.Field{
		zap.Int("tick", res.Tick),
		zap.String("phase", res.HaltPhase.String()),
		zap.String("fair_value", res.Snapshot.FairValue.StringFixed(2)),
		zap.String("pnl", res.Mark.TotalPnL.StringFixed(0)),
	}
	if bps, err := res.Snapshot.SpreadBps(); err == nil {
		fields = append(fields, zap.String("spread_bps", bps.StringFixed(1)))
	}

	eventful := len(res.Cascades) > 0 || res.Quote.Withdrawn() || res.HaltPhase != r.prevPhase
	for _, f := range res.Fills {
		if f.Filled > 0 || f.Unfilled > 0 {
			eventful = true
		}
	}

	if len(res.Cascades) > 0 {
		last := res.Cascades[len(res.Cascades)-1]
		fields = append(fields,
			zap.Int("cascade_stops", len(res.Cascades)),
			zap.String("cascade_low", last.ExecutionPrice.StringFixed(2)),
		)
	}
	if res.Quote.Withdrawn() {
		fields = append(fields, zap.String("withdrawal", string(res.Quote.Reason)))
	}
	if b, ok := res.Opportunity.PrimaryBarrier(); ok && res.Opportunity.Profitable {
		eventful = true
		fields = append(fields,
			zap.String("arb_spread_pct", res.Opportunity.SpreadPct.StringFixed(1)),
			zap.String("arb_barrier", b.String()),
		)
	}

	if eventful {
		r.log.Info("tick", fields...)
	} else {
		r.log.Debug("tick", fields...)
	}
	r.prevPhase = res.HaltPhase
	return nil
}

func (r *ConsoleReporter) Close() error { return nil }
