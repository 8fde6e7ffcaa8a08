package domain

import (
	"time"

	arbDomain "github.com/quantedu/etf-stress-sim/business/arbitrage/domain"
	bookApp "github.com/quantedu/etf-stress-sim/business/book/app"
	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
	liqDomain "github.com/quantedu/etf-stress-sim/business/liquidity/domain"
	mmApp "github.com/quantedu/etf-stress-sim/business/marketmaker/app"
	mmDomain "github.com/quantedu/etf-stress-sim/business/marketmaker/domain"
)

// TickResult is everything one tick produced, handed to reporters
// unchanged. Fields that could not be computed this tick (e.g. impact
// before enough trades exist) are nil.
type TickResult struct {
	Tick      int
	Timestamp time.Time

	Snapshot  bookDomain.Snapshot
	Fills     []bookDomain.FillReport
	Cascades  []bookApp.CascadeExecution
	HaltPhase bookDomain.HaltPhase
	Queued    int

	Quote    mmDomain.QuoteDecision
	Position mmDomain.Position
	Mark     mmApp.MarkReport
	Risk     mmDomain.RiskMetrics

	Opportunity arbDomain.Opportunity
	Bounds      arbDomain.Bounds

	Impact *liqDomain.ImpactCoefficient
	Amihud *liqDomain.IlliquidityRatio
	Gaps   []liqDomain.Gap
}
