package app_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	arbApp "github.com/quantedu/etf-stress-sim/business/arbitrage/app"
	bookApp "github.com/quantedu/etf-stress-sim/business/book/app"
	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
	liqApp "github.com/quantedu/etf-stress-sim/business/liquidity/app"
	mmApp "github.com/quantedu/etf-stress-sim/business/marketmaker/app"
	mmInfra "github.com/quantedu/etf-stress-sim/business/marketmaker/infra"
	simApp "github.com/quantedu/etf-stress-sim/business/simulation/app"
	"github.com/quantedu/etf-stress-sim/business/simulation/domain"
	simInfra "github.com/quantedu/etf-stress-sim/business/simulation/infra"
	"github.com/quantedu/etf-stress-sim/internal/metrics"
	"github.com/quantedu/etf-stress-sim/internal/simclock"
)

// captureReporter records every tick result for later inspection.
type captureReporter struct {
	results []domain.TickResult
}

func (c *captureReporter) Report(r domain.TickResult) error {
	c.results = append(c.results, r)
	return nil
}

func (c *captureReporter) Close() error { return nil }

func newTestDriver(t *testing.T) (*simApp.Driver, *captureReporter) {
	t.Helper()
	log := zap.NewNop()

	book, err := bookApp.New(bookApp.Config{
		Symbol:          "RSP",
		FairValue:       decimal.RequireFromString("76.80"),
		NormalSpreadBps: 2.0,
		DepthLevels:     50,
		LevelSize:       10_000,
		TickSize:        decimal.RequireFromString("0.01"),
		FloorPrice:      decimal.RequireFromString("0.01"),
	}, bookDomain.BandParams{Tier: 1, TimeOfDay: bookDomain.TimeOfDayOpening, Leverage: 1},
		15*time.Second, 5*time.Minute, log)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	engine := mmApp.New(mmApp.Config{
		InitialCapital:         decimal.NewFromInt(50_000_000),
		MaxInventory:           50_000,
		QuoteSize:              10_000,
		BaseSpreadBps:          2,
		WithdrawalThresholdBps: 100,
		PartialMultiplier:      10,
		NoHedgeMultiplier:      100,
		SkewBps:                50,
		VolReference:           0.20,
	}, log)

	evaluator := arbApp.New(arbApp.Config{
		Symbol:             "RSP",
		TransactionCostBps: 10,
		CreationUnitSize:   50_000,
		MinProfitThreshold: 0.001,
		HedgeableThreshold: 0.8,
		ShockPct:           0.05,
		StaleReferenceAge:  5 * time.Minute,
		AvailableCapital:   decimal.NewFromInt(50_000_000),
	}, log)

	capture := &captureReporter{}
	driver, err := simApp.NewDriver(simApp.Deps{
		Book:      book,
		Engine:    engine,
		Hedge:     mmInfra.NewHedgeMonitor(log),
		Evaluator: evaluator,
		Analytics: liqApp.New(10, 1.0),
		Clock:     simclock.New(time.Date(2015, 8, 24, 9, 30, 0, 0, time.UTC), time.Second),
		Sim:       metrics.NewSim(prometheus.NewRegistry(), "RSP"),
		Reporter:  capture,
		Log:       log,
	}, 1.0)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return driver, capture
}

func TestDriverRunsDefaultScenario(t *testing.T) {
	driver, capture := newTestDriver(t)
	scenario := simInfra.DefaultScenario("RSP", 76.80)

	sum, err := driver.Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Ticks != scenario.Ticks {
		t.Errorf("ticks = %d, want %d", sum.Ticks, scenario.Ticks)
	}
	if len(capture.results) != scenario.Ticks {
		t.Fatalf("reported %d results, want one per tick", len(capture.results))
	}
	if sum.CascadeFills == 0 {
		t.Error("the flash-crash scenario should cascade")
	}
	if sum.Withdrawals == 0 {
		t.Error("peak stress should force quote withdrawals")
	}
	if sum.MinTradePrice.IsZero() || sum.MinTradePrice.GreaterThanOrEqual(decimal.RequireFromString("76.80")) {
		t.Errorf("min trade price = %s, want below the opening fair value", sum.MinTradePrice)
	}
	if sum.BlockedOpps == 0 {
		t.Error("the crash discount should be profitable yet blocked")
	}

	// Ticks are stamped by the simulated clock, one second apart.
	first := capture.results[0].Timestamp
	if !first.Equal(time.Date(2015, 8, 24, 9, 30, 1, 0, time.UTC)) {
		t.Errorf("first tick at %v", first)
	}
	for i := 1; i < len(capture.results); i++ {
		if capture.results[i].Timestamp.Sub(capture.results[i-1].Timestamp) != time.Second {
			t.Fatalf("uneven tick spacing at %d", i)
		}
	}
}

// digest reduces a run to a comparable transcript: if any number in it
// changes between identical runs, determinism is broken.
func digest(results []domain.TickResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%d|%s|%d|%d|%s|%v|%v\n",
			r.Tick, r.HaltPhase, len(r.Fills), len(r.Cascades),
			r.Mark.TotalPnL, r.Risk.NetDelta, r.Opportunity.Barriers)
	}
	return b.String()
}

func TestDriverIsDeterministic(t *testing.T) {
	d1, c1 := newTestDriver(t)
	d2, c2 := newTestDriver(t)
	scenario := simInfra.DefaultScenario("RSP", 76.80)

	if _, err := d1.Run(context.Background(), scenario); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := d2.Run(context.Background(), scenario); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if digest(c1.results) != digest(c2.results) {
		t.Error("identical scenarios diverged between runs")
	}
}

func TestDriverAbortsBetweenTicks(t *testing.T) {
	driver, capture := newTestDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := driver.Run(ctx, simInfra.DefaultScenario("RSP", 76.80))
	if err == nil {
		t.Fatal("cancelled run returned no error")
	}
	if len(capture.results) != 0 {
		t.Errorf("cancelled-before-start run still reported %d ticks", len(capture.results))
	}
}

func TestDriverRejectsMissingDeps(t *testing.T) {
	if _, err := simApp.NewDriver(simApp.Deps{}, 1.0); err == nil {
		t.Error("NewDriver accepted empty deps")
	}
}
