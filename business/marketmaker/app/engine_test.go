package app

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantedu/etf-stress-sim/business/marketmaker/domain"
)

func newTestEngine(threshold float64) *Engine {
	return New(Config{
		InitialCapital:         decimal.NewFromInt(50_000_000),
		MaxInventory:           50_000,
		QuoteSize:              10_000,
		BaseSpreadBps:          2,
		WithdrawalThresholdBps: threshold,
		PartialMultiplier:      4,
		NoHedgeMultiplier:      20,
		SkewBps:                10,
		VolReference:           0.40,
	}, zap.NewNop())
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestQuoteSpreadWidensAsHedgeDegrades(t *testing.T) {
	e := newTestEngine(10_000) // threshold high enough to never withdraw
	fv := decimal.NewFromInt(100)

	spreadAt := func(h domain.HedgeStatus) float64 {
		e.SetHedgeStatus(h)
		d := e.QuoteMarket(fv, 0.40)
		if d.Withdrawn() {
			t.Fatalf("unexpected withdrawal under %s hedge", h)
		}
		return d.Quote.SpreadBps
	}

	partial, _ := domain.PartialHedge(0.5)
	full := spreadAt(domain.FullHedge())
	part := spreadAt(partial)
	none := spreadAt(domain.NoHedge())

	// Base 2bps doubled by vol at the reference level.
	if full != 4 {
		t.Errorf("full-hedge spread = %v bps, want 4", full)
	}
	if !(full < part && part < none) {
		t.Errorf("spreads not ordered: full %v, partial %v, none %v", full, part, none)
	}
}

func TestQuotePricesAroundFairValue(t *testing.T) {
	e := newTestEngine(10_000)
	d := e.QuoteMarket(decimal.NewFromInt(100), 0.40)
	if d.Withdrawn() {
		t.Fatal("withdrawn")
	}
	if !d.Quote.Bid.Equal(dec("99.98")) || !d.Quote.Ask.Equal(dec("100.02")) {
		t.Errorf("quote = %s / %s, want 99.98 / 100.02", d.Quote.Bid, d.Quote.Ask)
	}
}

func TestQuoteSkewsTowardFlat(t *testing.T) {
	e := newTestEngine(10_000)
	if err := e.ExecuteTrade(domain.MakerBuy, decimal.NewFromInt(100), 25_000); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	// Half the inventory limit at 10bps full skew: both sides 5bps lower.
	d := e.QuoteMarket(decimal.NewFromInt(100), 0.40)
	if d.Withdrawn() {
		t.Fatal("withdrawn")
	}
	if !d.Quote.Bid.Equal(dec("99.93")) || !d.Quote.Ask.Equal(dec("99.97")) {
		t.Errorf("quote = %s / %s, want 99.93 / 99.97", d.Quote.Bid, d.Quote.Ask)
	}
}

func TestQuoteReduceOnlyNearLimit(t *testing.T) {
	e := newTestEngine(10_000)
	if err := e.ExecuteTrade(domain.MakerBuy, decimal.NewFromInt(100), 45_000); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	d := e.QuoteMarket(decimal.NewFromInt(100), 0.40)
	if d.Withdrawn() {
		t.Fatal("withdrawn")
	}
	if d.Quote.BidSize != 0 {
		t.Errorf("bid size = %d, want 0 when long near the limit", d.Quote.BidSize)
	}
	if d.Quote.AskSize != 10_000 {
		t.Errorf("ask size = %d, want full size", d.Quote.AskSize)
	}
}

func TestWithdrawalOnRiskPremium(t *testing.T) {
	// Default-style threshold: an unhedged book at reference vol costs
	// 78bps of premium, far past 50.
	e := newTestEngine(50)
	e.SetHedgeStatus(domain.NoHedge())

	d := e.QuoteMarket(decimal.NewFromInt(100), 0.40)
	if !d.Withdrawn() {
		t.Fatal("want withdrawal with no hedge at reference vol")
	}
	if d.Reason != domain.WithdrawalRiskPremium {
		t.Errorf("reason = %s, want %s", d.Reason, domain.WithdrawalRiskPremium)
	}
	if d.PremiumBps <= 50 {
		t.Errorf("premium = %v bps, want above threshold", d.PremiumBps)
	}
}

func TestWithdrawalAtInventoryLimitUnhedged(t *testing.T) {
	e := newTestEngine(10_000)
	if err := e.ExecuteTrade(domain.MakerBuy, decimal.NewFromInt(100), 50_000); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	// Hedged at the limit the maker still quotes (reduce-only).
	if d := e.QuoteMarket(decimal.NewFromInt(100), 0.40); d.Withdrawn() {
		t.Fatal("hedged maker at the limit should quote reduce-only, not withdraw")
	}

	e.SetHedgeStatus(domain.NoHedge())
	d := e.QuoteMarket(decimal.NewFromInt(100), 0.40)
	if !d.Withdrawn() || d.Reason != domain.WithdrawalInventoryLimit {
		t.Errorf("got %+v, want withdrawal %s", d, domain.WithdrawalInventoryLimit)
	}
}

func TestExecuteTradeLotAccounting(t *testing.T) {
	e := newTestEngine(10_000)
	buy := func(price string, size int64) {
		t.Helper()
		if err := e.ExecuteTrade(domain.MakerBuy, dec(price), size); err != nil {
			t.Fatalf("buy %s x%d: %v", price, size, err)
		}
	}
	sell := func(price string, size int64) {
		t.Helper()
		if err := e.ExecuteTrade(domain.MakerSell, dec(price), size); err != nil {
			t.Fatalf("sell %s x%d: %v", price, size, err)
		}
	}
	check := func(step string, inv int64, entry, realized string) {
		t.Helper()
		p := e.Position()
		if p.Inventory != inv {
			t.Errorf("%s: inventory = %d, want %d", step, p.Inventory, inv)
		}
		if !p.AvgEntryPrice.Equal(dec(entry)) {
			t.Errorf("%s: entry = %s, want %s", step, p.AvgEntryPrice, entry)
		}
		if !p.RealizedPnL.Equal(dec(realized)) {
			t.Errorf("%s: realized = %s, want %s", step, p.RealizedPnL, realized)
		}
	}

	buy("100", 1000)
	buy("102", 1000)
	check("blend entry", 2000, "101", "0")

	sell("103", 500)
	check("partial reduce", 1500, "101", "1000")

	sell("99", 1500)
	check("close to flat", 0, "0", "-2000")

	buy("100", 1000)
	sell("98", 1500)
	check("cross through zero", -500, "98", "-4000")

	buy("97", 200)
	check("cover part of short", -300, "98", "-3800")
}

func TestExecuteTradeCapacityLimits(t *testing.T) {
	e := newTestEngine(10_000)

	err := e.ExecuteTrade(domain.MakerBuy, decimal.NewFromInt(100), 60_000)
	var capErr *domain.InsufficientRiskCapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want InsufficientRiskCapacityError", err)
	}
	if capErr.MaxInventory != 50_000 {
		t.Errorf("MaxInventory = %d, want 50000", capErr.MaxInventory)
	}
	if e.Position().Inventory != 0 {
		t.Error("rejected trade mutated the position")
	}

	// Unhedged notional past initial capital is refused even inside the
	// inventory limit.
	e.SetHedgeStatus(domain.NoHedge())
	err = e.ExecuteTrade(domain.MakerBuy, decimal.NewFromInt(2000), 30_000)
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want capital rejection", err)
	}
	if !capErr.CapitalLimit.Equal(decimal.NewFromInt(50_000_000)) {
		t.Errorf("CapitalLimit = %s", capErr.CapitalLimit)
	}
}

func TestMarkToMarket(t *testing.T) {
	e := newTestEngine(10_000)
	if err := e.ExecuteTrade(domain.MakerBuy, decimal.NewFromInt(100), 1000); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	mark := e.MarkToMarket(decimal.NewFromInt(105))
	if !mark.UnrealizedPnL.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("unrealized = %s, want 5000", mark.UnrealizedPnL)
	}
	if !mark.TotalPnL.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("total = %s, want 5000", mark.TotalPnL)
	}
	if !mark.ReturnPct.Equal(dec("0.01")) {
		t.Errorf("return = %s%%, want 0.01", mark.ReturnPct)
	}
	if e.Position().Inventory != 1000 {
		t.Error("mark-to-market changed inventory")
	}
}

func TestRiskMetrics(t *testing.T) {
	e := newTestEngine(10_000)
	if err := e.ExecuteTrade(domain.MakerBuy, decimal.NewFromInt(105), 1000); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}

	// Fully hedged inventory carries no delta.
	m := e.RiskMetrics(decimal.NewFromInt(105), 0.40)
	if m.NetDelta != 0 || m.VaR95 != 0 {
		t.Errorf("hedged delta = %v, VaR = %v, want both 0", m.NetDelta, m.VaR95)
	}
	if m.InventoryPct != 2 {
		t.Errorf("inventory pct = %v, want 2", m.InventoryPct)
	}

	e.SetHedgeStatus(domain.NoHedge())
	m = e.RiskMetrics(decimal.NewFromInt(105), 0.40)
	want := 1.645 * 1000 * 105 * 0.40 / math.Sqrt(252)
	if math.Abs(m.VaR95-want) > 1e-9 {
		t.Errorf("VaR95 = %v, want %v", m.VaR95, want)
	}

	// Reading risk twice must not disturb anything. InventoryRiskUSD is
	// a decimal, so compare by value, not struct identity.
	again := e.RiskMetrics(decimal.NewFromInt(105), 0.40)
	if !again.InventoryRiskUSD.Equal(m.InventoryRiskUSD) {
		t.Errorf("repeated read inventory risk = %s, want %s", again.InventoryRiskUSD, m.InventoryRiskUSD)
	}
	if again.NetDelta != m.NetDelta || again.GammaRisk != m.GammaRisk ||
		again.VaR95 != m.VaR95 || again.ExpectedShortfall != m.ExpectedShortfall ||
		again.MaxDrawdown != m.MaxDrawdown || again.InventoryPct != m.InventoryPct {
		t.Errorf("repeated read differs: %+v vs %+v", again, m)
	}
}
