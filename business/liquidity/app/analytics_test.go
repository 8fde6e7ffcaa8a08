package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
	"github.com/quantedu/etf-stress-sim/business/liquidity/domain"
)

func trade(price string, size int64, side bookDomain.Side) bookDomain.Trade {
	return bookDomain.Trade{Price: decimal.RequireFromString(price), Size: size, Side: side}
}

func TestPriceImpactCoefficient(t *testing.T) {
	a := New(3, 1.0)

	// Price moves exactly 0.0001 per share of signed flow, so the
	// regression must recover lambda with a near-perfect fit.
	trades := []bookDomain.Trade{
		trade("100.00", 800, bookDomain.Buy),
		trade("100.10", 1000, bookDomain.Buy),
		trade("99.90", 2000, bookDomain.Sell),
		trade("99.95", 500, bookDomain.Buy),
		trade("99.80", 1500, bookDomain.Sell),
	}

	impact, err := a.PriceImpactCoefficient(trades)
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, impact.Lambda, 1e-9)
	assert.Greater(t, impact.RSquared, 0.999)
	assert.Equal(t, 5, impact.Trades)
}

func TestPriceImpactCoefficientInsufficientTrades(t *testing.T) {
	a := New(5, 1.0)
	trades := []bookDomain.Trade{
		trade("100.00", 100, bookDomain.Buy),
		trade("100.05", 100, bookDomain.Buy),
		trade("100.10", 100, bookDomain.Buy),
	}
	_, err := a.PriceImpactCoefficient(trades)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestPriceImpactCoefficientZeroVariance(t *testing.T) {
	a := New(3, 1.0)
	// Identical signed sizes: no variance in the regressor, so no slope
	// can be estimated and the metric must be reported as unavailable.
	trades := []bookDomain.Trade{
		trade("100.00", 500, bookDomain.Buy),
		trade("100.02", 500, bookDomain.Buy),
		trade("100.07", 500, bookDomain.Buy),
		trade("100.01", 500, bookDomain.Buy),
	}
	_, err := a.PriceImpactCoefficient(trades)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestIlliquidityRatio(t *testing.T) {
	a := New(3, 1.0)

	prices := []float64{100, 98, 96.04}
	volumes := []int64{0, 1000, 2000}

	ratio, err := a.IlliquidityRatio(prices, volumes)
	require.NoError(t, err)

	want := (0.02/98000 + 0.02/192080) / 2
	assert.InDelta(t, want, ratio.Ratio, 1e-12)
	assert.Equal(t, 2, ratio.Periods)
	assert.Equal(t, 0, ratio.Skipped)
}

func TestIlliquidityRatioSkipsZeroVolume(t *testing.T) {
	a := New(3, 1.0)

	ratio, err := a.IlliquidityRatio([]float64{100, 98, 98}, []int64{0, 1000, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, ratio.Periods)
	assert.Equal(t, 1, ratio.Skipped)
	assert.InDelta(t, 0.02/98000, ratio.Ratio, 1e-12)
}

func TestIlliquidityRatioUndefined(t *testing.T) {
	a := New(3, 1.0)

	// A halted window trades nothing: the ratio is undefined, not zero.
	_, err := a.IlliquidityRatio([]float64{100, 100, 100}, []int64{0, 0, 0})
	assert.ErrorIs(t, err, domain.ErrUndefinedMetric)

	_, err = a.IlliquidityRatio([]float64{100}, []int64{0})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = a.IlliquidityRatio([]float64{100, 99}, []int64{0, 100, 200})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestFindGaps(t *testing.T) {
	a := New(3, 1.0)

	level := func(price string) bookDomain.PriceLevel {
		return bookDomain.PriceLevel{Price: decimal.RequireFromString(price), Size: 100}
	}
	snap := bookDomain.Snapshot{
		Bids: []bookDomain.PriceLevel{level("100.00"), level("99.90"), level("95.00"), level("94.95")},
		Asks: []bookDomain.PriceLevel{level("100.10"), level("100.20"), level("106.00")},
	}

	bidGaps := a.FindGaps(snap, bookDomain.Buy, 1.0)
	require.Len(t, bidGaps, 1)
	assert.True(t, bidGaps[0].Upper.Equal(decimal.RequireFromString("99.90")))
	assert.True(t, bidGaps[0].Lower.Equal(decimal.RequireFromString("95.00")))
	assert.InDelta(t, (99.90-95.00)/99.90*100, bidGaps[0].WidthPct, 1e-9)

	askGaps := a.FindGaps(snap, bookDomain.Sell, 1.0)
	require.Len(t, askGaps, 1)
	assert.True(t, askGaps[0].Upper.Equal(decimal.RequireFromString("106.00")))
	assert.True(t, askGaps[0].Lower.Equal(decimal.RequireFromString("100.20")))

	// The zero threshold falls back to the configured default.
	assert.Len(t, a.FindGaps(snap, bookDomain.Buy, 0), 1)

	// A book with no pocket wider than the threshold reports none.
	assert.Empty(t, a.FindGaps(snap, bookDomain.Buy, 10.0))
}
