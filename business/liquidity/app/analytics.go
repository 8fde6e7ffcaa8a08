// Package app provides stateless liquidity analytics over book snapshots
// and executed-trade tapes.
package app

import (
	"math"

	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
	"github.com/quantedu/etf-stress-sim/business/liquidity/domain"
)

// Analytics evaluates liquidity metrics. It holds only configuration and
// is safe to share across simulations.
type Analytics struct {
	minTrades       int
	gapThresholdPct float64
}

// New creates an Analytics with the minimum trade count for impact
// regressions and the default gap threshold in percent.
func New(minTrades int, gapThresholdPct float64) *Analytics {
	if minTrades < 3 {
		minTrades = 3
	}
	return &Analytics{minTrades: minTrades, gapThresholdPct: gapThresholdPct}
}

// PriceImpactCoefficient regresses successive price changes on signed
// trade size (buys positive, sells negative) and returns the slope with
// its R-squared. Fewer than the configured minimum of trades, or zero
// variance in signed size, yields ErrInsufficientData.
func (a *Analytics) PriceImpactCoefficient(trades []bookDomain.Trade) (domain.ImpactCoefficient, error) {
	if len(trades) < a.minTrades {
		return domain.ImpactCoefficient{}, domain.ErrInsufficientData
	}

	// Pairs of (signed volume of trade i, price change into trade i).
	n := len(trades) - 1
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 1; i < len(trades); i++ {
		signed := float64(trades[i].Size)
		if trades[i].Side == bookDomain.Sell {
			signed = -signed
		}
		prev, _ := trades[i-1].Price.Float64()
		cur, _ := trades[i].Price.Float64()
		xs = append(xs, signed)
		ys = append(ys, cur-prev)
	}

	slope, r2, ok := linearRegression(xs, ys)
	if !ok {
		return domain.ImpactCoefficient{}, domain.ErrInsufficientData
	}
	return domain.ImpactCoefficient{Lambda: slope, RSquared: r2, Trades: len(trades)}, nil
}

// linearRegression fits y = a + b*x by ordinary least squares. ok is false
// when x has zero variance.
func linearRegression(xs, ys []float64) (slope, r2 float64, ok bool) {
	n := float64(len(xs))
	if n < 2 {
		return 0, 0, false
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy, syy float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return 0, 0, false
	}

	slope = sxy / sxx
	if syy == 0 {
		// A flat price series is perfectly explained by a zero slope.
		return slope, 1, true
	}
	r2 = (sxy * sxy) / (sxx * syy)
	return slope, r2, true
}

// IlliquidityRatio computes the Amihud measure over aligned price and
// share-volume series: mean of |return| / dollar volume. Zero-volume
// periods are excluded from the mean and counted; if every period has
// zero dollar volume the metric is undefined and reported as such.
func (a *Analytics) IlliquidityRatio(prices []float64, volumes []int64) (domain.IlliquidityRatio, error) {
	if len(prices) != len(volumes) || len(prices) < 2 {
		return domain.IlliquidityRatio{}, domain.ErrInsufficientData
	}

	var sum float64
	var contributed, skipped int
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			skipped++
			continue
		}
		dollarVolume := prices[i] * float64(volumes[i])
		if dollarVolume <= 0 {
			skipped++
			continue
		}
		ret := math.Abs(prices[i]/prices[i-1] - 1)
		sum += ret / dollarVolume
		contributed++
	}

	if contributed == 0 {
		return domain.IlliquidityRatio{Skipped: skipped}, domain.ErrUndefinedMetric
	}
	return domain.IlliquidityRatio{
		Ratio:   sum / float64(contributed),
		Periods: contributed,
		Skipped: skipped,
	}, nil
}

// FindGaps scans one side of a snapshot for intervals between adjacent
// resting levels wider than thresholdPct percent of the richer price.
// These are the air pockets a market order falls through.
func (a *Analytics) FindGaps(snap bookDomain.Snapshot, side bookDomain.Side, thresholdPct float64) []domain.Gap {
	if thresholdPct <= 0 {
		thresholdPct = a.gapThresholdPct
	}

	levels := snap.Bids
	if side == bookDomain.Sell {
		levels = snap.Asks
	}

	var gaps []domain.Gap
	for i := 0; i+1 < len(levels); i++ {
		hi, lo := levels[i].Price, levels[i+1].Price
		if side == bookDomain.Sell {
			hi, lo = levels[i+1].Price, levels[i].Price
		}
		hiF, _ := hi.Float64()
		loF, _ := lo.Float64()
		if hiF <= 0 {
			continue
		}
		widthPct := (hiF - loF) / hiF * 100
		if widthPct > thresholdPct {
			gaps = append(gaps, domain.Gap{Lower: lo, Upper: hi, WidthPct: widthPct})
		}
	}
	return gaps
}
