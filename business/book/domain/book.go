package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

var ten4 = decimal.NewFromInt(10000)

// Book is a two-sided price-level order book. Bids iterate best-first in
// descending price order, asks in ascending order. Each side holds at most
// one level per price and never stores a zero size.
type Book struct {
	bids *btree.BTreeG[PriceLevel]
	asks *btree.BTreeG[PriceLevel]
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		// Bids sort descending so Scan walks best to worst on both sides.
		bids: btree.NewBTreeG(func(a, b PriceLevel) bool { return a.Price.GreaterThan(b.Price) }),
		asks: btree.NewBTreeG(func(a, b PriceLevel) bool { return a.Price.LessThan(b.Price) }),
	}
}

func (b *Book) side(s Side) *btree.BTreeG[PriceLevel] {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// AddRestingOrder inserts size at price on the given side, merging into an
// existing level at the same price.
func (b *Book) AddRestingOrder(side Side, price decimal.Decimal, size int64) error {
	if !price.IsPositive() || size <= 0 {
		return &InvalidOrderError{Price: price, Size: size}
	}
	tree := b.side(side)
	if existing, ok := tree.Get(PriceLevel{Price: price}); ok {
		tree.Set(PriceLevel{Price: price, Size: existing.Size + size})
		return nil
	}
	tree.Set(PriceLevel{Price: price, Size: size})
	return nil
}

// RemoveLevel deletes the whole level at price, if present.
func (b *Book) RemoveLevel(side Side, price decimal.Decimal) {
	b.side(side).Delete(PriceLevel{Price: price})
}

// FillMarketOrder walks the opposite side best to worst, consuming size at
// each level until the order is filled or the side is exhausted. The
// remainder is reported as Unfilled, not raised: running out of liquidity
// is an air pocket, i.e. data.
func (b *Book) FillMarketOrder(side Side, size int64) (FillReport, error) {
	if size <= 0 {
		return FillReport{}, &InvalidOrderError{Price: decimal.Zero, Size: size}
	}

	tree := b.side(side.Opposite())
	report := FillReport{Side: side}
	remaining := size
	notional := decimal.Zero

	for remaining > 0 {
		best, ok := tree.Min()
		if !ok {
			break
		}
		traded := min(remaining, best.Size)
		report.Fills = append(report.Fills, Fill{Price: best.Price, Size: traded})
		notional = notional.Add(best.Price.Mul(decimal.NewFromInt(traded)))
		remaining -= traded

		if traded == best.Size {
			tree.Delete(best)
		} else {
			tree.Set(PriceLevel{Price: best.Price, Size: best.Size - traded})
		}
	}

	report.Filled = size - remaining
	report.Unfilled = remaining
	if report.Filled > 0 {
		report.VWAP = notional.Div(decimal.NewFromInt(report.Filled))
	}
	return report, nil
}

// FillLimitOrder executes like a market order but never beyond the limit
// price. Partial or zero fills are normal, not errors: limit orders trade
// price protection for fill certainty.
func (b *Book) FillLimitOrder(side Side, limit decimal.Decimal, size int64) (FillReport, error) {
	if size <= 0 || !limit.IsPositive() {
		return FillReport{}, &InvalidOrderError{Price: limit, Size: size}
	}

	tree := b.side(side.Opposite())
	report := FillReport{Side: side}
	remaining := size
	notional := decimal.Zero

	for remaining > 0 {
		best, ok := tree.Min()
		if !ok {
			break
		}
		if side == Buy && best.Price.GreaterThan(limit) {
			break
		}
		if side == Sell && best.Price.LessThan(limit) {
			break
		}
		traded := min(remaining, best.Size)
		report.Fills = append(report.Fills, Fill{Price: best.Price, Size: traded})
		notional = notional.Add(best.Price.Mul(decimal.NewFromInt(traded)))
		remaining -= traded

		if traded == best.Size {
			tree.Delete(best)
		} else {
			tree.Set(PriceLevel{Price: best.Price, Size: best.Size - traded})
		}
	}

	report.Filled = size - remaining
	report.Unfilled = remaining
	if report.Filled > 0 {
		report.VWAP = notional.Div(decimal.NewFromInt(report.Filled))
	}
	return report, nil
}

// BestBid returns the highest-priced bid level.
func (b *Book) BestBid() (PriceLevel, error) {
	if lvl, ok := b.bids.Min(); ok {
		return lvl, nil
	}
	return PriceLevel{}, &EmptyBookError{Side: Buy}
}

// BestAsk returns the lowest-priced ask level.
func (b *Book) BestAsk() (PriceLevel, error) {
	if lvl, ok := b.asks.Min(); ok {
		return lvl, nil
	}
	return PriceLevel{}, &EmptyBookError{Side: Sell}
}

// Spread returns ask minus bid in price units.
func (b *Book) Spread() (decimal.Decimal, error) {
	bid, err := b.BestBid()
	if err != nil {
		return decimal.Zero, err
	}
	ask, err := b.BestAsk()
	if err != nil {
		return decimal.Zero, err
	}
	return ask.Price.Sub(bid.Price), nil
}

// Mid returns the midpoint of the best bid and ask.
func (b *Book) Mid() (decimal.Decimal, error) {
	bid, err := b.BestBid()
	if err != nil {
		return decimal.Zero, err
	}
	ask, err := b.BestAsk()
	if err != nil {
		return decimal.Zero, err
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), nil
}

// SpreadBps returns the spread in basis points of the midpoint.
func (b *Book) SpreadBps() (decimal.Decimal, error) {
	spread, err := b.Spread()
	if err != nil {
		return decimal.Zero, err
	}
	mid, err := b.Mid()
	if err != nil {
		return decimal.Zero, err
	}
	if !mid.IsPositive() {
		return decimal.Zero, &EmptyBookError{Side: Buy}
	}
	return spread.Div(mid).Mul(ten4), nil
}

// DepthAtBest returns the resting size at the best level of the side,
// zero when empty.
func (b *Book) DepthAtBest(side Side) int64 {
	if lvl, ok := b.side(side).Min(); ok {
		return lvl.Size
	}
	return 0
}

// TotalDepth sums the resting size across all levels of the side.
func (b *Book) TotalDepth(side Side) int64 {
	var total int64
	b.side(side).Scan(func(lvl PriceLevel) bool {
		total += lvl.Size
		return true
	})
	return total
}

// Levels returns the side's levels best-first.
func (b *Book) Levels(side Side) []PriceLevel {
	out := make([]PriceLevel, 0, b.side(side).Len())
	b.side(side).Scan(func(lvl PriceLevel) bool {
		out = append(out, lvl)
		return true
	})
	return out
}

// Len returns the number of levels on the side.
func (b *Book) Len(side Side) int { return b.side(side).Len() }

// Clone deep-copies the book for what-if executions.
func (b *Book) Clone() *Book {
	out := NewBook()
	b.bids.Scan(func(lvl PriceLevel) bool { out.bids.Set(lvl); return true })
	b.asks.Scan(func(lvl PriceLevel) bool { out.asks.Set(lvl); return true })
	return out
}

// Snapshot captures an immutable point-in-time copy of both sides.
func (b *Book) Snapshot(ts time.Time) Snapshot {
	return Snapshot{
		Timestamp: ts,
		Bids:      b.Levels(Buy),
		Asks:      b.Levels(Sell),
	}
}
