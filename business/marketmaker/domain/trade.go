package domain

// TradeSide is the maker's own direction on a fill.
type TradeSide int

const (
	MakerBuy TradeSide = iota
	MakerSell
)

func (s TradeSide) String() string {
	if s == MakerSell {
		return "sell"
	}
	return "buy"
}
