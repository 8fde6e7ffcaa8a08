package domain

import "github.com/shopspring/decimal"

// Quote is a two-sided (or, near inventory limits, one-sided) market.
// A zero size on one side means that side is not quoted.
type Quote struct {
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	BidSize   int64
	AskSize   int64
	SpreadBps float64
}

// TwoSided reports whether both sides carry size.
func (q Quote) TwoSided() bool { return q.BidSize > 0 && q.AskSize > 0 }

// WithdrawalReason explains why no quote was posted.
type WithdrawalReason string

const (
	// WithdrawalRiskPremium means the required risk premium exceeded
	// the configured withdrawal threshold.
	WithdrawalRiskPremium WithdrawalReason = "risk_premium_above_threshold"
	// WithdrawalInventoryLimit means inventory is pinned at the hard
	// limit and not even a reduce-only quote is possible.
	WithdrawalInventoryLimit WithdrawalReason = "inventory_at_limit"
)

// QuoteDecision is the outcome of a quoting round. Quote is nil when
// the maker withdraws, and Reason says why. PremiumBps is always set so
// callers can see how close a posted quote was to withdrawal.
type QuoteDecision struct {
	Quote      *Quote
	Reason     WithdrawalReason
	PremiumBps float64
}

// Withdrawn reports whether the maker stepped away this round.
func (d QuoteDecision) Withdrawn() bool { return d.Quote == nil }
