// Package domain contains the core types for the market maker context.
package domain

import "fmt"

// HedgeKind tags the HedgeStatus variant.
type HedgeKind int

const (
	HedgeFull HedgeKind = iota
	HedgePartial
	HedgeNone
)

func (k HedgeKind) String() string {
	switch k {
	case HedgeFull:
		return "full"
	case HedgePartial:
		return "partial"
	case HedgeNone:
		return "none"
	default:
		return fmt.Sprintf("hedge_kind(%d)", int(k))
	}
}

// HedgeStatus is a tagged variant: Full and None carry no payload,
// Partial carries a fraction strictly between 0 and 1 describing what
// portion of ETF exposure can be offset in the underlying basket or its
// proxies. During the crash, halts in underlying components pushed this
// from Full through Partial to None.
type HedgeStatus struct {
	kind     HedgeKind
	fraction float64
}

// FullHedge reports every share of exposure can be offset.
func FullHedge() HedgeStatus { return HedgeStatus{kind: HedgeFull, fraction: 1} }

// NoHedge reports no offset is available.
func NoHedge() HedgeStatus { return HedgeStatus{kind: HedgeNone, fraction: 0} }

// PartialHedge validates that fraction is strictly inside (0,1).
func PartialHedge(fraction float64) (HedgeStatus, error) {
	if fraction <= 0 || fraction >= 1 {
		return HedgeStatus{}, fmt.Errorf("partial hedge fraction must be in (0,1), got %v", fraction)
	}
	return HedgeStatus{kind: HedgePartial, fraction: fraction}, nil
}

// HedgeFromFraction maps a basket coverage fraction onto the variant:
// >= 1 is Full, <= 0 is None, anything between is Partial.
func HedgeFromFraction(fraction float64) HedgeStatus {
	switch {
	case fraction >= 1:
		return FullHedge()
	case fraction <= 0:
		return NoHedge()
	default:
		return HedgeStatus{kind: HedgePartial, fraction: fraction}
	}
}

// Kind returns the variant tag.
func (h HedgeStatus) Kind() HedgeKind { return h.kind }

// Fraction returns the hedgeable fraction: 1 for Full, 0 for None.
func (h HedgeStatus) Fraction() float64 { return h.fraction }

func (h HedgeStatus) String() string {
	if h.kind == HedgePartial {
		return fmt.Sprintf("partial(%.2f)", h.fraction)
	}
	return h.kind.String()
}
