package domain

import "testing"

func TestPartialHedgeValidation(t *testing.T) {
	for _, fraction := range []float64{0, 1, -0.2, 1.5} {
		if _, err := PartialHedge(fraction); err == nil {
			t.Errorf("PartialHedge(%v) accepted, want rejection", fraction)
		}
	}

	h, err := PartialHedge(0.6)
	if err != nil {
		t.Fatalf("PartialHedge(0.6): %v", err)
	}
	if h.Kind() != HedgePartial || h.Fraction() != 0.6 {
		t.Errorf("got %s fraction %v, want partial 0.6", h.Kind(), h.Fraction())
	}
}

func TestHedgeFromFraction(t *testing.T) {
	tests := []struct {
		fraction float64
		want     HedgeKind
	}{
		{1.0, HedgeFull},
		{1.2, HedgeFull},
		{0.0, HedgeNone},
		{-0.5, HedgeNone},
		{0.4, HedgePartial},
	}
	for _, tt := range tests {
		if got := HedgeFromFraction(tt.fraction).Kind(); got != tt.want {
			t.Errorf("HedgeFromFraction(%v) = %s, want %s", tt.fraction, got, tt.want)
		}
	}

	if f := FullHedge().Fraction(); f != 1 {
		t.Errorf("full hedge fraction = %v, want 1", f)
	}
	if f := NoHedge().Fraction(); f != 0 {
		t.Errorf("no hedge fraction = %v, want 0", f)
	}
}

func TestHedgeStatusString(t *testing.T) {
	if got := FullHedge().String(); got != "full" {
		t.Errorf("String() = %q", got)
	}
	h, _ := PartialHedge(0.25)
	if got := h.String(); got != "partial(0.25)" {
		t.Errorf("String() = %q", got)
	}
}
