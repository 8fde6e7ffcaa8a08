package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
)

func validScenario() Scenario {
	return Scenario{
		Name:   "test",
		Symbol: "RSP",
		Ticks:  10,
		Keyframes: []Keyframe{
			{Tick: 0, FairValue: 100, Volatility: 0.2, Stress: 0, HedgeableFraction: 1},
			{Tick: 4, FairValue: 90, Volatility: 0.6, Stress: 0.8, HedgeableFraction: 0.5, ReferenceAgeSec: 120},
		},
		Orders: []OrderEvent{{Tick: 2, Side: "sell", Size: 500}},
		Stops:  []StopEvent{{Tick: 1, Trigger: 95, Size: 1000, Side: "sell"}},
	}
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"zero ticks", func(s *Scenario) { s.Ticks = 0 }},
		{"no keyframes", func(s *Scenario) { s.Keyframes = nil }},
		{"keyframes out of order", func(s *Scenario) { s.Keyframes[1].Tick = 0 }},
		{"keyframe beyond run", func(s *Scenario) { s.Keyframes[1].Tick = 10 }},
		{"stress out of range", func(s *Scenario) { s.Keyframes[0].Stress = 1.5 }},
		{"non-positive fair value", func(s *Scenario) { s.Keyframes[0].FairValue = 0 }},
		{"bad order side", func(s *Scenario) { s.Orders[0].Side = "short" }},
		{"non-positive order size", func(s *Scenario) { s.Orders[0].Size = 0 }},
		{"bad stop side", func(s *Scenario) { s.Stops[0].Side = "" }},
		{"non-positive stop trigger", func(s *Scenario) { s.Stops[0].Trigger = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScenario()
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("Validate accepted a broken scenario")
			}
		})
	}

	s := validScenario()
	if err := s.Validate(); err != nil {
		t.Errorf("Validate rejected a valid scenario: %v", err)
	}
}

func TestScenarioExpand(t *testing.T) {
	s := validScenario()
	inputs, err := s.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(inputs) != 10 {
		t.Fatalf("got %d inputs, want one per tick", len(inputs))
	}

	// Midpoint between the keyframes at ticks 0 and 4.
	mid := inputs[2]
	if !mid.FairValue.Equal(decimal.NewFromInt(95)) {
		t.Errorf("tick 2 fair value = %s, want 95", mid.FairValue)
	}
	if mid.Stress != 0.4 {
		t.Errorf("tick 2 stress = %v, want 0.4", mid.Stress)
	}
	if math.Abs(mid.Volatility-0.4) > 1e-12 {
		t.Errorf("tick 2 volatility = %v, want 0.4", mid.Volatility)
	}
	if mid.ReferenceAge != time.Minute {
		t.Errorf("tick 2 reference age = %v, want 1m", mid.ReferenceAge)
	}

	// Past the last keyframe the inputs hold.
	last := inputs[9]
	if !last.FairValue.Equal(decimal.NewFromInt(90)) || last.Stress != 0.8 {
		t.Errorf("tick 9 = %v / %v, want held keyframe values", last.FairValue, last.Stress)
	}

	// Events land in their tick buckets.
	if len(inputs[2].Orders) != 1 || inputs[2].Orders[0].Size != 500 {
		t.Errorf("tick 2 orders = %v", inputs[2].Orders)
	}
	if len(inputs[1].Stops) != 1 || inputs[1].Stops[0].Trigger != 95 {
		t.Errorf("tick 1 stops = %v", inputs[1].Stops)
	}
	for i, in := range inputs {
		if i != 2 && len(in.Orders) > 0 {
			t.Errorf("stray order at tick %d", i)
		}
	}
}

func TestEventBookSide(t *testing.T) {
	if got := (OrderEvent{Side: "buy"}).BookSide(); got != bookDomain.Buy {
		t.Errorf("buy order mapped to %v", got)
	}
	if got := (StopEvent{Side: "sell"}).BookSide(); got != bookDomain.Sell {
		t.Errorf("sell stop mapped to %v", got)
	}
}
