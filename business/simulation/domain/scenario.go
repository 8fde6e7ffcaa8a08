// Package domain defines the scenario and per-tick shapes for the
// simulation driver.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	bookDomain "github.com/quantedu/etf-stress-sim/business/book/domain"
)

// Keyframe fixes the exogenous inputs at one tick. Inputs between
// keyframes are linearly interpolated, so a scenario file only needs
// the inflection points of the episode.
type Keyframe struct {
	Tick              int     `yaml:"tick"`
	FairValue         float64 `yaml:"fair_value"`
	Volatility        float64 `yaml:"volatility"`
	Stress            float64 `yaml:"stress"`
	HedgeableFraction float64 `yaml:"hedgeable_fraction"`
	ReferenceAgeSec   float64 `yaml:"reference_age_sec"`
}

// OrderEvent is incoming market order flow at a tick.
type OrderEvent struct {
	Tick int    `yaml:"tick"`
	Side string `yaml:"side"` // "buy" or "sell"
	Size int64  `yaml:"size"`
}

// StopEvent arms a stop-loss order at a tick.
type StopEvent struct {
	Tick    int     `yaml:"tick"`
	Trigger float64 `yaml:"trigger"`
	Size    int64   `yaml:"size"`
	Side    string  `yaml:"side"`
}

// Scenario is a complete replayable episode.
type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Symbol      string       `yaml:"symbol"`
	Ticks       int          `yaml:"ticks"`
	Keyframes   []Keyframe   `yaml:"keyframes"`
	Orders      []OrderEvent `yaml:"orders"`
	Stops       []StopEvent  `yaml:"stops"`
}

// Validate rejects scenarios that cannot be expanded into a run.
func (s *Scenario) Validate() error {
	if s.Ticks <= 0 {
		return fmt.Errorf("scenario %q: ticks must be positive", s.Name)
	}
	if len(s.Keyframes) == 0 {
		return fmt.Errorf("scenario %q: at least one keyframe required", s.Name)
	}
	prev := -1
	for _, kf := range s.Keyframes {
		if kf.Tick <= prev {
			return fmt.Errorf("scenario %q: keyframes out of order at tick %d", s.Name, kf.Tick)
		}
		if kf.Tick >= s.Ticks {
			return fmt.Errorf("scenario %q: keyframe tick %d beyond run length %d", s.Name, kf.Tick, s.Ticks)
		}
		if kf.Stress < 0 || kf.Stress > 1 {
			return fmt.Errorf("scenario %q: stress %v outside [0,1] at tick %d", s.Name, kf.Stress, kf.Tick)
		}
		if kf.FairValue <= 0 {
			return fmt.Errorf("scenario %q: fair value must be positive at tick %d", s.Name, kf.Tick)
		}
		prev = kf.Tick
	}
	for _, o := range s.Orders {
		if o.Side != "buy" && o.Side != "sell" {
			return fmt.Errorf("scenario %q: order side %q at tick %d", s.Name, o.Side, o.Tick)
		}
		if o.Size <= 0 {
			return fmt.Errorf("scenario %q: order size must be positive at tick %d", s.Name, o.Tick)
		}
	}
	for _, st := range s.Stops {
		if st.Side != "buy" && st.Side != "sell" {
			return fmt.Errorf("scenario %q: stop side %q at tick %d", s.Name, st.Side, st.Tick)
		}
		if st.Size <= 0 || st.Trigger <= 0 {
			return fmt.Errorf("scenario %q: invalid stop at tick %d", s.Name, st.Tick)
		}
	}
	return nil
}

// TickInput is the fully resolved exogenous input for one tick.
type TickInput struct {
	Tick              int
	FairValue         decimal.Decimal
	Volatility        float64
	Stress            float64
	HedgeableFraction float64
	ReferenceAge      time.Duration
	Orders            []OrderEvent
	Stops             []StopEvent
}

// Expand resolves keyframes, order flow, and stop schedules into one
// TickInput per tick. Inputs hold at the last keyframe value after the
// final keyframe.
func (s *Scenario) Expand() ([]TickInput, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	inputs := make([]TickInput, s.Ticks)
	for t := 0; t < s.Ticks; t++ {
		kf := interpolate(s.Keyframes, t)
		inputs[t] = TickInput{
			Tick:              t,
			FairValue:         decimal.NewFromFloat(kf.FairValue),
			Volatility:        kf.Volatility,
			Stress:            kf.Stress,
			HedgeableFraction: kf.HedgeableFraction,
			ReferenceAge:      time.Duration(kf.ReferenceAgeSec * float64(time.Second)),
		}
	}
	for _, o := range s.Orders {
		if o.Tick >= 0 && o.Tick < s.Ticks {
			inputs[o.Tick].Orders = append(inputs[o.Tick].Orders, o)
		}
	}
	for _, st := range s.Stops {
		if st.Tick >= 0 && st.Tick < s.Ticks {
			inputs[st.Tick].Stops = append(inputs[st.Tick].Stops, st)
		}
	}
	return inputs, nil
}

func interpolate(frames []Keyframe, tick int) Keyframe {
	// Before the first keyframe: hold the first.
	if tick <= frames[0].Tick {
		return frames[0]
	}
	for i := 1; i < len(frames); i++ {
		if tick > frames[i].Tick {
			continue
		}
		a, b := frames[i-1], frames[i]
		span := float64(b.Tick - a.Tick)
		w := float64(tick-a.Tick) / span
		return Keyframe{
			Tick:              tick,
			FairValue:         lerp(a.FairValue, b.FairValue, w),
			Volatility:        lerp(a.Volatility, b.Volatility, w),
			Stress:            lerp(a.Stress, b.Stress, w),
			HedgeableFraction: lerp(a.HedgeableFraction, b.HedgeableFraction, w),
			ReferenceAgeSec:   lerp(a.ReferenceAgeSec, b.ReferenceAgeSec, w),
		}
	}
	return frames[len(frames)-1]
}

func lerp(a, b, w float64) float64 { return a + (b-a)*w }

// BookSide converts the scenario side string into the book domain side.
func (o OrderEvent) BookSide() bookDomain.Side {
	if o.Side == "buy" {
		return bookDomain.Buy
	}
	return bookDomain.Sell
}

func (s StopEvent) BookSide() bookDomain.Side {
	if s.Side == "buy" {
		return bookDomain.Buy
	}
	return bookDomain.Sell
}
