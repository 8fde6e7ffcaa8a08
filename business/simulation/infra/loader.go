// Package infra provides scenario loading and the reporter
// implementations behind the driver's Reporter port.
package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantedu/etf-stress-sim/business/simulation/domain"
)

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*domain.Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	var s domain.Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// DefaultScenario is a built-in rendition of the morning of August 24,
// 2015 for a broad-market ETF: an opening gap down, liquidity
// withdrawal into a stop cascade, a halt cycle, and a slow afternoon
// recovery. Used when no scenario file is supplied.
func DefaultScenario(symbol string, fairValue float64) *domain.Scenario {
	return &domain.Scenario{
		Name:        "flash-crash-morning",
		Description: "Opening gap, liquidity withdrawal, stop cascade, halt cycle, partial recovery.",
		Symbol:      symbol,
		Ticks:       90,
		Keyframes: []domain.Keyframe{
			{Tick: 0, FairValue: fairValue, Volatility: 0.15, Stress: 0.0, HedgeableFraction: 1.0},
			{Tick: 10, FairValue: fairValue * 0.95, Volatility: 0.35, Stress: 0.45, HedgeableFraction: 0.7},
			{Tick: 20, FairValue: fairValue * 0.92, Volatility: 0.60, Stress: 0.85, HedgeableFraction: 0.4, ReferenceAgeSec: 360},
			{Tick: 35, FairValue: fairValue * 0.93, Volatility: 0.55, Stress: 0.80, HedgeableFraction: 0.3, ReferenceAgeSec: 420},
			{Tick: 55, FairValue: fairValue * 0.96, Volatility: 0.35, Stress: 0.45, HedgeableFraction: 0.7},
			{Tick: 80, FairValue: fairValue * 0.99, Volatility: 0.20, Stress: 0.10, HedgeableFraction: 0.95},
		},
		Orders: []domain.OrderEvent{
			{Tick: 5, Side: "sell", Size: 8_000},
			{Tick: 11, Side: "sell", Size: 15_000},
			{Tick: 14, Side: "sell", Size: 25_000},
			{Tick: 40, Side: "buy", Size: 5_000},
			{Tick: 60, Side: "buy", Size: 10_000},
		},
		Stops: []domain.StopEvent{
			{Tick: 15, Trigger: fairValue * 0.885, Size: 10_000, Side: "sell"},
			{Tick: 15, Trigger: fairValue * 0.846, Size: 15_000, Side: "sell"},
			{Tick: 15, Trigger: fairValue * 0.781, Size: 20_000, Side: "sell"},
		},
	}
}
