package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var haltParams = BandParams{Tier: 1, TimeOfDay: TimeOfDayNormal, Leverage: 1}

func newTestMachine() (*HaltMachine, time.Time) {
	start := time.Date(2015, 8, 24, 10, 0, 0, 0, time.UTC)
	// Reference 100 with tier 1 normal bands: 95..105.
	m := NewHaltMachine(decimal.NewFromInt(100), haltParams, 15*time.Second, 5*time.Minute)
	return m, start
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestHaltMachineSingleHaltPerBreach(t *testing.T) {
	m, now := newTestMachine()

	if got := m.Evaluate(now, dec("99"), dec("101")); got != PhaseTrading {
		t.Fatalf("in-band quote moved phase to %s", got)
	}

	// Bid pinned at the lower band edge: limit state, then exactly one
	// halt when the cure window lapses.
	if got := m.Evaluate(now, dec("95"), dec("101")); got != PhaseLimitState {
		t.Fatalf("band-edge quote: phase = %s, want limit state", got)
	}
	now = now.Add(5 * time.Second)
	if got := m.Evaluate(now, dec("94"), dec("101")); got != PhaseLimitState {
		t.Fatalf("still inside cure window: phase = %s", got)
	}
	now = now.Add(10 * time.Second)
	if got := m.Evaluate(now, dec("94"), dec("101")); got != PhaseHalted {
		t.Fatalf("cure window elapsed: phase = %s, want halted", got)
	}
	if m.HaltCount() != 1 {
		t.Fatalf("halt count = %d, want 1", m.HaltCount())
	}

	// Continued breaches during the halt never fire a second halt.
	for i := 0; i < 4; i++ {
		now = now.Add(30 * time.Second)
		m.Evaluate(now, dec("90"), dec("101"))
	}
	if m.HaltCount() != 1 {
		t.Errorf("halt count = %d after repeated evaluation, want 1", m.HaltCount())
	}
	if m.CanExecute() {
		t.Error("halted machine must not execute")
	}
}

func TestHaltMachineCuresWhenQuoteRecovers(t *testing.T) {
	m, now := newTestMachine()

	m.Evaluate(now, dec("95"), dec("101"))
	now = now.Add(5 * time.Second)
	if got := m.Evaluate(now, dec("96"), dec("101")); got != PhaseTrading {
		t.Errorf("recovered quote: phase = %s, want trading", got)
	}
	if m.HaltCount() != 0 {
		t.Errorf("cured limit state should not count as a halt")
	}
}

func TestHaltMachineWithdrawnQuoteCures(t *testing.T) {
	m, now := newTestMachine()

	m.Evaluate(now, dec("95"), dec("101"))
	now = now.Add(5 * time.Second)
	// The breaching bid was withdrawn entirely; nil means no resting
	// orders on that side, which clears the limit state.
	if got := m.Evaluate(now, nil, dec("101")); got != PhaseTrading {
		t.Errorf("withdrawn quote: phase = %s, want trading", got)
	}
}

func TestHaltMachineReopenCycle(t *testing.T) {
	m, now := newTestMachine()

	m.Evaluate(now, dec("94"), dec("101"))
	now = now.Add(16 * time.Second)
	m.Evaluate(now, dec("94"), dec("101"))
	if m.Phase() != PhaseHalted {
		t.Fatalf("phase = %s, want halted", m.Phase())
	}

	m.Queue(QueuedOrder{Side: Sell, Size: 500})
	m.Queue(QueuedOrder{Side: Buy, Size: 200})
	if m.QueuedCount() != 2 {
		t.Fatalf("queued = %d, want 2", m.QueuedCount())
	}

	// Before the halt expires nothing moves.
	now = now.Add(4 * time.Minute)
	if got := m.Evaluate(now, dec("94"), dec("101")); got != PhaseHalted {
		t.Fatalf("phase = %s before expiry, want halted", got)
	}
	now = now.Add(2 * time.Minute)
	if got := m.Evaluate(now, dec("94"), dec("101")); got != PhaseReopening {
		t.Fatalf("phase = %s after expiry, want reopening", got)
	}

	// Reopening holds until a new reference is established.
	if got := m.Evaluate(now.Add(time.Second), dec("94"), dec("101")); got != PhaseReopening {
		t.Fatalf("reopening must hold, got %s", got)
	}

	drained := m.DrainQueue()
	if len(drained) != 2 || m.QueuedCount() != 0 {
		t.Fatalf("drain returned %d orders, queue now %d", len(drained), m.QueuedCount())
	}

	if err := m.Reopen(decimal.NewFromInt(92), now); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if m.Phase() != PhaseTrading {
		t.Errorf("phase after reopen = %s, want trading", m.Phase())
	}
	if !m.Reference().Equal(decimal.NewFromInt(92)) {
		t.Errorf("reference = %s, want 92", m.Reference())
	}
	// New bands around 92: a quote that breached the old bands but sits
	// inside the new ones trades normally.
	if got := m.Evaluate(now.Add(time.Minute), dec("90"), dec("94")); got != PhaseTrading {
		t.Errorf("in-new-band quote: phase = %s, want trading", got)
	}
}

func TestReopenOutsideReopeningPhase(t *testing.T) {
	m, now := newTestMachine()
	if err := m.Reopen(decimal.NewFromInt(90), now); err == nil {
		t.Error("Reopen while trading must fail")
	}
}
