package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// HaltPhase enumerates the halt state machine. Exactly one phase is active
// per simulated security; the machine is the sole source of truth for
// whether market orders may execute.
type HaltPhase int

const (
	PhaseTrading HaltPhase = iota
	PhaseLimitState
	PhaseHalted
	PhaseReopening
)

func (p HaltPhase) String() string {
	switch p {
	case PhaseTrading:
		return "trading"
	case PhaseLimitState:
		return "limit_state"
	case PhaseHalted:
		return "halted"
	case PhaseReopening:
		return "reopening"
	default:
		return fmt.Sprintf("halt_phase(%d)", int(p))
	}
}

// QueuedOrder is a market order submitted while halted, held for atomic
// release at reopening.
type QueuedOrder struct {
	Side Side
	Size int64
}

// ErrTradingHalted rejects immediate execution while the machine is in
// PhaseHalted. Callers queue instead.
var ErrTradingHalted = fmt.Errorf("trading is halted")

// HaltMachine drives Trading -> LimitState -> Halted -> Reopening -> Trading
// transitions from quote observations against the LULD corridor.
type HaltMachine struct {
	phase        HaltPhase
	reference    decimal.Decimal
	bands        Bands
	params       BandParams
	cureWindow   time.Duration
	haltDuration time.Duration

	limitEnteredAt time.Time
	haltedUntil    time.Time
	queued         []QueuedOrder
	haltCount      int
}

// NewHaltMachine starts in PhaseTrading with bands around reference.
func NewHaltMachine(reference decimal.Decimal, params BandParams, cureWindow, haltDuration time.Duration) *HaltMachine {
	return &HaltMachine{
		phase:        PhaseTrading,
		reference:    reference,
		bands:        ComputeBands(reference, params),
		params:       params,
		cureWindow:   cureWindow,
		haltDuration: haltDuration,
	}
}

// Phase returns the active phase.
func (m *HaltMachine) Phase() HaltPhase { return m.phase }

// Reference returns the current reference price.
func (m *HaltMachine) Reference() decimal.Decimal { return m.reference }

// Bands returns the active LULD corridor.
func (m *HaltMachine) Bands() Bands { return m.bands }

// HaltCount returns how many times the machine has entered PhaseHalted.
func (m *HaltMachine) HaltCount() int { return m.haltCount }

// HaltedUntil returns when the current halt expires; zero outside PhaseHalted.
func (m *HaltMachine) HaltedUntil() time.Time { return m.haltedUntil }

// CanExecute reports whether market orders may execute right now.
func (m *HaltMachine) CanExecute() bool { return m.phase != PhaseHalted }

// Queue holds an order submitted during a halt for release at reopening.
func (m *HaltMachine) Queue(o QueuedOrder) { m.queued = append(m.queued, o) }

// QueuedCount returns the number of held orders.
func (m *HaltMachine) QueuedCount() int { return len(m.queued) }

// DrainQueue removes and returns all held orders. Called exactly once at
// reopening so the release is atomic.
func (m *HaltMachine) DrainQueue() []QueuedOrder {
	q := m.queued
	m.queued = nil
	return q
}

func (m *HaltMachine) quoteBreaches(bid, ask *decimal.Decimal) bool {
	if bid != nil && bid.LessThanOrEqual(m.bands.Lower) {
		return true
	}
	if ask != nil && ask.GreaterThanOrEqual(m.bands.Upper) {
		return true
	}
	return false
}

// Evaluate advances the machine given the current best quotes. Nil quotes
// mean the side has no resting orders (a withdrawn quote cures a limit
// state). Evaluate is called once per tick after order execution; each
// breach produces at most one halt because the phase moves monotonically
// through LimitState into Halted.
func (m *HaltMachine) Evaluate(now time.Time, bestBid, bestAsk *decimal.Decimal) HaltPhase {
	switch m.phase {
	case PhaseTrading:
		if m.quoteBreaches(bestBid, bestAsk) {
			m.phase = PhaseLimitState
			m.limitEnteredAt = now
		}

	case PhaseLimitState:
		if !m.quoteBreaches(bestBid, bestAsk) {
			// Self-cured: the triggering quote was withdrawn or the
			// price retreated inside the band.
			m.phase = PhaseTrading
		} else if now.Sub(m.limitEnteredAt) >= m.cureWindow {
			m.phase = PhaseHalted
			m.haltedUntil = now.Add(m.haltDuration)
			m.haltCount++
		}

	case PhaseHalted:
		if !now.Before(m.haltedUntil) {
			m.phase = PhaseReopening
		}

	case PhaseReopening:
		// Holds until Reopen establishes a new reference price.
	}
	return m.phase
}

// Reopen establishes a new reference price (first post-halt trade or
// auction clearing price), recomputes bands for the current session
// period, and resumes trading. Only legal in PhaseReopening.
func (m *HaltMachine) Reopen(newReference decimal.Decimal, now time.Time) error {
	if m.phase != PhaseReopening {
		return fmt.Errorf("reopen from %s: machine must be reopening", m.phase)
	}
	if !newReference.IsPositive() {
		return fmt.Errorf("reopen reference price must be positive, got %s", newReference)
	}
	m.reference = newReference
	m.params.TimeOfDay = TimeOfDayCategory(now)
	m.bands = ComputeBands(newReference, m.params)
	m.phase = PhaseTrading
	m.haltedUntil = time.Time{}
	return nil
}
