// Package infra adapts external hedge availability into the market
// maker domain.
package infra

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/quantedu/etf-stress-sim/business/marketmaker/domain"
)

// ErrHedgeVenueDown is the probe failure when no hedge venue is
// reachable, which during the crash meant futures limit-down or broad
// component halts.
var ErrHedgeVenueDown = errors.New("hedge venue unavailable")

// HedgeMonitor wraps the hedge availability probe in a circuit
// breaker. Repeated probe failures trip the breaker and pin the status
// at NoHedge until it half-opens, which mirrors how desks treated a
// hedge venue after a burst of rejected orders: assume it is gone and
// stop hammering it.
type HedgeMonitor struct {
	cb  *gobreaker.CircuitBreaker[float64]
	log *zap.Logger
}

func NewHedgeMonitor(log *zap.Logger) *HedgeMonitor {
	settings := gobreaker.Settings{
		Name:        "hedge-availability",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("hedge breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &HedgeMonitor{
		cb:  gobreaker.NewCircuitBreaker[float64](settings),
		log: log,
	}
}

// Status probes hedge availability at the observed basket coverage and
// maps the result onto the HedgeStatus variant. A zero coverage is a
// probe failure; a tripped breaker reports NoHedge without probing.
func (m *HedgeMonitor) Status(observedFraction float64) domain.HedgeStatus {
	fraction, err := m.cb.Execute(func() (float64, error) {
		if observedFraction <= 0 {
			return 0, ErrHedgeVenueDown
		}
		return observedFraction, nil
	})
	if err != nil {
		return domain.NoHedge()
	}
	return domain.HedgeFromFraction(fraction)
}
