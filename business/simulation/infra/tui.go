package infra

import (
	"github.com/quantedu/etf-stress-sim/business/simulation/domain"
	"github.com/quantedu/etf-stress-sim/pkg/ui"
)

// TUIReporter forwards tick results to the running dashboard program.
type TUIReporter struct{}

func NewTUIReporter() *TUIReporter { return &TUIReporter{} }

func (r *TUIReporter) Report(res domain.TickResult) error {
	ui.Send(ui.TickResultMsg{Result: res})
	return nil
}

func (r *TUIReporter) Close() error { return nil }
