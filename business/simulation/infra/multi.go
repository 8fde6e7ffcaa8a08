package infra

import (
	"errors"

	"github.com/quantedu/etf-stress-sim/business/simulation/app"
	"github.com/quantedu/etf-stress-sim/business/simulation/domain"
)

// MultiReporter fans each tick out to several reporters. Report fails
// on the first error; Close closes every reporter and joins errors.
type MultiReporter struct {
	reporters []app.Reporter
}

func NewMultiReporter(reporters ...app.Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) Report(res domain.TickResult) error {
	for _, r := range m.reporters {
		if err := r.Report(res); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiReporter) Close() error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
