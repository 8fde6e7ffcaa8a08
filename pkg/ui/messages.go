// Package ui provides the Bubble Tea dashboard for simulation runs.
package ui

import (
	simApp "github.com/quantedu/etf-stress-sim/business/simulation/app"
	simDomain "github.com/quantedu/etf-stress-sim/business/simulation/domain"
)

// Message types for dashboard updates

// TickResultMsg carries one completed simulation tick.
type TickResultMsg struct {
	Result simDomain.TickResult
}

// RunDoneMsg is sent when the scenario finishes.
type RunDoneMsg struct {
	Summary simApp.Summary
	Err     error
}

// LogMsg is a log line surfaced on the dashboard.
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg drives UI animation.
type TickMsg struct{}
