package main

import (
	"time"

	"github.com/scmhub/calendar"

	"gexcompass/internal/config"
)

// Scheduler gates collection cycles to exchange trading hours.
type Scheduler struct {
	enabled bool
	window  config.SessionWindow
	nyse    *calendar.Calendar
}

// NewScheduler builds the gate from the schedule config.
func NewScheduler(cfg config.ScheduleConfig) (*Scheduler, error) {
	window, err := cfg.Window()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		enabled: cfg.Enabled,
		window:  window,
		nyse:    calendar.XNYS(),
	}, nil
}

// ShouldRun reports whether a cycle may run at t: always when gating is
// disabled, otherwise only on a business day inside the session window.
func (s *Scheduler) ShouldRun(t time.Time) bool {
	if !s.enabled {
		return true
	}
	local := t.In(s.window.Location)
	if !s.nyse.IsBusinessDay(local) {
		return false
	}
	return s.window.Contains(local)
}
