package scheduler

import (
	"github.com/okian/huddle/pkg/clock"
	"github.com/okian/huddle/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for job intervals. Tests inject a fake
// clock here.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithLogger sets the logger for scheduler events.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}
