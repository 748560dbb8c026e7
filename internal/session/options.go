package session

import (
	"time"

	"github.com/okian/huddle/internal/domain/explain"
	"github.com/okian/huddle/pkg/clock"
	"github.com/okian/huddle/pkg/logger"
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock sets the clock used for replay pacing and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(r *Registry) {
		if clk != nil {
			r.clk = clk
		}
	}
}

// WithCapacity sets the maximum number of plays one ingest may queue.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxQueueDepth = n
		}
	}
}

// WithPredictionDelay sets the simulated prediction cost per play, before
// the pace multiplier is applied.
func WithPredictionDelay(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.predictionDelay = d
		}
	}
}

// WithReplaySleep sets the fixed pause between consecutive plays.
func WithReplaySleep(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.replaySleep = d
		}
	}
}

// WithTimelineCapacity sets the rolling timeline size per session.
func WithTimelineCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.timelineCap = n
		}
	}
}

// WithSampleCapacity sets how many latency samples a session retains.
func WithSampleCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.sampleCap = n
		}
	}
}

// WithSnapshotterFactory sets how sessions obtain their explanation
// snapshotter. The factory is called once per ingested session.
func WithSnapshotterFactory(f func() explain.Snapshotter) Option {
	return func(r *Registry) {
		if f != nil {
			r.newSnapshotter = f
		}
	}
}
