package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/huddle/internal/adapters/view"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// defaultJumpFactor flags a drift signal when the view's row count at least
// doubles between two checks.
const defaultJumpFactor = 2.0

// DriftOption applies a configuration option to the Drift checker.
type DriftOption func(*Drift)

// WithDriftLogger sets the logger.
func WithDriftLogger(log logger.Logger) DriftOption {
	return func(d *Drift) {
		if log != nil {
			d.log = log
		}
	}
}

// WithJumpFactor sets the row count growth ratio that counts as drift.
func WithJumpFactor(f float64) DriftOption {
	return func(d *Drift) {
		if f > 1 {
			d.jumpFactor = f
		}
	}
}

// Drift compares consecutive snapshots of the analytics view. A change of
// the dominant feature bucket, or a jump in ingested row count, is logged
// and counted as a drift signal. The first check only establishes the
// baseline.
type Drift struct {
	log        logger.Logger
	view       *view.View
	jumpFactor float64
	signals    atomic.Int64

	mu       sync.Mutex
	baseline bool
	dominant string
	points   int
}

// NewDrift creates a drift checker over the analytics view.
func NewDrift(v *view.View, opts ...DriftOption) *Drift {
	d := &Drift{
		view:       v,
		jumpFactor: defaultJumpFactor,
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	if d.log == nil {
		d.log = logger.Get().Named("drift")
	}

	return d
}

// Check runs one drift comparison. It satisfies the scheduler's job
// signature.
func (d *Drift) Check(ctx context.Context) error {
	metrics.RecordDriftCheck()

	impacts, err := d.view.FeatureImpact(ctx)
	if err != nil {
		return fmt.Errorf("feature impact query: %w", err)
	}
	points, _, err := d.view.Stats(ctx)
	if err != nil {
		return fmt.Errorf("view stats query: %w", err)
	}

	dominant := ""
	if len(impacts) > 0 {
		dominant = impacts[0].Bucket
	}

	d.mu.Lock()
	hadBaseline := d.baseline
	prevDominant, prevPoints := d.dominant, d.points
	d.baseline = true
	d.dominant, d.points = dominant, points
	d.mu.Unlock()

	if !hadBaseline {
		d.log.Debug(ctx, "drift baseline recorded",
			logger.String("dominant", dominant),
			logger.Int("points", points))
		return nil
	}

	if dominant != prevDominant {
		d.signals.Add(1)
		metrics.RecordDriftSignal()
		d.log.Warn(ctx, "dominant feature bucket changed",
			logger.String("was", prevDominant),
			logger.String("now", dominant))
	}
	if prevPoints > 0 && float64(points) >= d.jumpFactor*float64(prevPoints) {
		d.signals.Add(1)
		metrics.RecordDriftSignal()
		d.log.Warn(ctx, "ingested row count jumped",
			logger.Int("was", prevPoints),
			logger.Int("now", points))
	}
	return nil
}

// Signals reports how many drift signals have been raised since start.
func (d *Drift) Signals() int64 {
	return d.signals.Load()
}

// Baseline reports the last recorded dominant bucket and row count.
func (d *Drift) Baseline() (string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dominant, d.points
}
