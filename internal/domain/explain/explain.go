// Package explain computes per-play explanation snapshots with
// deterministic feature weights.
package explain

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/clock"
)

// Default explanation configuration constants.
const (
	defaultSeed         = 42
	defaultTopK         = 5
	defaultComputeDelay = 50 * time.Millisecond
	defaultDampening    = 0.1
	weightMin           = 0.5
	weightSpan          = 1.0 // weights are uniform in [weightMin, weightMin+weightSpan)
)

// Option applies a configuration option to the Adapter.
type Option func(*Adapter)

// WithSeed sets the PRNG seed so snapshots reproduce across runs.
func WithSeed(seed int64) Option {
	return func(a *Adapter) {
		a.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic seed for reproducible snapshots
	}
}

// WithTopK sets how many ranked contributions a snapshot highlights.
func WithTopK(k int) Option {
	return func(a *Adapter) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithComputeDelay sets the simulated explanation cost. Zero disables the
// delay entirely.
func WithComputeDelay(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.computeDelay = d
		}
	}
}

// WithDampening sets the prediction dampening factor subtracted from every
// contribution.
func WithDampening(f float64) Option {
	return func(a *Adapter) {
		if f >= 0 {
			a.dampening = f
		}
	}
}

// WithClock sets the clock used for pacing and latency measurement.
func WithClock(clk clock.Clock) Option {
	return func(a *Adapter) {
		if clk != nil {
			a.clk = clk
		}
	}
}

// Snapshotter computes explanation snapshots. The implementation may
// simulate latency to model an external explainability service.
type Snapshotter interface {
	// Snapshot computes a snapshot for one play, honoring ctx for
	// cancellation.
	Snapshot(ctx context.Context, play model.Play) (model.ExplanationSnapshot, error)
}

// Adapter implements Snapshotter with simulated explanation computation.
//
// Feature weights are drawn from a PRNG seeded once per adapter, and
// features are visited in lexicographic order, so two adapters with equal
// seeds produce identical snapshots for identical play sequences. An
// Adapter is not safe for concurrent use; give each session its own.
type Adapter struct {
	topK         int
	computeDelay time.Duration
	dampening    float64
	clk          clock.Clock
	rng          *rand.Rand
}

// NewAdapter creates an adapter with configuration options.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		topK:         defaultTopK,
		computeDelay: defaultComputeDelay,
		dampening:    defaultDampening,
		clk:          clock.Real(),
		rng:          rand.New(rand.NewSource(defaultSeed)), //nolint:gosec // deterministic seed for reproducible snapshots
	}

	// Apply all options
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Snapshot computes the explanation snapshot for one play. The input play
// is never mutated.
func (a *Adapter) Snapshot(ctx context.Context, play model.Play) (model.ExplanationSnapshot, error) {
	started := a.clk.Now()

	// Simulated explainability service cost
	if err := a.clk.Sleep(ctx, a.computeDelay); err != nil {
		return model.ExplanationSnapshot{}, fmt.Errorf("context cancelled: %w", err)
	}

	// Lexicographic iteration keeps the weight draw order stable.
	names := make([]string, 0, len(play.Features))
	for name := range play.Features {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]model.Contribution, 0, len(names))
	for _, name := range names {
		weight := weightMin + a.rng.Float64()*weightSpan
		values = append(values, model.Contribution{
			Feature: name,
			Value:   weight*play.Features[name] - a.dampening*play.Prediction,
		})
	}

	// Rank by absolute contribution; stable so ties keep name order.
	sort.SliceStable(values, func(i, j int) bool {
		return math.Abs(values[i].Value) > math.Abs(values[j].Value)
	})

	k := a.topK
	if k > len(values) {
		k = len(values)
	}
	top := make([]model.Contribution, k)
	copy(top, values[:k])

	return model.ExplanationSnapshot{
		PlayID:      play.ID,
		Values:      values,
		TopFeatures: top,
		LatencyMS:   float64(a.clk.Since(started)) / float64(time.Millisecond),
		GeneratedAt: a.clk.Now(),
	}, nil
}

// TopK reports how many contributions snapshots highlight.
func (a *Adapter) TopK() int {
	return a.topK
}
