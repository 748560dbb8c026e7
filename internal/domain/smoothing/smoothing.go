// Package smoothing blends raw model output with explanation-aware
// correction and exponential smoothing.
package smoothing

import (
	"math"
	"sort"
	"sync"

	"github.com/okian/huddle/internal/domain/features"
	model "github.com/okian/huddle/internal/domain/model"
)

// Default smoothing configuration constants.
const (
	defaultAlpha = 0.15

	weightKeyBias  = "bias"
	weightKeyYPred = "y_pred"
)

// DefaultWeights returns the stage-2 logistic weights applied on top of the
// raw model output. Keys are either the reserved bias and y_pred terms or
// feature bucket names; buckets without a weight contribute nothing.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		weightKeyBias:            0.0,
		weightKeyYPred:           1.0,
		features.BucketQB:        0.2,
		features.BucketWR:        0.1,
		features.BucketOL:        0.05,
		features.BucketDefense:   -0.1,
		features.BucketSituation: 0.4,
		features.BucketOther:     0.05,
	}
}

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithAlpha sets the exponential smoothing factor. Values outside (0, 1]
// are ignored.
func WithAlpha(alpha float64) Option {
	return func(m *Model) {
		if alpha > 0 && alpha <= 1 {
			m.alpha = alpha
		}
	}
}

// WithWeights replaces the logistic weights wholesale.
func WithWeights(weights map[string]float64) Option {
	return func(m *Model) {
		if len(weights) == 0 {
			return
		}
		copied := make(map[string]float64, len(weights))
		for k, v := range weights {
			copied[k] = v
		}
		m.weights = copied
	}
}

// WithBucketTable sets the feature-to-bucket mapping used before weighting.
func WithBucketTable(table map[string]string) Option {
	return func(m *Model) {
		if len(table) == 0 {
			return
		}
		copied := make(map[string]string, len(table))
		for k, v := range table {
			copied[k] = v
		}
		m.table = copied
	}
}

// Model folds raw scored packets into one smoothed win-probability estimate
// per contest.
//
// Safe for concurrent use. Per-contest state is guarded by a mutex and is
// never evicted; State reports how many contests are held.
type Model struct {
	mu      sync.Mutex
	alpha   float64
	weights map[string]float64
	table   map[string]string
	state   map[string]float64
}

// NewModel creates a smoothing model with configuration options.
func NewModel(opts ...Option) *Model {
	m := &Model{
		alpha:   defaultAlpha,
		weights: DefaultWeights(),
		table:   features.DefaultBucketTable(),
		state:   make(map[string]float64),
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Update folds one packet into the per-contest estimate and returns the
// smoothed message. The first packet for a contest seeds the state with the
// raw probability, so smoothing starts from the model's own output.
func (m *Model) Update(packet model.RawPacket) model.WinProbMessage {
	buckets := features.Bucketize(packet.Shap, m.table)

	logit := m.weights[weightKeyBias] + m.weights[weightKeyYPred]*packet.YPred
	// Deterministic summation order regardless of map iteration.
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logit += m.weights[name] * buckets[name]
	}
	raw := sigmoid(logit)

	m.mu.Lock()
	prev, ok := m.state[packet.GID]
	if !ok {
		prev = raw
	}
	smoothed := (1-m.alpha)*prev + m.alpha*raw
	m.state[packet.GID] = smoothed
	m.mu.Unlock()

	return model.WinProbMessage{
		GID:  packet.GID,
		TS:   packet.TS,
		PWin: clamp01(smoothed),
		Explain: model.Explanation{
			Raw:     raw,
			Buckets: buckets,
			Alpha:   m.alpha,
		},
	}
}

// Latest reports the current smoothed estimate for a contest.
func (m *Model) Latest(gid string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state[gid]
	return p, ok
}

// States reports how many contests currently hold smoothing state.
func (m *Model) States() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state)
}

// Snapshot returns a copy of every contest's smoothed estimate.
func (m *Model) Snapshot() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.state))
	for gid, p := range m.state {
		out[gid] = p
	}
	return out
}

// Alpha reports the smoothing factor in effect.
func (m *Model) Alpha() float64 {
	return m.alpha
}

func sigmoid(logit float64) float64 {
	return 1 / (1 + math.Exp(-logit))
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
