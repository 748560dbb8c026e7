package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/huddle/internal/domain/explain"
	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/clock"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// defaultMaxQueueDepth bounds how many plays one ingest may queue.
const defaultMaxQueueDepth = 256

// Metrics summarizes one session's replay health.
type Metrics struct {
	P95ShapLatencyMS       float64 `json:"p95_shap_latency_ms"`
	P95PredictionLatencyMS float64 `json:"prediction_latency_p95_ms"`
	QueueDepth             int     `json:"queue_depth"`
	MaxQueueDepth          int     `json:"max_queue_depth"`
}

// Registry holds at most one live Session per contest and tracks ingest
// idempotency keys. Safe for concurrent use.
type Registry struct {
	log             logger.Logger
	clk             clock.Clock
	maxQueueDepth   int
	predictionDelay time.Duration
	replaySleep     time.Duration
	timelineCap     int
	sampleCap       int
	newSnapshotter  func() explain.Snapshotter

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	seenKeys map[string]struct{}
}

// NewRegistry creates a registry with configuration options.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		maxQueueDepth:   defaultMaxQueueDepth,
		predictionDelay: defaultPredictionDelay,
		replaySleep:     defaultReplaySleep,
		timelineCap:     defaultTimelineCap,
		sampleCap:       defaultSampleCap,
		sessions:        make(map[string]*Session),
		seenKeys:        make(map[string]struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(r)
	}

	if r.log == nil {
		r.log = logger.Get().Named("sessions")
	}
	if r.clk == nil {
		r.clk = clock.Real()
	}
	if r.newSnapshotter == nil {
		// Adapters are not safe for concurrent use, so every session gets
		// a fresh one.
		clk := r.clk
		r.newSnapshotter = func() explain.Snapshotter {
			return explain.NewAdapter(explain.WithClock(clk))
		}
	}

	return r
}

// Ingest creates the live Session for a contest from an ordered play list.
//
// If idempotencyKey was already seen and a session still exists for the
// contest, that session is returned unchanged, so retried ingests never
// reset a replay in progress. An ingest whose play count exceeds the queue
// depth limit fails with ErrCapacityExceeded and leaves any existing
// session untouched. Otherwise the new session replaces the prior one,
// stopping its replay.
func (r *Registry) Ingest(ctx context.Context, gameID, homeTeam, awayTeam string, plays []model.Play, idempotencyKey string) (*Session, error) {
	r.mu.Lock()
	if _, seen := r.seenKeys[idempotencyKey]; seen {
		if existing, ok := r.sessions[gameID]; ok {
			r.mu.Unlock()
			metrics.RecordIngestDuplicate()
			r.log.Info(ctx, "duplicate ingest, returning existing session",
				logger.String("game_id", gameID),
				logger.String("idempotency_key", idempotencyKey))
			return existing, nil
		}
	}
	if len(plays) > r.maxQueueDepth {
		r.mu.Unlock()
		metrics.RecordIngestRejected()
		return nil, fmt.Errorf("%w: %d plays over limit %d", ErrCapacityExceeded, len(plays), r.maxQueueDepth)
	}

	sess := newSession(r, gameID, homeTeam, awayTeam, plays)
	prior, replacing := r.sessions[gameID]
	if !replacing {
		r.order = append(r.order, gameID)
	}
	r.sessions[gameID] = sess
	r.seenKeys[idempotencyKey] = struct{}{}
	total := len(r.sessions)
	r.mu.Unlock()

	if replacing {
		prior.Close(ctx)
		r.log.Info(ctx, "replaced live session", logger.String("game_id", gameID))
	}

	metrics.RecordSessionIngested()
	metrics.UpdateSessionsActive(total)
	r.log.Info(ctx, "session ingested",
		logger.String("game_id", gameID),
		logger.String("home_team", homeTeam),
		logger.String("away_team", awayTeam),
		logger.Int("plays", len(plays)))
	return sess, nil
}

// Get returns the live session for a contest.
func (r *Registry) Get(gameID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, gameID)
	}
	return sess, nil
}

// Count reports how many live sessions the registry holds.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Search scans every session's plays, in ingestion order, for a
// case-insensitive substring match on play id, description or team. It
// stops as soon as limit matches are collected.
func (r *Registry) Search(query string, limit int) []model.Play {
	if limit <= 0 {
		return nil
	}
	needle := strings.ToLower(query)

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.order))
	for _, gameID := range r.order {
		if sess, ok := r.sessions[gameID]; ok {
			sessions = append(sessions, sess)
		}
	}
	r.mu.Unlock()

	var results []model.Play
	for _, sess := range sessions {
		for _, play := range sess.plays {
			if !strings.Contains(searchHaystack(play), needle) {
				continue
			}
			results = append(results, play)
			if len(results) >= limit {
				return results
			}
		}
	}
	return results
}

// searchHaystack concatenates the searchable play fields in lowercase.
func searchHaystack(p model.Play) string {
	return strings.ToLower(p.ID + " " + p.Description + " " + p.Team)
}

// Metrics reports replay health for one contest.
func (r *Registry) Metrics(gameID string) (Metrics, error) {
	sess, err := r.Get(gameID)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		P95ShapLatencyMS:       P95(sess.ExplainLatencies()),
		P95PredictionLatencyMS: P95(sess.PredictionLatencies()),
		QueueDepth:             sess.QueueDepth(),
		MaxQueueDepth:          r.maxQueueDepth,
	}, nil
}

// Close stops every session's replay and disconnects their subscribers.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Close(ctx)
	}
	if len(sessions) > 0 {
		r.log.Info(ctx, "all sessions closed", logger.Int("sessions", len(sessions)))
	}
}

// P95 picks the sample at index max(floor(0.95*n)-1, 0) of the sorted
// list, or 0 when the list is empty.
func P95(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(0.95*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
