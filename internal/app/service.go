// Package service wires the engine together: bus, cache, analytics view,
// smoothing model, session registry, pipeline and scheduler are constructed
// here once and handed to every component that needs them. Nothing in the
// engine reaches for ambient global state.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/okian/huddle/internal/adapters/bus"
	"github.com/okian/huddle/internal/adapters/cache"
	"github.com/okian/huddle/internal/adapters/view"
	"github.com/okian/huddle/internal/domain/explain"
	"github.com/okian/huddle/internal/domain/features"
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/domain/smoothing"
	"github.com/okian/huddle/internal/fanout"
	"github.com/okian/huddle/internal/pipeline"
	"github.com/okian/huddle/internal/session"
	"github.com/okian/huddle/internal/validation"
	"github.com/okian/huddle/pkg/clock"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
	"github.com/okian/huddle/pkg/scheduler"
)

// Engine owns every long-lived component of the win probability service.
type Engine struct {
	mu sync.Mutex

	// Core components, built on Start
	bus      *bus.Bus
	cache    *cache.Store
	view     *view.View
	model    *smoothing.Model
	registry *features.Registry
	sessions *session.Registry
	live     *fanout.Broadcaster
	watcher  *pipeline.Watcher
	refresh  *pipeline.Refresher
	drift    *pipeline.Drift
	sched    *scheduler.Scheduler

	// Configuration
	cachePath       string
	cacheTTL        time.Duration
	viewPath        string
	registryPath    string
	dataDir         string
	maxQueueDepth   int
	predictionDelay time.Duration
	replaySleep     time.Duration
	timelineCap     int
	sampleCap       int
	explainTopK     int
	explainSeed     int64
	explainDelay    time.Duration
	alpha           float64
	workers         int
	queueSize       int
	refreshEvery    time.Duration
	driftEvery      time.Duration

	// State
	started bool

	clk clock.Clock
	log logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock sets the clock injected into every time-driven component.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clk = clk
		}
	}
}

// WithCachePath sets the directory backing the hot cache. Empty keeps the
// cache in memory.
func WithCachePath(path string) Option {
	return func(e *Engine) { e.cachePath = path }
}

// WithCacheTTL sets how long cached answers live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// WithViewPath sets the SQLite file backing the analytics view. Empty
// falls back to a throwaway file under the OS temp directory.
func WithViewPath(path string) Option {
	return func(e *Engine) { e.viewPath = path }
}

// WithFeatureRegistryPath sets the JSON feature schema registry file.
func WithFeatureRegistryPath(path string) Option {
	return func(e *Engine) { e.registryPath = path }
}

// WithDataDir sets the directory watched for data drops. Empty disables
// the file watch.
func WithDataDir(dir string) Option {
	return func(e *Engine) { e.dataDir = dir }
}

// WithMaxQueueDepth caps how many plays one ingest may queue.
func WithMaxQueueDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxQueueDepth = n
		}
	}
}

// WithReplayPacing sets the simulated prediction cost and the fixed pause
// between replayed plays.
func WithReplayPacing(predictionDelay, replaySleep time.Duration) Option {
	return func(e *Engine) {
		if predictionDelay >= 0 {
			e.predictionDelay = predictionDelay
		}
		if replaySleep >= 0 {
			e.replaySleep = replaySleep
		}
	}
}

// WithHistoryBounds sets the timeline ring and latency sample capacities.
func WithHistoryBounds(timelineCap, sampleCap int) Option {
	return func(e *Engine) {
		if timelineCap > 0 {
			e.timelineCap = timelineCap
		}
		if sampleCap > 0 {
			e.sampleCap = sampleCap
		}
	}
}

// WithExplainConfig sets the explanation adapter's seed, top-k and
// simulated computation delay.
func WithExplainConfig(seed int64, topK int, delay time.Duration) Option {
	return func(e *Engine) {
		e.explainSeed = seed
		if topK > 0 {
			e.explainTopK = topK
		}
		if delay >= 0 {
			e.explainDelay = delay
		}
	}
}

// WithSmoothingAlpha sets the exponential smoothing factor.
func WithSmoothingAlpha(alpha float64) Option {
	return func(e *Engine) {
		if alpha > 0 && alpha <= 1 {
			e.alpha = alpha
		}
	}
}

// WithPipelineWorkers sets the packet worker count and per-worker queue
// size.
func WithPipelineWorkers(workers, queueSize int) Option {
	return func(e *Engine) {
		if workers > 0 {
			e.workers = workers
		}
		if queueSize > 0 {
			e.queueSize = queueSize
		}
	}
}

// WithJobIntervals sets the periodic view refresh and drift check
// intervals.
func WithJobIntervals(refreshEvery, driftEvery time.Duration) Option {
	return func(e *Engine) {
		if refreshEvery > 0 {
			e.refreshEvery = refreshEvery
		}
		if driftEvery > 0 {
			e.driftEvery = driftEvery
		}
	}
}

// New constructs a new Engine with default configuration.
func New(opts ...Option) *Engine {
	e := &Engine{
		cacheTTL:        48 * time.Hour,
		maxQueueDepth:   256,
		predictionDelay: 20 * time.Millisecond,
		replaySleep:     10 * time.Millisecond,
		timelineCap:     512,
		sampleCap:       1024,
		explainTopK:     5,
		explainSeed:     42,
		explainDelay:    50 * time.Millisecond,
		alpha:           0.15,
		workers:         runtime.NumCPU(),
		queueSize:       64,
		refreshEvery:    pipeline.DefaultRefreshInterval,
		driftEvery:      pipeline.DefaultDriftInterval,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	if e.clk == nil {
		e.clk = clock.Real()
	}

	return e
}

// Start builds and starts every component. Calling Start on a running
// engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	if e.log == nil {
		e.log = logger.Get()
	}

	e.log.Info(ctx, "starting win probability engine...")

	cacheOpts := []cache.Option{
		cache.WithTTL(e.cacheTTL),
		cache.WithLogger(e.log.Named("cache")),
	}
	if e.cachePath != "" {
		cacheOpts = append(cacheOpts, cache.WithPath(e.cachePath))
	} else {
		cacheOpts = append(cacheOpts, cache.WithInMemory())
	}
	store, err := cache.Open(cacheOpts...)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	viewPath := e.viewPath
	if viewPath == "" {
		dir, mkErr := os.MkdirTemp("", "huddle-view-*")
		if mkErr != nil {
			_ = store.Close()
			return fmt.Errorf("create view scratch dir: %w", mkErr)
		}
		viewPath = filepath.Join(dir, "view.db")
	}
	v, err := view.Open(
		view.WithPath(viewPath),
		view.WithLogger(e.log.Named("view")),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open analytics view: %w", err)
	}

	var registryOpts []features.RegistryOption
	if e.registryPath != "" {
		registryOpts = append(registryOpts, features.WithPath(e.registryPath))
	}
	reg, err := features.NewRegistry(registryOpts...)
	if err != nil {
		_ = v.Close()
		_ = store.Close()
		return fmt.Errorf("open feature registry: %w", err)
	}

	e.cache = store
	e.view = v
	e.registry = reg
	e.bus = bus.New(bus.WithLogger(e.log.Named("bus")))
	e.model = smoothing.NewModel(
		smoothing.WithAlpha(e.alpha),
		smoothing.WithBucketTable(reg.BucketTable()),
	)
	e.live = fanout.NewBroadcaster(
		fanout.WithName("live"),
		fanout.WithLogger(e.log.Named("live")),
	)
	e.sessions = session.NewRegistry(
		session.WithLogger(e.log.Named("sessions")),
		session.WithClock(e.clk),
		session.WithCapacity(e.maxQueueDepth),
		session.WithPredictionDelay(e.predictionDelay),
		session.WithReplaySleep(e.replaySleep),
		session.WithTimelineCapacity(e.timelineCap),
		session.WithSampleCapacity(e.sampleCap),
		session.WithSnapshotterFactory(e.newSnapshotter),
	)
	e.watcher = pipeline.NewWatcher(e.bus, store, v, e.model, e.live,
		pipeline.WithLogger(e.log.Named("pipeline")),
		pipeline.WithWorkers(e.workers),
		pipeline.WithQueueSize(e.queueSize),
	)
	e.drift = pipeline.NewDrift(v, pipeline.WithDriftLogger(e.log.Named("drift")))
	e.sched = scheduler.New(
		scheduler.WithClock(e.clk),
		scheduler.WithLogger(e.log.Named("scheduler")),
	)

	if err := pipeline.RegisterJobs(e.sched, v, e.drift, e.refreshEvery, e.driftEvery); err != nil {
		e.closeStores()
		return fmt.Errorf("register jobs: %w", err)
	}
	if err := e.watcher.Start(ctx); err != nil {
		e.closeStores()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if e.dataDir != "" {
		e.refresh = pipeline.NewRefresher(v, e.dataDir,
			pipeline.WithRefresherLogger(e.log.Named("refresher")))
		if err := e.refresh.Start(ctx); err != nil {
			// The periodic refresh job still covers the view; a missing
			// data directory is not fatal.
			e.log.Warn(ctx, "data directory watch unavailable", logger.Error(err))
			e.refresh = nil
		}
	}
	e.sched.Start(ctx)

	e.started = true
	e.log.Info(ctx, "win probability engine started",
		logger.Int("workers", e.workers),
		logger.Int("maxQueueDepth", e.maxQueueDepth),
		logger.Float64("alpha", e.alpha),
	)

	return nil
}

// newSnapshotter builds one explanation adapter per session. Adapters are
// not safe for concurrent use, so they are never shared.
func (e *Engine) newSnapshotter() explain.Snapshotter {
	return explain.NewAdapter(
		explain.WithSeed(e.explainSeed),
		explain.WithTopK(e.explainTopK),
		explain.WithComputeDelay(e.explainDelay),
		explain.WithClock(e.clk),
	)
}

// Stop gracefully shuts the engine down: scheduler first so no job races a
// closing store, then the ingestion paths, then the sessions, then the
// stores.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}

	ctx := context.Background()
	e.log.Info(ctx, "stopping win probability engine...")

	e.sched.Stop()
	if e.refresh != nil {
		e.refresh.Stop()
	}
	e.watcher.Stop()
	e.sessions.Close(ctx)
	e.live.CloseAll(ctx)
	e.closeStores()

	e.started = false
	e.log.Info(ctx, "win probability engine stopped")
}

func (e *Engine) closeStores() {
	if e.bus != nil {
		_ = e.bus.Close()
	}
	if e.view != nil {
		_ = e.view.Close()
	}
	if e.cache != nil {
		_ = e.cache.Close()
	}
}

// IngestGame validates and ingests one replayable game. Retried requests
// carrying the same idempotency key return the existing session's result.
func (e *Engine) IngestGame(ctx context.Context, req model.IngestRequest) (model.IngestResult, error) {
	if err := validation.Struct(req); err != nil {
		return model.IngestResult{}, err
	}

	sess, err := e.sessions.Ingest(ctx, req.GameID, req.HomeTeam, req.AwayTeam, req.Plays, req.IdempotencyKey)
	if err != nil {
		return model.IngestResult{}, err
	}
	state := sess.GameState()
	return model.IngestResult{
		GameID:     state.GameID,
		TotalPlays: state.TotalPlays,
		State:      state.State,
	}, nil
}

// StartReplay launches (or re-joins) the replay run for a contest and
// returns a channel closed when the run exits.
func (e *Engine) StartReplay(ctx context.Context, gameID string, pace float64) (<-chan struct{}, error) {
	sess, err := e.sessions.Get(gameID)
	if err != nil {
		return nil, err
	}
	return sess.StartReplay(ctx, pace), nil
}

// SetPaused flips a session's pause gate. The call never blocks on the
// replay loop.
func (e *Engine) SetPaused(ctx context.Context, gameID string, paused bool) error {
	sess, err := e.sessions.Get(gameID)
	if err != nil {
		return err
	}
	sess.SetPaused(ctx, paused)
	return nil
}

// RegisterSubscriber joins a subscriber to one session's broadcast domain.
// The subscriber receives the synthetic game state first.
func (e *Engine) RegisterSubscriber(ctx context.Context, gameID string, sub fanout.Subscriber) error {
	sess, err := e.sessions.Get(gameID)
	if err != nil {
		return err
	}
	return sess.Register(ctx, sub)
}

// UnregisterSubscriber removes a subscriber from a session's domain.
func (e *Engine) UnregisterSubscriber(ctx context.Context, gameID, subID string) {
	sess, err := e.sessions.Get(gameID)
	if err != nil {
		return
	}
	sess.Unregister(ctx, subID)
}

// AttachLiveFeed joins a subscriber to the global smoothed update feed.
func (e *Engine) AttachLiveFeed(ctx context.Context, sub fanout.Subscriber) {
	e.live.Connect(ctx, sub)
}

// DetachLiveFeed removes a subscriber from the global feed.
func (e *Engine) DetachLiveFeed(ctx context.Context, subID string) {
	e.live.Disconnect(ctx, subID)
}

// SessionMetrics reports replay health for one contest.
func (e *Engine) SessionMetrics(gameID string) (session.Metrics, error) {
	return e.sessions.Metrics(gameID)
}

// SearchPlays scans all sessions' plays for a substring match, stopping at
// limit results.
func (e *Engine) SearchPlays(query string, limit int) []model.Play {
	return e.sessions.Search(query, limit)
}

// PublishPacket puts one raw packet onto the inbound pipeline topic.
func (e *Engine) PublishPacket(ctx context.Context, packet model.RawPacket) error {
	return e.bus.Publish(ctx, bus.TopicShapUpdates, packet)
}

// LatestWinProb returns the most recent smoothed answer for a contest from
// the hot cache.
func (e *Engine) LatestWinProb(ctx context.Context, gid string) (model.WinProbMessage, error) {
	return e.cache.WinProb(ctx, gid)
}

// LastShap returns the most recent raw packet cached for a contest.
func (e *Engine) LastShap(ctx context.Context, gid string) (model.RawPacket, error) {
	return e.cache.LastShap(ctx, gid)
}

// History returns the ordered win probability history for a contest from
// the analytics view, bounded below by the since timestamp (0 for all).
func (e *Engine) History(ctx context.Context, gid string, since int64) ([]model.HistoryPoint, error) {
	return e.view.History(ctx, gid, since)
}

// TopContributions returns the k highest-impact feature buckets for a
// contest.
func (e *Engine) TopContributions(ctx context.Context, gid string, k int) ([]view.BucketImpact, error) {
	return e.view.TopContributions(ctx, gid, k)
}

// FeatureRegistry exposes the feature schema registry.
func (e *Engine) FeatureRegistry() *features.Registry {
	return e.registry
}

// GetStats returns engine statistics for monitoring.
func (e *Engine) GetStats(ctx context.Context) map[string]interface{} {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()

	stats := map[string]interface{}{
		"started":       started,
		"workers":       e.workers,
		"maxQueueDepth": e.maxQueueDepth,
	}
	if !started {
		return stats
	}

	stats["sessions"] = e.sessions.Count()
	stats["liveSubscribers"] = e.live.Count()
	stats["smoothingStates"] = e.model.States()
	stats["driftSignals"] = e.drift.Signals()

	if points, contests, err := e.view.Stats(ctx); err == nil {
		stats["viewPoints"] = points
		stats["viewContests"] = contests
	}

	// The smoothing state map is never evicted; keep its growth visible.
	metrics.UpdateSmoothingStates(e.model.States())
	metrics.UpdateSessionsActive(e.sessions.Count())

	return stats
}
