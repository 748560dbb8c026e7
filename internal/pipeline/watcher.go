// Package pipeline drives the live ingestion flow: raw packets arrive on
// the bus, pass through validation and the smoothing model, and fan out to
// the cache, the audit stream, the analytics view and the global live feed.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/okian/huddle/internal/adapters/bus"
	"github.com/okian/huddle/internal/adapters/cache"
	"github.com/okian/huddle/internal/adapters/view"
	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/domain/smoothing"
	"github.com/okian/huddle/internal/fanout"
	"github.com/okian/huddle/internal/validation"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// Worker pool defaults.
const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// Option applies a configuration option to the Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WithWorkers sets how many packet workers run concurrently.
func WithWorkers(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithQueueSize sets each worker's pending packet queue length.
func WithQueueSize(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// Watcher subscribes to the inbound packet topic and runs each packet
// through the full pipeline. Packets for the same contest always land on
// the same worker, so per-contest smoothing stays in arrival order, while
// different contests proceed concurrently.
type Watcher struct {
	log   logger.Logger
	bus   *bus.Bus
	cache *cache.Store
	view  *view.View
	model *smoothing.Model
	live  *fanout.Broadcaster

	workers   int
	queueSize int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	queues  []chan model.RawPacket
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher over the shared pipeline components.
func NewWatcher(b *bus.Bus, store *cache.Store, v *view.View, m *smoothing.Model, live *fanout.Broadcaster, opts ...Option) *Watcher {
	w := &Watcher{
		bus:       b,
		cache:     store,
		view:      v,
		model:     m,
		live:      live,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	if w.log == nil {
		w.log = logger.Get().Named("pipeline")
	}

	return w
}

// Start subscribes to the inbound topic and launches the worker pool.
// Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	msgs, err := w.bus.Subscribe(runCtx, bus.TopicShapUpdates)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", bus.TopicShapUpdates, err)
	}

	w.cancel = cancel
	w.queues = make([]chan model.RawPacket, w.workers)
	for i := range w.queues {
		w.queues[i] = make(chan model.RawPacket, w.queueSize)
		w.wg.Add(1)
		go w.worker(runCtx, w.queues[i])
	}
	w.wg.Add(1)
	go w.dispatch(runCtx, msgs)

	w.running = true
	w.log.Info(ctx, "pipeline started",
		logger.String("topic", bus.TopicShapUpdates),
		logger.Int("workers", w.workers))
	return nil
}

// Stop cancels the subscription and waits for the workers to exit. Queued
// packets not yet processed are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.log.Info(context.Background(), "pipeline stopped")
}

// dispatch decodes inbound messages and routes them to the worker keyed by
// contest id. Malformed packets are logged, counted and skipped; the loop
// itself never stops over bad input.
func (w *Watcher) dispatch(ctx context.Context, msgs <-chan *message.Message) {
	defer w.wg.Done()

	for msg := range msgs {
		packet, err := decodePacket(msg.Payload)
		if err != nil {
			metrics.RecordPacketInvalid()
			w.log.Warn(ctx, "dropping invalid packet", logger.Error(err))
			msg.Ack()
			continue
		}

		queue := w.queues[workerFor(packet.GID, len(w.queues))]
		select {
		case queue <- packet:
			msg.Ack()
		case <-ctx.Done():
			msg.Ack()
			return
		}
	}
}

func (w *Watcher) worker(ctx context.Context, queue <-chan model.RawPacket) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case packet := <-queue:
			w.process(ctx, packet)
		}
	}
}

// process runs one packet through the pipeline. A failing step is logged
// and the remaining steps still run, so one degraded store never silences
// the live feed.
func (w *Watcher) process(ctx context.Context, packet model.RawPacket) {
	started := time.Now()

	if err := w.cache.SetLastShap(ctx, packet); err != nil {
		metrics.RecordErrorByComponent("cache", "last_shap_write")
		w.log.Warn(ctx, "raw packet cache write failed",
			logger.String("gid", packet.GID),
			logger.Error(err))
	}

	smoothStart := time.Now()
	msg := w.model.Update(packet)
	metrics.RecordSmoothingUpdate()
	metrics.RecordSmoothingLatency(float64(time.Since(smoothStart)) / float64(time.Millisecond))
	metrics.UpdateSmoothingStates(w.model.States())

	if err := w.cache.SetWinProb(ctx, msg); err != nil {
		metrics.RecordErrorByComponent("cache", "winprob_write")
		w.log.Warn(ctx, "win probability cache write failed",
			logger.String("gid", msg.GID),
			logger.Error(err))
	}
	if err := w.bus.Publish(ctx, bus.TopicWinProbUpdates, msg); err != nil {
		metrics.RecordErrorByComponent("bus", "winprob_publish")
		w.log.Warn(ctx, "win probability publish failed",
			logger.String("gid", msg.GID),
			logger.Error(err))
	}
	if _, err := w.cache.AppendAudit(ctx, packet); err != nil {
		metrics.RecordErrorByComponent("cache", "audit_append")
		w.log.Warn(ctx, "audit append failed",
			logger.String("gid", packet.GID),
			logger.Error(err))
	}
	if err := w.view.InsertPoint(ctx, msg); err != nil {
		metrics.RecordErrorByComponent("view", "insert")
		w.log.Warn(ctx, "analytics insert failed",
			logger.String("gid", msg.GID),
			logger.Error(err))
	}

	w.live.Broadcast(ctx, model.NewWinProbEvent(msg))

	metrics.RecordPacketProcessed()
	metrics.RecordPacketLatency(float64(time.Since(started)) / float64(time.Millisecond))
	w.log.Debug(ctx, "packet processed",
		logger.String("gid", msg.GID),
		logger.Float64("p_win", msg.PWin))
}

// decodePacket parses and validates one wire payload.
func decodePacket(data []byte) (model.RawPacket, error) {
	var packet model.RawPacket
	if err := json.Unmarshal(data, &packet); err != nil {
		return model.RawPacket{}, fmt.Errorf("%w: %v", validation.ErrInvalid, err)
	}
	if err := validation.Struct(packet); err != nil {
		return model.RawPacket{}, err
	}
	return packet, nil
}

// workerFor pins a contest id to one worker so same-contest packets stay
// FIFO.
func workerFor(gid string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(gid))
	return int(h.Sum32() % uint32(workers))
}
